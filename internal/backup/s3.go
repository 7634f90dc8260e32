package backup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
)

const defaultS3Region = "us-east-1"

// S3Config holds S3 uploader parameters for backup uploads.
type S3Config struct {
	BucketURL    string // s3://bucket[/prefix]
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	ContentType  string
}

// S3Uploader copies snapshot files to an S3-compatible bucket by running
// `aws s3 cp`. Credentials are passed through the child environment only.
type S3Uploader struct {
	awsPath  string
	bucket   string
	prefix   string
	endpoint string
	cfg      S3Config
}

// NewS3Uploader validates cfg and resolves the aws binary.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}
	awsPath, err := exec.LookPath("aws")
	if err != nil {
		return nil, errors.New("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultS3Region
	}
	return &S3Uploader{
		awsPath:  awsPath,
		bucket:   bucket,
		prefix:   prefix,
		endpoint: normalizeEndpoint(cfg.Endpoint, cfg.UseSSL),
		cfg:      cfg,
	}, nil
}

// Destination is the s3:// URL a local snapshot file is copied to.
func (u *S3Uploader) Destination(localPath string) string {
	return "s3://" + u.bucket + "/" + path.Join(u.prefix, path.Base(localPath))
}

// UploadFile copies localPath into the bucket under the configured prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	cmd := exec.CommandContext(ctx, u.awsPath, u.args(localPath)...)
	cmd.Env = append(os.Environ(), u.env()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w: %s", path.Base(localPath), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u *S3Uploader) args(localPath string) []string {
	args := []string{"s3", "cp", localPath, u.Destination(localPath), "--region", u.cfg.Region, "--only-show-errors"}
	if u.cfg.ContentType != "" {
		args = append(args, "--content-type", u.cfg.ContentType)
	}
	if u.endpoint != "" {
		args = append(args, "--endpoint-url", u.endpoint)
	}
	return args
}

func (u *S3Uploader) env() []string {
	env := []string{
		"AWS_ACCESS_KEY_ID=" + u.cfg.AccessKey,
		"AWS_SECRET_ACCESS_KEY=" + u.cfg.SecretKey,
		"AWS_DEFAULT_REGION=" + u.cfg.Region,
	}
	if token := strings.TrimSpace(u.cfg.SessionToken); token != "" {
		env = append(env, "AWS_SESSION_TOKEN="+token)
	}
	return env
}

// normalizeEndpoint adds a scheme to a bare host[:port] endpoint.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return ""
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		return endpoint
	case useSSL:
		return "https://" + endpoint
	default:
		return "http://" + endpoint
	}
}

func parseS3BucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", errors.New("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", errors.New("s3: bucket-url missing bucket name")
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
