package main

import (
	"time"

	"github.com/tinytelemetry/logdex/internal/ingest"
	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	defaultBindHost       = "0.0.0.0"
	defaultTCPPort        = 4000
	defaultAPIPort        = 5000
	defaultMuxBufferSize  = DefaultMuxBuffer
	defaultBackend        = backendJournal
	defaultProcessor      = ingest.ProcessorModeParse
	defaultQueryTimeout   = model.DefaultQueryTimeout
	defaultBackupInterval = 6 * time.Hour
	defaultBackupKeepLast = 24
	defaultLogMaxSizeMB   = 50
	defaultLogMaxBackups  = 5
)

const (
	backendJournal = "journal"
	backendDuckDB  = "duckdb"
	backendMemory  = "memory"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host          string `mapstructure:"host"`
	Processor     string `mapstructure:"processor"`
	TCPEnabled    bool   `mapstructure:"tcp-enabled"`
	TCPPort       int    `mapstructure:"tcp-port"`
	TCPAddr       string `mapstructure:"tcp-addr"`
	MuxBufferSize int    `mapstructure:"mux-buffer-size"`
	APIEnabled    bool   `mapstructure:"api-enabled"`
	APIPort       int    `mapstructure:"api-port"`
	APIAddr       string `mapstructure:"api-addr"`
	SocketPath    string `mapstructure:"socket-path"`

	Backend               string        `mapstructure:"backend"`
	JournalPath           string        `mapstructure:"journal-path"`
	DBPath                string        `mapstructure:"db-path"`
	QueryTimeout          time.Duration `mapstructure:"query-timeout"`
	PersistAcrossRestarts bool          `mapstructure:"persist-across-restarts"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupDir            string        `mapstructure:"backup-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`

	LogFile       string `mapstructure:"log-file"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size-mb"`
	LogMaxBackups int    `mapstructure:"log-max-backups"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
