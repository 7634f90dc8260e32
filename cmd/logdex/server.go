package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/logdex/internal/backup"
	"github.com/tinytelemetry/logdex/internal/duckdb"
	"github.com/tinytelemetry/logdex/internal/httpserver"
	"github.com/tinytelemetry/logdex/internal/ingest"
	"github.com/tinytelemetry/logdex/internal/journal"
	"github.com/tinytelemetry/logdex/internal/logstore"
	"github.com/tinytelemetry/logdex/internal/socketrpc"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// runtime holds every started component of the service.
type runtime struct {
	cfg       appConfig
	store     *logstore.Store
	api       *httpserver.Server
	rpc       *socketrpc.Server
	backups   *backup.Manager
	mux       *SourceMultiplexer
	processor ingest.EnvelopeProcessor
}

// openBackend constructs the persistence backend named by cfg.Backend.
func openBackend(cfg appConfig) (logstore.Backend, error) {
	switch cfg.Backend {
	case backendJournal:
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		return j, nil
	case backendDuckDB:
		db, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		return db, nil
	case backendMemory:
		return logstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// startRuntime opens the store and starts the HTTP API, socket RPC, backups
// and the input sources built from plugins. On error everything already
// started is shut down again.
func startRuntime(ctx context.Context, cfg appConfig, plugins []InputSourcePlugin) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.close()
			rt = nil
		}
	}()

	backend, err := openBackend(cfg)
	if err != nil {
		return rt, err
	}
	rt.store, err = logstore.Open(backend, logstore.Options{PersistAcrossRestarts: cfg.PersistAcrossRestarts})
	if err != nil {
		_ = backend.Close()
		return rt, fmt.Errorf("failed to open store: %w", err)
	}

	rt.processor, err = ingest.NewEnvelopeProcessor(cfg.Processor, rt.store, "")
	if err != nil {
		return rt, err
	}

	rt.backups, err = backup.NewManager(rt.store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		Dir:      cfg.BackupDir,
		KeepLast: cfg.BackupKeepLast,
		Remote: backup.S3Config{
			BucketURL:    cfg.BackupBucketURL,
			Endpoint:     cfg.BackupS3Endpoint,
			Region:       cfg.BackupS3Region,
			AccessKey:    cfg.BackupS3AccessKey,
			SecretKey:    cfg.BackupS3SecretKey,
			SessionToken: cfg.BackupS3SessionToken,
			UseSSL:       cfg.BackupS3UseSSL,
		},
	})
	if err != nil {
		return rt, fmt.Errorf("failed to initialize backups: %w", err)
	}

	if cfg.APIEnabled {
		api := httpserver.NewServer(cfg.APIAddr, rt.store)
		if err := api.Start(); err != nil {
			return rt, fmt.Errorf("failed to start API server: %w", err)
		}
		rt.api = api
	}

	if cfg.SocketPath != "" {
		rpc := socketrpc.NewServer(cfg.SocketPath, rt.store)
		if err := rpc.Start(); err != nil {
			log.Printf("Warning: failed to start socket server: %v", err)
		} else {
			rt.rpc = rpc
		}
	}

	sources, errs := buildSources(ctx, plugins)
	for _, e := range errs {
		log.Printf("Error initializing %v", e)
	}
	rt.mux = NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	rt.mux.Start()
	return rt, nil
}

// ingestLoop drains the multiplexer. It returns nil when every source has
// closed, which leaves the errgroup context alive.
func (rt *runtime) ingestLoop() error {
	for env := range rt.mux.Lines() {
		rt.processor.ProcessEnvelope(env)
	}
	return nil
}

// tcpAddr returns the bound address of the TCP input, if one is running.
func (rt *runtime) tcpAddr() string {
	if rt.mux == nil {
		return ""
	}
	for _, src := range rt.mux.sources {
		if a, ok := src.(interface{ Addr() string }); ok {
			return a.Addr()
		}
	}
	return ""
}

// close stops inputs first so no line is accepted after the store closes.
func (rt *runtime) close() {
	if rt.mux != nil {
		rt.mux.Stop()
	}
	if rt.api != nil {
		if err := rt.api.Stop(); err != nil {
			log.Printf("server: api shutdown: %v", err)
		}
	}
	if rt.rpc != nil {
		rt.rpc.Stop()
	}
	if rt.backups != nil {
		rt.backups.Stop()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Printf("server: closing store: %v", err)
		}
	}
}

// runServer starts the service and blocks until SIGINT or SIGTERM. Inputs
// running dry (stdin at EOF, say) end ingestion but not the process, since
// the HTTP API and the query socket keep serving.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
	})
	rt, err := startRuntime(ctx, cfg, plugins)
	if err != nil {
		return err
	}
	defer rt.close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, rt)

	g, gctx := errgroup.WithContext(ctx)
	if rt.mux.HasSources() {
		g.Go(rt.ingestLoop)
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// configureRuntimeLogger sends the standard logger to a size-rotated file.
// Stdout stays free for the banner; stderr is the fallback.
func configureRuntimeLogger(cfg appConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.SetOutput(os.Stderr)
		log.Printf("server: log directory unavailable, logging to stderr: %v", err)
		return func() {}
	}

	out := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(out)
	return func() {
		log.SetOutput(io.Discard)
		_ = out.Close()
	}
}

func printStartupBanner(cfg appConfig, rt *runtime) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	row := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╔═╗═╗ ╦
    ║  ║ ║║ ╦ ║║║╣ ╔╩╦╝
    ╩═╝╚═╝╚═╝═╩╝╚═╝╩ ╚═`)

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		logo,
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Gateway"),
		"",
	}

	apiAddr := cfg.APIAddr
	if rt.api != nil {
		apiAddr = rt.api.Addr()
	}
	lines = append(lines, row(rt.api != nil, "HTTP API", apiAddr))
	tcpAddr := rt.tcpAddr()
	lines = append(lines, row(tcpAddr != "", "TCP Ingest", tcpAddr))
	lines = append(lines, row(rt.rpc != nil, "Unix Socket", shortenPath(cfg.SocketPath)))
	if names := rt.mux.SourceNames(); len(names) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Inputs", dim.Render(strings.Join(names, ", "))))
	}
	lines = append(lines, "", bold.Render("    Storage"), "")

	location := "in memory"
	switch cfg.Backend {
	case backendJournal:
		location = shortenPath(cfg.JournalPath)
	case backendDuckDB:
		location = shortenPath(cfg.DBPath)
	}
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Backend", dim.Render(cfg.Backend+" "+location)))
	mode := "fresh start"
	if cfg.PersistAcrossRestarts {
		mode = "persist across restarts"
	}
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Mode", dim.Render(mode)))
	if rt.backups != nil {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Snapshots", dim.Render(shortenPath(cfg.BackupDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Snapshots", dim.Render("disabled")))
	}

	lines = append(lines, "", bold.Render("    Runtime"), "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Processor", dim.Render(rt.processor.Name())))
	if cfg.LogFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Log File", dim.Render(shortenPath(cfg.LogFile))))
	}
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
