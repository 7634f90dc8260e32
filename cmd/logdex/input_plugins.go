package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/logdex/internal/logsource"
	"github.com/tinytelemetry/logdex/internal/tcpserver"
)

// NamedLogSource is the line source every input produces.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin builds one kind of line input. Disabled plugins are
// skipped at startup.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig selects and tunes the stream inputs.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
	TCP        tcpserver.ServerConfig
}

// buildInputPlugins returns the known inputs in start order: tcp, then stdin.
func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled, conf: cfg.TCP},
		stdinInputPlugin{piped: stdinIsPiped},
	}
}

// buildSources starts every enabled plugin. One that fails to start is
// reported and the rest still run.
func buildSources(ctx context.Context, plugins []InputSourcePlugin) (sources []NamedLogSource, errs []error) {
	for _, p := range plugins {
		if !p.Enabled() {
			continue
		}
		src, err := p.Build(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("input plugin %q: %w", p.Name(), err))
			continue
		}
		sources = append(sources, src)
	}
	return sources, errs
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	conf    tcpserver.ServerConfig
}

func (p tcpInputPlugin) Name() string  { return "tcp" }
func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(context.Context) (NamedLogSource, error) {
	srv := tcpserver.NewServer(p.addr, p.conf)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.addr, err)
	}
	return logsource.NewTCPSource(srv), nil
}

// stdinInputPlugin reads stdin only when something is piped in.
type stdinInputPlugin struct {
	piped func() bool
}

func (p stdinInputPlugin) Name() string  { return "stdin" }
func (p stdinInputPlugin) Enabled() bool { return p.piped != nil && p.piped() }

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx), nil
}

func stdinIsPiped() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}
