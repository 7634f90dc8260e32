package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinytelemetry/logdex/internal/socketrpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const usage = `Usage: logdex-cli [flags] <command> [argument]

Commands:
  all              list every record with its index
  level <bucket>   records in a filter bucket (error, warn, info, debug, message)
  search <word>    records containing word
  get <index>      a single record
  stats            store statistics
  reindex          rebuild the level and word indices

Flags:
`

func main() {
	var configPath string
	var socketPath string
	var format string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logdex/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to logdex service")
	flag.StringVar(&format, "format", "", "output format: text, json or yaml")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("Logdex CLI - Query Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if format != "" {
		if err := validateFormat(format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		cfg.Format = format
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := socketrpc.Dial(cfg.SocketPath, cfg.QueryTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot connect to logdex service at %s: %v\nIs the logdex service running? Start it with: logdex\n", cfg.SocketPath, err)
		os.Exit(1)
	}
	defer client.Close()

	if err := runCommand(client, flag.Args(), cfg.Format, os.Stdout); err != nil {
		client.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
