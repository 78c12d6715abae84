// Package main implements the tablecat binary: it loads a schema definition
// file into the table catalog and serves the catalog over HTTP, with a gRPC
// health endpoint reporting readiness.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkilian/tablecat/internal/app"
	"github.com/arkilian/tablecat/internal/config"
	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile   string
	envFile      string
	dataDir      string
	schemaFile   string
	schemaObject string
	httpAddr     string
	grpcAddr     string
	noManifest   bool
	checkOnly    bool
	showVersion  bool
}

func main() {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.envFile, "env-file", ".env", "Environment file loaded before reading TABLECAT_* variables")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&f.schemaFile, "schema", "", "Schema definition file to load")
	flag.StringVar(&f.schemaObject, "schema-object", "", "Schema definition object to fetch from storage")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP address for the catalog API")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC health server address")
	flag.BoolVar(&f.noManifest, "no-manifest", false, "Skip the manifest export after loading")
	flag.BoolVar(&f.checkOnly, "check", false, "Load the schema definitions, print the catalog and exit")
	flag.BoolVar(&f.showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tablecat - schema descriptors and table catalog\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tablecat [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tablecat --schema ./catalog.schema\n")
		fmt.Fprintf(os.Stderr, "  tablecat --schema ./catalog.schema --check\n")
		fmt.Fprintf(os.Stderr, "  tablecat --config /etc/tablecat/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_SCHEMA_FILE    Schema definition file\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_SCHEMA_OBJECT  Schema definition object in storage\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_HTTP_ADDR      HTTP address\n")
		fmt.Fprintf(os.Stderr, "  TABLECAT_GRPC_ADDR      gRPC address\n")
	}
	flag.Parse()

	if f.showVersion {
		fmt.Printf("tablecat version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load env file %s: %v", f.envFile, err)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if f.checkOnly {
		os.Exit(check(application))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Wait() }()

	select {
	case <-ctx.Done():
		log.Printf("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// check loads the schema definitions without serving and prints every table.
func check(application *app.App) int {
	n, err := application.LoadSchema(context.Background())
	if err != nil {
		log.Printf("Schema check failed: %v", err)
		return 1
	}
	for _, info := range application.Catalog().Tables() {
		pk := info.PrimaryKey
		if pk == "" {
			pk = "-"
		}
		fmt.Printf("%-24s id=%-12d pk=%-12s %s\n", info.Name, info.ID(), pk, info.Schema)
	}
	fmt.Printf("%d tables\n", n)
	return 0
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Flags take priority over file and environment.
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.schemaFile != "" {
		cfg.Schema.File = f.schemaFile
	}
	if f.schemaObject != "" {
		cfg.Schema.Object = f.schemaObject
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.noManifest {
		cfg.Manifest.Enabled = false
	}

	return cfg, nil
}

func printBanner(cfg *config.Config) {
	log.Printf("tablecat %s (commit: %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	if cfg.Schema.Object != "" {
		log.Printf("  Schema:   %s (%s storage)", cfg.Schema.Object, cfg.Storage.Type)
	} else {
		log.Printf("  Schema:   %s", cfg.Schema.File)
	}
	if cfg.HTTP.Enabled {
		log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	}
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	if cfg.Manifest.Enabled {
		log.Printf("  Manifest: enabled")
	}
}
