// dtfd - Dense Tick Format database server
//
// Usage:
//
//	dtfd [flags]
//
// Flags:
//
//	-host string             Bind address (default "0.0.0.0")
//	-port int                Bind port (default 9001)
//	-dtf-folder string       Data directory (default "db")
//	-autoflush               Enable periodic autoflush
//	-flush-interval int      Records between autoflushes per book (default 1000)
//	-granularity int         History sampling period, seconds (0 disables)
//	-q-capacity int          History ring-buffer depth per book (default 300)
//	-max-clients int         Maximum concurrent connections (default 10000)
//	-channel-size int        Broker event channel depth (default 1024)
//	-log-level string        debug, info, warn, error (default "info")
//	-config string           Path to a JSON config file (default "dtfd.json")
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dtfdb/dtfd/internal/bookstore"
	"github.com/dtfdb/dtfd/internal/broker"
	"github.com/dtfdb/dtfd/internal/config"
	"github.com/dtfdb/dtfd/internal/history"
	"github.com/dtfdb/dtfd/internal/metricsexport"
	"github.com/dtfdb/dtfd/internal/uploader"
	"github.com/dtfdb/dtfd/internal/version"
)

// envOrDefault returns the environment variable value if set, otherwise the fallback.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// scanArgForConfig finds the value of a -config/--config flag in args without
// registering it on a FlagSet, so it can be resolved before config.Load runs
// and before every other flag's config-derived default is computed. flag's
// own "-name value" / "-name=value" forms are both honored.
func scanArgForConfig(args []string, fallback string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return fallback
}

func main() {
	// Three-tier precedence: flags > DTF_* environment variables > JSON
	// config file > hardcoded defaults (SPEC_FULL.md §6). -config itself is
	// read by scanning os.Args directly, ahead of the single flag.Parse
	// below, since config.Load must run before the rest of the flags' own
	// (config-derived) defaults can be computed.
	configPath := scanArgForConfig(os.Args[1:], envOrDefault("DTF_CONFIG", "dtfd.json"))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", configPath, err)
	}

	flag.String("config", configPath, "Path to a JSON config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	host := flag.String("host", envOrDefault("DTF_HOST", cfg.Host), "Bind address")
	port := flag.Int("port", envIntOrDefault("DTF_PORT", cfg.Port), "Bind port")
	dtfFolder := flag.String("dtf-folder", envOrDefault("DTF_DTF_FOLDER", cfg.DTFFolder), "Data directory")
	autoflush := flag.Bool("autoflush", envBoolOrDefault("DTF_AUTOFLUSH", cfg.Autoflush), "Enable periodic autoflush")
	flushInterval := flag.Int("flush-interval", envIntOrDefault("DTF_FLUSH_INTERVAL", cfg.FlushInterval), "Records between autoflushes per book")
	granularity := flag.Int("granularity", envIntOrDefault("DTF_GRANULARITY", cfg.Granularity), "History sampling period, seconds (0 disables)")
	qCapacity := flag.Int("q-capacity", envIntOrDefault("DTF_Q_CAPACITY", cfg.QCapacity), "History ring-buffer depth per book")
	maxClients := flag.Int("max-clients", envIntOrDefault("DTF_MAX_CLIENTS", cfg.MaxClients), "Maximum concurrent connections")
	channelSize := flag.Int("channel-size", envIntOrDefault("DTF_CHANNEL_SIZE", cfg.ChannelSize), "Broker event channel depth")
	logLevel := flag.String("log-level", envOrDefault("DTF_LOG_LEVEL", cfg.LogLevel), "debug, info, warn, error")

	flag.Parse()

	if *showVersion {
		fmt.Printf("dtfd v%s (built %s)\n", version.Version, version.BuildTime)
		return
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.DTFFolder = *dtfFolder
	cfg.Autoflush = *autoflush
	cfg.FlushInterval = *flushInterval
	cfg.Granularity = *granularity
	cfg.QCapacity = *qCapacity
	cfg.MaxClients = *maxClients
	cfg.ChannelSize = *channelSize
	cfg.LogLevel = *logLevel

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	fmt.Println(`
  ____ _____ _____     _
 |  _ \_   _|  ___|  __| |
 | | | || | | |_    / _' |
 | |_| || | |  _|  | (_| |
 |____/ |_| |_|     \__,_|
`)
	slog.Info("dtfd starting", "version", version.Version, "dtf_folder", cfg.DTFFolder)

	if err := os.MkdirAll(cfg.DTFFolder, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store := bookstore.New(cfg.DTFFolder, cfg.Autoflush, cfg.FlushInterval, uploader.NoopUploader{})
	if err := store.ScanDir(); err != nil {
		log.Fatalf("Failed to scan data directory: %v", err)
	}

	sampler := history.NewSampler(cfg.QCapacity)

	b := broker.New(store, sampler, broker.Config{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		MaxClients:  cfg.MaxClients,
		ChannelSize: cfg.ChannelSize,
		Granularity: time.Duration(cfg.Granularity) * time.Second,
		Exporter:    metricsexport.NoopExporter{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("dtfd received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	go b.Run(ctx)

	if err := b.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	store.FlushAll()
	slog.Info("dtfd shutdown complete")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
