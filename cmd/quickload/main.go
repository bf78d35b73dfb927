package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/logger"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/observability"
	"github.com/ajitpratap0/quickload/pkg/registry"

	// Import all available plugins to register them
	_ "github.com/ajitpratap0/quickload/pkg/fileinput"
	_ "github.com/ajitpratap0/quickload/pkg/inputs/inline"
	_ "github.com/ajitpratap0/quickload/pkg/inputs/sqlinput"
	_ "github.com/ajitpratap0/quickload/pkg/parsers/avro"
	_ "github.com/ajitpratap0/quickload/pkg/parsers/csv"
	_ "github.com/ajitpratap0/quickload/pkg/parsers/jsonl"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	var metricsAddr string

	root := &cobra.Command{
		Use:   "quickload",
		Short: "quickload - pluggable bulk data loader",
		Long: `quickload loads typed records from files and databases through input and
parser plugins. Jobs are described in a YAML or JSON file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quickload v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// List command to show available plugins
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available plugins",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tDESCRIPTION")
			for _, info := range registry.GetRegistry().Info() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Kind, info.Name, info.Description)
			}
			_ = w.Flush()
		},
	})

	root.AddCommand(newPreviewCommand(), newRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// job is a loaded job file with the engine set up for it.
type job struct {
	src    config.Source
	system config.SystemConfig
	log    *zap.Logger
}

// loadJob reads the job file and initializes logging and tracing from its
// observability section.
func loadJob(path string) (*job, error) {
	src, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	system, err := config.LoadSystemConfig(src)
	if err != nil {
		return nil, err
	}

	obs := system.Observability
	// stdout carries the command output
	lc := logger.Config{Level: obs.LogLevel, Encoding: obs.LogFormat, OutputPaths: []string{"stderr"}}
	if err := logger.Setup(lc); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logger configuration, using defaults: %v\n", err)
	}

	oc := observability.DefaultConfig()
	oc.Tracing.Enabled = obs.EnableTracing
	oc.Tracing.ServiceName = obs.ServiceName
	oc.Tracing.ServiceVersion = version
	if err := observability.Initialize(oc); err != nil {
		return nil, err
	}

	log := logger.Get().With(zap.String("component", "quickload-cli"), zap.String("job", path))
	return &job{src: src, system: system, log: log}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func shutdown(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Shutdown(ctx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}
	_ = logger.Sync()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
}
