package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/banshee-data/phylo.report/internal/api"
	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/config"
	"github.com/banshee-data/phylo.report/internal/db"
	"github.com/banshee-data/phylo.report/internal/pipeline"
	"github.com/banshee-data/phylo.report/internal/stage"
)

const shutdownTimeout = 5 * time.Second

type serveFlags struct {
	configPath string
	listen     string
	uploadsDir string
	resultsDir string
	database   string
	clustalo   string
	iqtree     string
	threads    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP pipeline server",
		Long: `Starts the HTTP server. Settings come from the YAML config file and
may be overridden by flags. A missing default config file is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, &flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.GetListen())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.GetListen(), err)
			}
			return serve(ctx, cfg, ln)
		},
	}

	addServeFlags(cmd.Flags(), &flags)
	return cmd
}

func addServeFlags(f *pflag.FlagSet, flags *serveFlags) {
	f.StringVar(&flags.configPath, "config", config.DefaultConfigPath, "path to YAML config file")
	f.StringVar(&flags.listen, "listen", "", "HTTP listen address (default :8080)")
	f.StringVar(&flags.uploadsDir, "uploads-dir", "", "directory for raw uploads")
	f.StringVar(&flags.resultsDir, "results-dir", "", "root of per-request workspaces")
	f.StringVar(&flags.database, "database", "", "registry database file (default in-memory)")
	f.StringVar(&flags.clustalo, "clustalo", "", "alignment executable")
	f.StringVar(&flags.iqtree, "iqtree", "", "tree inference executable")
	f.StringVar(&flags.threads, "threads", "", "IQ-TREE -nt value")
}

// loadServeConfig reads the config file and applies any flags the user set.
func loadServeConfig(cmd *cobra.Command, flags *serveFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(flags.configPath)
	} else {
		cfg, err = config.LoadOrDefault(flags.configPath)
	}
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag string
		val  string
		dst  **string
	}{
		{"listen", flags.listen, &cfg.Listen},
		{"uploads-dir", flags.uploadsDir, &cfg.UploadsDir},
		{"results-dir", flags.resultsDir, &cfg.ResultsDir},
		{"database", flags.database, &cfg.Database},
		{"clustalo", flags.clustalo, &cfg.Aligner.Path},
		{"iqtree", flags.iqtree, &cfg.Inferrer.Path},
		{"threads", flags.threads, &cfg.Inferrer.Threads},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			v := o.val
			*o.dst = &v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve wires the pipeline from cfg and serves HTTP on ln until ctx is done.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	registry, err := db.NewDB(cfg.GetDatabase())
	if err != nil {
		ln.Close()
		return fmt.Errorf("open registry: %w", err)
	}
	defer registry.Close()

	store, err := artifact.NewStore(cfg.GetUploadsDir(), cfg.GetResultsDir(), nil)
	if err != nil {
		ln.Close()
		return err
	}

	coordinator, err := pipeline.New(pipeline.Options{
		Store:    store,
		Registry: registry,
		Runner:   stage.NewRunner(nil, nil),
		Aligner: pipeline.ToolOptions{
			Path:    cfg.GetAlignerPath(),
			Timeout: cfg.GetAlignerTimeout(),
		},
		Inferrer: pipeline.ToolOptions{
			Path:    cfg.GetInferrerPath(),
			Threads: cfg.GetInferrerThreads(),
			Timeout: cfg.GetInferrerTimeout(),
		},
		IdleTimeout: cfg.GetAdmissionIdleTimeout(),
	})
	if err != nil {
		ln.Close()
		return err
	}

	server := &http.Server{
		Handler:           api.NewServer(coordinator, store, cfg.GetMaxUploadBytes()).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("phylo listening on %s (uploads %s, results %s)", ln.Addr(), cfg.GetUploadsDir(), cfg.GetResultsDir())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}
