package cli

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/config"
	"github.com/banshee-data/tmsnav/internal/navsvc"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Network  string
	Commands string
	Planning string
	Scene    SceneOptions

	// factory replaces real UDP sockets in tests.
	factory network.UDPSocketFactory
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the navigation modules and their admin routes",
		Long: `Bind the image, visualization and robot channels from the network config,
run the modules and serve their state and actions under /debug/.

Examples:
  tmsnav serve
  tmsnav serve --listen 127.0.0.1:8090 --network config/network.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", opts.Listen)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to listen", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, ln)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "admin listen address")
	cmd.Flags().StringVar(&opts.Network, "network", config.DefaultNetworkPath, "network endpoint config")
	cmd.Flags().StringVar(&opts.Commands, "commands", config.DefaultCommandsPath, "command opcode config")
	cmd.Flags().StringVar(&opts.Planning, "planning", config.DefaultPlanningPath, "planning config")
	opts.Scene.addFlags(cmd)

	return cmd
}

func (o *ServeOptions) serviceConfig() (navsvc.Config, error) {
	var cfg navsvc.Config
	var err error
	if cfg.Network, err = config.LoadNetworkConfig(o.Network); err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load network config", err)
	}
	if cfg.Commands, err = config.LoadCommandSet(o.Commands); err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load command config", err)
	}
	if cfg.Planning, err = config.LoadPlanningConfig(o.Planning); err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load planning config", err)
	}
	if cfg.Skin, cfg.Brain, err = o.Scene.Build(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid head model", err)
	}
	cfg.Factory = o.factory
	if o.Verbose {
		cfg.OnSample = func(s telemetry.Sample) {
			log.Printf("%s: %s", s.KindName, s.Annotation())
		}
	}
	return cfg, nil
}

// runServe runs the service and the admin server on ln until ctx ends.
func runServe(ctx context.Context, opts *ServeOptions, ln net.Listener) error {
	defer ln.Close()
	cfg, err := opts.serviceConfig()
	if err != nil {
		return err
	}
	svc, err := navsvc.New(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start modules", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	// module loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("module loop stopped: %v", err)
		}
		log.Print("module loop terminated")
	}()

	mux := http.NewServeMux()
	svc.AttachAdminRoutes(mux)
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Verbose {
				log.Printf("got request %s %q", r.Method, r.URL.Path)
			}
			mux.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()
	log.Printf("admin routes on http://%s/debug/", ln.Addr())

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = WrapExitError(ExitCommandError, "admin server failed", err)
		}
		cancel()
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return result
}
