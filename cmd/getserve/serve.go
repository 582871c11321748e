package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/getserve/internal/config"
	"github.com/vango-dev/getserve/internal/errors"
	"github.com/vango-dev/getserve/pkg/admin"
	"github.com/vango-dev/getserve/pkg/fileserve"
	"github.com/vango-dev/getserve/pkg/middleware"
	"github.com/vango-dev/getserve/pkg/server"
)

// serveFlags override getserve.json for one run.
type serveFlags struct {
	host        string
	port        int
	backlog     int
	capacity    int
	family      []string
	root        string
	index       string
	bucket      string
	keepAlive   bool
	idleTimeout time.Duration
	adminAddr   string
}

func serveCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve files until interrupted",
		Long: `Serve files from a directory or an S3 bucket.

Settings come from getserve.json and can be overridden with flags.
The server stops on SIGINT or SIGTERM, letting connections in flight
finish for up to shutdownTimeout.

Examples:
  getserve serve
  getserve serve --port 8080 --root ./site
  getserve serve --capacity 2 --family ipv4
  getserve serve --bucket my-files --admin 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := setupLogger(cmd.ErrOrStderr(), global, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, nil)
		},
	}

	flags.register(cmd)

	return cmd
}

// register defines the serve flags on cmd.
func (sf *serveFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&sf.host, "host", "H", "", "Host to bind to (default: every local address)")
	f.IntVarP(&sf.port, "port", "p", config.DefaultPort, "Port to listen on, 0 for an ephemeral port")
	f.IntVar(&sf.backlog, "backlog", 0, "Listen queue depth (default from getserve.json)")
	f.IntVarP(&sf.capacity, "capacity", "n", 0, "Connections handled at once (default from getserve.json)")
	f.StringSliceVar(&sf.family, "family", nil, "Address family order, e.g. ipv4,ipv6")
	f.StringVarP(&sf.root, "root", "r", "", "Directory to serve")
	f.StringVar(&sf.index, "index", "", "File served for /")
	f.StringVar(&sf.bucket, "bucket", "", "Serve from this S3 bucket instead of a directory")
	f.BoolVar(&sf.keepAlive, "keep-alive", true, "Serve several requests per connection")
	f.DurationVar(&sf.idleTimeout, "idle-timeout", 0, "Close connections idle this long (0 disables)")
	f.StringVar(&sf.adminAddr, "admin", "", "Admin HTTP address for /healthz, /metrics and /stats")
}

// apply copies the flags the user set onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Host = f.host
	}
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("backlog") {
		cfg.Backlog = f.backlog
	}
	if changed("capacity") {
		cfg.Capacity = f.capacity
	}
	if changed("family") {
		cfg.FamilyOrder = f.family
	}
	if changed("root") {
		cfg.Root = f.root
	}
	if changed("index") {
		cfg.Index = f.index
	}
	if changed("bucket") {
		cfg.S3.Bucket = f.bucket
	}
	if changed("keep-alive") {
		keepAlive := f.keepAlive
		cfg.KeepAlive = &keepAlive
	}
	if changed("idle-timeout") {
		cfg.IdleTimeout = f.idleTimeout.String()
	}
	if changed("admin") {
		cfg.Admin.Address = f.adminAddr
	}
}

// stack is a configured file server with its optional admin server.
type stack struct {
	server *server.Server
	admin  *admin.Server
	store  fileserve.Store
}

// Close releases the store.
func (s *stack) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// openStore returns the store selected by cfg.
func openStore(cfg *config.Config) (fileserve.Store, error) {
	if cfg.UsesS3() {
		client := fileserve.NewS3Client(fileserve.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		return fileserve.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.MaxFileSize), nil
	}

	root := cfg.RootPath()
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.New("E124").
			WithDetail(fmt.Sprintf("Cannot serve %s.", root)).
			WithSuggestion("Create the directory or pass --root.").
			Wrap(err)
	}
	if !info.IsDir() {
		return nil, errors.New("E124").
			WithDetail(fmt.Sprintf("%s is not a directory.", root))
	}
	return fileserve.OpenDir(root, cfg.MaxFileSize)
}

// buildStack wires the store, middleware, metrics and admin server
// described by cfg.
func buildStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	sc, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}
	sc.Logger = logger
	sc.Handler = fileserve.NewHandler(store,
		fileserve.WithIndex(cfg.Index),
		fileserve.WithLogger(logger))
	sc.Middleware = []server.Middleware{
		middleware.OpenTelemetry(),
		middleware.AccessLog(logger, slog.LevelInfo),
		middleware.Prometheus(),
	}
	sc.AdmissionObserver = middleware.AdmissionObserver()
	sc.ConnStateHook = func(_ net.Conn, state server.ConnState) {
		middleware.RecordConnState(state)
	}

	srv, err := server.New(sc)
	if err != nil {
		if c, ok := store.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}

	st := &stack{server: srv, store: store}
	if cfg.Admin.Address != "" {
		st.admin = admin.New(srv, admin.Config{
			Address:       cfg.Admin.Address,
			StatsInterval: cfg.StatsInterval(),
			Logger:        logger,
		})
	}
	return st, nil
}

// runServe serves until ctx is done or the listener fails. ready, when not
// nil, is called with the bound listener address.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready func(net.Addr)) error {
	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	bl, err := st.server.Start(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if st.admin != nil {
		go func() {
			adminErr <- st.admin.ListenAndServe(ctx)
		}()
	}

	if ready != nil {
		ready(bl.Addr())
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- st.server.Serve(ctx, bl)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
	case err := <-adminErr:
		if err != nil {
			logger.Error("admin server failed", "error", err)
			runErr = fmt.Errorf("admin: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down...")
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), st.server.Config().ShutdownTimeout)
	defer stop()
	if err := st.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if st.admin != nil {
		st.admin.Close()
	}
	return runErr
}
