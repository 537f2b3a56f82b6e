// Command browserd serves the browser automation tools over the autopilot
// JSON-RPC WebSocket protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/autopilot/pkg/tools/browser"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

const version = "0.1.0"

type serverConfig struct {
	Addr          string
	Path          string
	CDPEndpoint   string
	Launch        bool
	Headless      bool
	Install       bool
	ScreenshotDir string
	Debug         bool
	ShowVersion   bool
}

func main() {
	cfg := parseFlags()
	if cfg.ShowVersion {
		fmt.Printf("browserd v%s\n", version)
		return
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := newServerLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("browserd stopped", "err", err)
		os.Exit(1)
	}
}

func parseFlags() *serverConfig {
	cfg := &serverConfig{}
	defaults := browser.DefaultOptions()

	flag.StringVar(&cfg.Addr, "addr", ":8765", "Listen address")
	flag.StringVar(&cfg.Path, "path", "/rpc", "WebSocket endpoint path")
	flag.StringVar(&cfg.CDPEndpoint, "cdp", defaults.CDPEndpoint, "Chrome DevTools endpoint to attach to")
	flag.BoolVar(&cfg.Launch, "launch", false, "Launch a bundled Chromium instead of attaching over CDP")
	flag.BoolVar(&cfg.Headless, "headless", true, "Run the launched browser headless (with -launch)")
	flag.BoolVar(&cfg.Install, "install", false, "Install the Playwright driver and Chromium on first connect")
	flag.StringVar(&cfg.ScreenshotDir, "screenshots", defaults.ScreenshotDir, "Directory for take_screenshot output")
	flag.BoolVar(&cfg.Debug, "debug", false, "Log every request")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "browserd - browser tool server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: browserd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Attach to a Chrome started with --remote-debugging-port=9222\n")
		fmt.Fprintf(os.Stderr, "  browserd\n\n")
		fmt.Fprintf(os.Stderr, "  # Launch a headless Chromium\n")
		fmt.Fprintf(os.Stderr, "  browserd -launch -install\n\n")
	}

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *serverConfig, logger *slog.Logger) error {
	opts := browser.DefaultOptions()
	opts.Install = cfg.Install
	opts.ScreenshotDir = cfg.ScreenshotDir
	if cfg.Launch {
		opts.CDPEndpoint = ""
		opts.Headless = cfg.Headless
	} else {
		opts.CDPEndpoint = cfg.CDPEndpoint
	}

	b := browser.New(opts)
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close browser", "err", err)
		}
	}()

	srv, err := toolserver.New("browserd", version, browser.Tools(b), toolserver.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create tool server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, srv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok sessions=%d calls=%d browser=%t\n", srv.Sessions(), srv.Calls(), b.Connected())
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("browserd listening", "addr", cfg.Addr, "path", cfg.Path, "cdp", opts.CDPEndpoint)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "sessions", srv.Sessions(), "calls", srv.Calls())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
