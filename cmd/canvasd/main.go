// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command canvasd hosts shared canvas sessions.
//
// Each session holds one authoritative scene. Tools drive it over HTTP
// (render, interact, export) and mirrors follow it over WebSocket.
//
//	canvasd --config canvas.yaml --listen :8080 --assets ./public
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/config"
	"github.com/gogpu/canvas/internal/assets"
	"github.com/gogpu/canvas/session"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "canvasd: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	cfg    config.Config
	assets string
}

func parseFlags(args []string) (options, error) {
	var (
		configPath string
		opts       options
		cli        config.Config
	)
	flags := pflag.NewFlagSet("canvasd", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "YAML or TOML config file")
	flags.StringVar(&opts.assets, "assets", "", "directory image sources are resolved against for exports")
	flags.StringVarP(&cli.Listen, "listen", "l", "", "listen address")
	flags.Float64Var(&cli.CanvasWidth, "canvas-width", 0, "canvas width in pixels")
	flags.Float64Var(&cli.CanvasHeight, "canvas-height", 0, "canvas height in pixels")
	flags.IntVar(&cli.History, "history", 0, "deltas kept per session for lagging mirrors")
	flags.StringVar(&cli.LogLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&cli.LogFormat, "log-format", "", "text or json")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	opts.cfg = config.Default()
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return opts, err
		}
		opts.cfg = cfg
	}

	// Flags override the file.
	if flags.Changed("listen") {
		opts.cfg.Listen = cli.Listen
	}
	if flags.Changed("canvas-width") {
		opts.cfg.CanvasWidth = cli.CanvasWidth
	}
	if flags.Changed("canvas-height") {
		opts.cfg.CanvasHeight = cli.CanvasHeight
	}
	if flags.Changed("history") {
		opts.cfg.History = cli.History
	}
	if flags.Changed("log-level") {
		opts.cfg.LogLevel = cli.LogLevel
	}
	if flags.Changed("log-format") {
		opts.cfg.LogFormat = cli.LogFormat
	}
	return opts, opts.cfg.Validate()
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := opts.cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	canvas.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, opts)
}

func serve(ctx context.Context, opts options) error {
	sessOpts := session.FromConfig(opts.cfg)
	if opts.assets != "" {
		sessOpts = append(sessOpts, session.WithAssetLoader(assets.Dir(opts.assets)))
	}
	mgr := session.NewManager(sessOpts...)

	srv := &http.Server{
		Addr:              opts.cfg.Listen,
		Handler:           newRouter(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		canvas.Logger().Info("canvasd: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		canvas.Logger().Info("canvasd: shutting down", "sessions", mgr.Len())
		// WebSocket connections are hijacked, so the server does not
		// track them; closing the sessions ends them.
		mgr.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
