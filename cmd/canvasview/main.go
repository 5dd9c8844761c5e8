// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command canvasview is a headless mirror. It follows one canvasd session
// over WebSocket, renders every new scene version and writes the frame to
// a PNG file.
//
//	canvasview --url ws://localhost:8080/sessions/<id>/ws --out canvas.png
//
// Rendering uses the GPU when a backend can be opened and the software
// renderer otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/config"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "canvasview: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (viewerOptions, error) {
	var (
		configPath string
		opts       viewerOptions
		cli        config.Config
	)
	flags := pflag.NewFlagSet("canvasview", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "YAML or TOML config file")
	flags.StringVarP(&opts.url, "url", "u", "", "session WebSocket URL (required)")
	flags.StringVarP(&opts.out, "out", "o", "canvas.png", "PNG file written after every frame")
	flags.StringVar(&opts.codec, "codec", "json", "wire codec: json or cbor")
	flags.StringVar(&opts.backend, "backend", "auto", "auto, software, vulkan, metal, dx12 or gl")
	flags.StringVar(&opts.assets, "assets", "", "directory image sources are resolved against")
	flags.BoolVar(&opts.spirv, "spirv", false, "compile shaders to SPIR-V")
	flags.Float64Var(&cli.CanvasWidth, "canvas-width", 0, "canvas width in pixels")
	flags.Float64Var(&cli.CanvasHeight, "canvas-height", 0, "canvas height in pixels")
	flags.StringVar(&cli.LogLevel, "log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if opts.url == "" {
		return opts, errors.New("--url is required")
	}

	opts.cfg = config.Default()
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return opts, err
		}
		opts.cfg = cfg
	}
	if flags.Changed("canvas-width") {
		opts.cfg.CanvasWidth = cli.CanvasWidth
	}
	if flags.Changed("canvas-height") {
		opts.cfg.CanvasHeight = cli.CanvasHeight
	}
	if flags.Changed("log-level") {
		opts.cfg.LogLevel = cli.LogLevel
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

	v, err := newViewer(opts)
	if err != nil {
		return err
	}
	defer v.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := v.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
