// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads canvas server and viewer settings from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/canvas/mirror"
	"github.com/gogpu/canvas/render"
	"github.com/gogpu/canvas/scene"
	"github.com/gogpu/canvas/store"
	"github.com/gogpu/canvas/transport"
)

// Config is the full configuration. Zero fields in a file keep their
// defaults.
type Config struct {
	Listen string `yaml:"listen" toml:"listen"`

	CanvasWidth   float64  `yaml:"canvas_width" toml:"canvas_width"`
	CanvasHeight  float64  `yaml:"canvas_height" toml:"canvas_height"`
	FrameInterval Duration `yaml:"frame_interval" toml:"frame_interval"`
	ResyncTimeout Duration `yaml:"resync_timeout" toml:"resync_timeout"`

	SendBuffer       int `yaml:"send_buffer" toml:"send_buffer"`
	SubscriberBuffer int `yaml:"subscriber_buffer" toml:"subscriber_buffer"`
	History          int `yaml:"history" toml:"history"`
	MaxMalformed     int `yaml:"max_malformed" toml:"max_malformed"`
	InteractionLog   int `yaml:"interaction_log" toml:"interaction_log"`

	PlaceholderColor string `yaml:"placeholder_color" toml:"placeholder_color"`
	BackgroundColor  string `yaml:"background_color" toml:"background_color"`
	TextureCacheSize int    `yaml:"texture_cache_size" toml:"texture_cache_size"`

	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:           "127.0.0.1:8080",
		CanvasWidth:      1280,
		CanvasHeight:     720,
		FrameInterval:    Duration(render.DefaultFrameInterval),
		ResyncTimeout:    Duration(mirror.DefaultResyncTimeout),
		SendBuffer:       transport.DefaultSendBuffer,
		SubscriberBuffer: store.DefaultSubscriberBuffer,
		History:          store.DefaultHistory,
		MaxMalformed:     transport.DefaultMaxMalformed,
		InteractionLog:   256,
		PlaceholderColor: "#808080",
		BackgroundColor:  "#ffffff",
		TextureCacheSize: render.DefaultTextureCacheSize,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads path over the defaults. The decoder is chosen by extension:
// .yaml or .yml for YAML, .toml for TOML.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("config: unsupported file type %q", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas size %gx%g must be positive", c.CanvasWidth, c.CanvasHeight))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, errors.New("frame_interval must be positive"))
	}
	if c.ResyncTimeout <= 0 {
		errs = append(errs, errors.New("resync_timeout must be positive"))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"send_buffer", c.SendBuffer},
		{"subscriber_buffer", c.SubscriberBuffer},
		{"history", c.History},
		{"max_malformed", c.MaxMalformed},
		{"interaction_log", c.InteractionLog},
		{"texture_cache_size", c.TextureCacheSize},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	if _, err := ParseColor(c.PlaceholderColor); err != nil {
		errs = append(errs, fmt.Errorf("placeholder_color: %w", err))
	}
	if _, err := ParseColor(c.BackgroundColor); err != nil {
		errs = append(errs, fmt.Errorf("background_color: %w", err))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("config: log_format %q must be text or json", c.LogFormat)
}

// Placeholder returns the parsed placeholder color.
func (c Config) Placeholder() scene.RGBA {
	col, err := ParseColor(c.PlaceholderColor)
	if err != nil {
		return render.DefaultPlaceholder
	}
	return col
}

// Background returns the parsed background color.
func (c Config) Background() scene.RGBA {
	col, err := ParseColor(c.BackgroundColor)
	if err != nil {
		return scene.White
	}
	return col
}

// ParseColor parses #rrggbb or #rrggbbaa.
func ParseColor(s string) (scene.RGBA, error) {
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return scene.RGBA{}, fmt.Errorf("color %q: want #rrggbb or #rrggbbaa", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return scene.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return scene.RGBA{
		R: float64(v>>24&0xff) / 255,
		G: float64(v>>16&0xff) / 255,
		B: float64(v>>8&0xff) / 255,
		A: float64(v&0xff) / 255,
	}, nil
}

// Duration is a time.Duration written as a string such as "250ms" in
// config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats d like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
