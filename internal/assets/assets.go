// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package assets loads and decodes image assets for textured elements.
//
// Supported formats are PNG, JPEG, BMP, TIFF and WebP. Decoded images are
// handed to the renderer's texture cache, which converts and caches them.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"io/fs"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP
)

// Asset errors.
var (
	// ErrUnsupportedFormat is returned when no registered decoder
	// recognizes the data.
	ErrUnsupportedFormat = errors.New("assets: unsupported format")

	// ErrEmptyData is returned for zero-length assets.
	ErrEmptyData = errors.New("assets: empty data")

	// ErrInvalidKey is returned for keys that are not clean relative paths.
	ErrInvalidKey = errors.New("assets: invalid key")
)

// Decode decodes an image, detecting the format from its content.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if errors.Is(err, image.ErrFormat) {
		return nil, "", ErrUnsupportedFormat
	}
	if err != nil {
		return nil, "", fmt.Errorf("assets: decode: %w", err)
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// FSLoader resolves texture keys as paths in a file system. A leading
// slash is ignored, so "/img/logo.png" and "img/logo.png" name the same
// file. Keys that climb out of the root are rejected.
type FSLoader struct {
	FS fs.FS
}

// Dir returns a loader rooted at the directory dir.
func Dir(dir string) FSLoader {
	return FSLoader{FS: os.DirFS(dir)}
}

// LoadAsset implements render.AssetLoader.
func (l FSLoader) LoadAsset(ctx context.Context, key string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(key, "/")
	if !fs.ValidPath(name) || name == "." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	img, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", name, err)
	}
	return img, nil
}
