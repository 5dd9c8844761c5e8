package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func encoded(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{10, 20, 30, 255})
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testFS(t *testing.T) fstest.MapFS {
	t.Helper()
	return fstest.MapFS{
		"logo.png":      {Data: encoded(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) })},
		"img/photo.bmp": {Data: encoded(t, func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) })},
		"scan.tiff":     {Data: encoded(t, func(b *bytes.Buffer, m image.Image) error { return tiff.Encode(b, m, nil) })},
		"notes.txt":     {Data: []byte("not an image")},
		"empty.png":     {Data: nil},
	}
}

func TestFSLoader(t *testing.T) {
	l := FSLoader{FS: testFS(t)}
	for _, key := range []string{"logo.png", "/logo.png", "img/photo.bmp", "scan.tiff"} {
		t.Run(key, func(t *testing.T) {
			img, err := l.LoadAsset(context.Background(), key)
			if err != nil {
				t.Fatalf("LoadAsset: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
				t.Errorf("bounds = %v", b)
			}
			r, g, b, a := img.At(1, 1).RGBA()
			if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 || a>>8 != 255 {
				t.Errorf("pixel = %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
			}
		})
	}
}

func TestFSLoaderErrors(t *testing.T) {
	l := FSLoader{FS: testFS(t)}
	tests := []struct {
		key  string
		want error
	}{
		{"../secret.png", ErrInvalidKey},
		{"img/../../x.png", ErrInvalidKey},
		{"", ErrInvalidKey},
		{"missing.png", fs.ErrNotExist},
		{"notes.txt", ErrUnsupportedFormat},
		{"empty.png", ErrEmptyData},
	}
	for _, tt := range tests {
		if _, err := l.LoadAsset(context.Background(), tt.key); !errors.Is(err, tt.want) {
			t.Errorf("LoadAsset(%q) err = %v, want %v", tt.key, err, tt.want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.LoadAsset(ctx, "logo.png"); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled err = %v", err)
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := Dir(dir).LoadAsset(context.Background(), "nothing.png"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}
