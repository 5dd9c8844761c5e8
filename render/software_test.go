package render

import (
	"context"
	"image/color"
	"testing"

	"github.com/gogpu/canvas/scene"
)

func TestSoftwareRendererFlat(t *testing.T) {
	g := graphOf(t,
		shape("r", 0, scene.Transform{X: 100, Y: 50, Width: 40, Height: 30}, scene.RGBA{R: 1, A: 1}),
	)
	target := NewPixmapTarget(800, 600)
	r := NewSoftwareRenderer(scene.White)
	if err := r.Render(target, BuildDrawList(context.Background(), g, Frame{Width: 800, Height: 600})); err != nil {
		t.Fatal(err)
	}

	red := color.RGBA{255, 0, 0, 255}
	white := color.RGBA{255, 255, 255, 255}
	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{100, 50, red},
		{139, 79, red},
		{120, 65, red},
		{99, 50, white},
		{140, 50, white},
		{100, 80, white},
		{0, 0, white},
	}
	for _, tt := range tests {
		if got := target.GetPixel(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestSoftwareRendererScalesToTarget(t *testing.T) {
	// Canvas units map onto the target's pixel size.
	g := graphOf(t, shape("r", 0, scene.Transform{X: 50, Y: 50, Width: 50, Height: 50}, scene.Black))
	target := NewPixmapTarget(200, 200)
	r := NewSoftwareRenderer(scene.White)
	if err := r.Render(target, BuildDrawList(context.Background(), g, Frame{Width: 100, Height: 100})); err != nil {
		t.Fatal(err)
	}
	if got := target.GetPixel(150, 150); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel(150,150) = %v, want black", got)
	}
	if got := target.GetPixel(99, 99); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel(99,99) = %v, want white", got)
	}
}

func TestSoftwareRendererZOrder(t *testing.T) {
	tr := scene.Transform{Width: 10, Height: 10}
	g := graphOf(t,
		shape("front", 1, tr, scene.RGBA{B: 1, A: 1}),
		shape("back", 0, tr, scene.RGBA{R: 1, A: 1}),
	)
	target := NewPixmapTarget(10, 10)
	if err := NewSoftwareRenderer(scene.Black).Render(target, BuildDrawList(context.Background(), g, Frame{Width: 10, Height: 10})); err != nil {
		t.Fatal(err)
	}
	if got := target.GetPixel(5, 5); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("pixel = %v, want blue on top", got)
	}
}

func TestSoftwareRendererTextured(t *testing.T) {
	tex := &Texture{Key: "t", Image: solidImage(4, 4, color.RGBA{0, 255, 0, 255})}
	e := img("i", "t", 0, scene.Transform{X: 2, Y: 2, Width: 4, Height: 4}, "")
	e.Color = scene.RGBA{R: 1, G: 0.5, B: 1, A: 1}
	g := graphOf(t, e)

	target := NewPixmapTarget(10, 10)
	calls := BuildDrawList(context.Background(), g, Frame{Width: 10, Height: 10, Textures: mapSource{"t": tex}})
	if err := NewSoftwareRenderer(scene.Black).Render(target, calls); err != nil {
		t.Fatal(err)
	}
	// Green texel tinted by 0.5 on the green channel.
	if got := target.GetPixel(4, 4); got != (color.RGBA{0, 128, 0, 255}) {
		t.Errorf("pixel(4,4) = %v, want {0 128 0 255}", got)
	}
	if got := target.GetPixel(1, 1); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel(1,1) = %v, want background", got)
	}
}

func TestSoftwareRendererWorldAnchored(t *testing.T) {
	// An orthographic camera covering the canvas places world-anchored
	// quads where the 2D mapping would.
	tex := &Texture{Key: "t", Image: solidImage(2, 2, color.RGBA{255, 255, 255, 255})}
	g := graphOf(t, img("i", "t", 0, scene.Transform{X: 2, Y: 2, Width: 4, Height: 4}, scene.AnchorWorld))

	target := NewPixmapTarget(10, 10)
	calls := BuildDrawList(context.Background(), g, Frame{
		Width: 10, Height: 10,
		ViewProjection: Ortho(0, 10, 10, 0, -1, 1),
		Textures:       mapSource{"t": tex},
	})
	if !calls[0].Uniforms.UseCamera() {
		t.Fatal("expected camera path")
	}
	if err := NewSoftwareRenderer(scene.Black).Render(target, calls); err != nil {
		t.Fatal(err)
	}
	if got := target.GetPixel(4, 4); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel(4,4) = %v, want white", got)
	}
	if got := target.GetPixel(8, 8); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel(8,8) = %v, want background", got)
	}
}

func TestSoftwareRendererPlaceholder(t *testing.T) {
	g := graphOf(t, img("i", "missing", 0, scene.Transform{Width: 10, Height: 10}, ""))
	target := NewPixmapTarget(10, 10)
	calls := BuildDrawList(context.Background(), g, Frame{Width: 10, Height: 10, Textures: mapSource{}})
	if err := NewSoftwareRenderer(scene.Black).Render(target, calls); err != nil {
		t.Fatal(err)
	}
	if got := target.GetPixel(5, 5); got != (color.RGBA{128, 128, 128, 255}) {
		t.Errorf("pixel = %v, want placeholder gray", got)
	}
}

func TestSoftwareRendererGPUOnlyTarget(t *testing.T) {
	target := NewSurfaceTarget(10, 10, 0, nil)
	if err := NewSoftwareRenderer(scene.Black).Render(target, nil); err == nil {
		t.Error("expected error for a target without pixels")
	}
	if err := NewSoftwareRenderer(scene.Black).Render(nil, nil); err == nil {
		t.Error("expected error for nil target")
	}
}

func TestSoftwareRendererClearsTarget(t *testing.T) {
	target := NewPixmapTarget(4, 4)
	target.Clear(color.RGBA{1, 2, 3, 4})
	if err := NewSoftwareRenderer(scene.White).Render(target, nil); err != nil {
		t.Fatal(err)
	}
	if got := target.GetPixel(3, 3); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel = %v, want white", got)
	}
}
