package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

func shape(id string, z int, tr scene.Transform, c scene.RGBA) scene.Element {
	return scene.Element{
		ID: id, Kind: scene.KindShape, Transform: tr, ZIndex: z, Color: c,
		Payload: &scene.ShapePayload{Shape: "rect"},
	}
}

func img(id, src string, z int, tr scene.Transform, anchor scene.Anchor) scene.Element {
	return scene.Element{
		ID: id, Kind: scene.KindImage, Transform: tr, ZIndex: z, Color: scene.White,
		Payload: &scene.ImagePayload{Source: src, Space: anchor},
	}
}

func graphOf(t *testing.T, elems ...scene.Element) *scene.Graph {
	t.Helper()
	g := scene.NewGraph()
	ops := make([]scene.Op, len(elems))
	for i, e := range elems {
		ops[i] = scene.Insert(e)
	}
	if _, err := g.Commit(ops); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return g
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return m
}

// mapSource serves textures from a map.
type mapSource map[string]*Texture

func (m mapSource) Texture(_ context.Context, key string) (*Texture, error) {
	if t, ok := m[key]; ok {
		return t, nil
	}
	return nil, canvas.ErrAssetUnavailable
}

func TestBuildDrawListOrder(t *testing.T) {
	tr := scene.Transform{Width: 10, Height: 10}
	g := graphOf(t,
		shape("top", 5, tr, scene.Black),
		shape("a", 0, tr, scene.Black),
		shape("bottom", -1, tr, scene.Black),
		shape("b", 0, tr, scene.Black),
	)
	calls := BuildDrawList(context.Background(), g, Frame{Width: 100, Height: 100})

	want := []string{"bottom", "a", "b", "top"}
	if len(calls) != len(want) {
		t.Fatalf("len = %d, want %d", len(calls), len(want))
	}
	for i, id := range want {
		if calls[i].ElementID != id {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i].ElementID, id)
		}
	}
}

func TestBuildDrawListVariants(t *testing.T) {
	tex := &Texture{Key: "logo.png", Image: solidImage(2, 2, color.RGBA{255, 0, 0, 255})}
	vp := Perspective(1, 1, 0.1, 10)
	g := graphOf(t,
		shape("s", 0, scene.Transform{X: 1, Y: 2, Width: 3, Height: 4}, scene.RGBA{R: 1, A: 1}),
		img("screen", "logo.png", 1, scene.Transform{Width: 5, Height: 5}, ""),
		img("world", "logo.png", 2, scene.Transform{Width: 5, Height: 5}, scene.AnchorWorld),
	)
	calls := BuildDrawList(context.Background(), g, Frame{
		Width: 800, Height: 600, ViewProjection: vp, Textures: mapSource{"logo.png": tex},
	})
	if len(calls) != 3 {
		t.Fatalf("len = %d, want 3", len(calls))
	}

	s := calls[0]
	if s.Variant != VariantFlat || s.Uniforms.Textured || s.Texture != nil {
		t.Errorf("shape call = %+v", s)
	}
	if s.Uniforms.Transform != (Vec4{1, 2, 3, 4}) || s.Uniforms.CanvasSize != (Vec4{800, 600, 0, 0}) {
		t.Errorf("shape uniforms = %+v", s.Uniforms)
	}
	if s.Uniforms.Color != (Vec4{1, 0, 0, 1}) {
		t.Errorf("shape color = %v", s.Uniforms.Color)
	}

	screen := calls[1]
	if screen.Variant != VariantTextured || screen.Texture != tex || !screen.Uniforms.Textured {
		t.Errorf("screen image call = %+v", screen)
	}
	if screen.Uniforms.UseCamera() {
		t.Error("screen-anchored image uses the camera")
	}
	if screen.Uniforms.ViewProjection != vp {
		t.Error("view-projection not copied")
	}

	world := calls[2]
	if !world.Uniforms.UseCamera() {
		t.Error("world-anchored image does not use the camera")
	}
}

func TestBuildDrawListPlaceholder(t *testing.T) {
	gray := scene.RGBA{R: 0.2, G: 0.2, B: 0.2, A: 1}
	tests := []struct {
		name  string
		frame Frame
		want  Vec4
	}{
		{"missing asset", Frame{Width: 10, Height: 10, Textures: mapSource{}}, ColorVec(DefaultPlaceholder)},
		{"no source", Frame{Width: 10, Height: 10}, ColorVec(DefaultPlaceholder)},
		{"configured color", Frame{Width: 10, Height: 10, Placeholder: &gray}, ColorVec(gray)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graphOf(t, img("i", "missing.png", 0, scene.Transform{Width: 1, Height: 1}, ""))
			calls := BuildDrawList(context.Background(), g, tt.frame)
			if len(calls) != 1 {
				t.Fatalf("len = %d, want 1", len(calls))
			}
			c := calls[0]
			if !c.Placeholder || c.Variant != VariantFlat || c.Texture != nil {
				t.Errorf("call = %+v, want flat placeholder", c)
			}
			if c.Uniforms.Color != tt.want {
				t.Errorf("color = %v, want %v", c.Uniforms.Color, tt.want)
			}
		})
	}
}

func TestBuildDrawListChartKey(t *testing.T) {
	chart := scene.Element{
		ID: "sales", Kind: scene.KindChart, Color: scene.White,
		Transform: scene.Transform{Width: 10, Height: 10},
		Payload:   &scene.ChartPayload{ChartType: "bar"},
	}
	if got := TextureKey(chart); got != "chart/sales" {
		t.Fatalf("TextureKey = %q", got)
	}
	tex := &Texture{Key: "chart/sales", Image: solidImage(1, 1, color.RGBA{A: 255})}
	calls := BuildDrawList(context.Background(), graphOf(t, chart), Frame{
		Width: 10, Height: 10, Textures: mapSource{"chart/sales": tex},
	})
	if calls[0].Texture != tex {
		t.Errorf("chart texture not resolved: %+v", calls[0])
	}
}

func TestBuildDrawListEmpty(t *testing.T) {
	calls := BuildDrawList(context.Background(), scene.NewGraph(), Frame{Width: 1, Height: 1})
	if len(calls) != 0 {
		t.Errorf("len = %d, want 0", len(calls))
	}
}

func TestLookupTextureNilImage(t *testing.T) {
	_, err := lookupTexture(context.Background(), mapSource{"k": {Key: "k"}}, "k")
	if !errors.Is(err, canvas.ErrAssetUnavailable) {
		t.Errorf("err = %v, want ErrAssetUnavailable", err)
	}
}
