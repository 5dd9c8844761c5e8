package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/canvas/scene"
)

func floatAt(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func TestUniformsFlatLayout(t *testing.T) {
	u := Uniforms{
		Transform:  Vec4{100, 50, 40, 30},
		CanvasSize: Vec4{800, 600, 0, 0},
		Color:      Vec4{1, 0.5, 0.25, 1},
	}
	b, err := u.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != FlatUniformSize {
		t.Fatalf("len = %d, want %d", len(b), FlatUniformSize)
	}
	want := []float32{100, 50, 40, 30, 800, 600, 0, 0, 1, 0.5, 0.25, 1}
	for i, w := range want {
		if got := floatAt(b, i); got != w {
			t.Errorf("float %d = %v, want %v", i, got, w)
		}
	}
	// First byte of 100.0f is the low byte of 0x42C80000.
	if b[0] != 0x00 || b[3] != 0x42 {
		t.Errorf("not little-endian: % x", b[:4])
	}
}

func TestUniformsTexturedLayout(t *testing.T) {
	vp := Identity()
	vp[12] = 7
	u := Uniforms{
		Transform:      Vec4{1, 2, 3, 4},
		CanvasSize:     Vec4{800, 600, 1, 0},
		Color:          Vec4{1, 1, 1, 1},
		ViewProjection: vp,
		Textured:       true,
	}
	b, err := u.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != TexturedUniformSize || u.Size() != TexturedUniformSize {
		t.Fatalf("len = %d, Size = %d, want %d", len(b), u.Size(), TexturedUniformSize)
	}
	if got := floatAt(b, 6); got != 1 {
		t.Errorf("use_camera = %v, want 1", got)
	}
	for i := range 16 {
		if got := floatAt(b, 12+i); got != vp[i] {
			t.Errorf("view_projection[%d] = %v, want %v", i, got, vp[i])
		}
	}
}

func TestUniformsAppendBinary(t *testing.T) {
	u := Uniforms{Color: Vec4{1, 1, 1, 1}}
	prefix := []byte{0xAA}
	b, err := u.AppendBinary(prefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1+FlatUniformSize || b[0] != 0xAA {
		t.Errorf("AppendBinary did not append: len %d", len(b))
	}
}

func TestAlignUniform(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 0},
		{1, 256},
		{48, 256},
		{112, 256},
		{256, 256},
		{257, 512},
	}
	for _, tt := range tests {
		if got := alignUniform(tt.in); got != tt.want {
			t.Errorf("alignUniform(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestColorVec(t *testing.T) {
	got := ColorVec(scene.RGBA{R: 0.25, G: 0.5, B: 0.75, A: 1})
	if got != (Vec4{0.25, 0.5, 0.75, 1}) {
		t.Errorf("ColorVec = %v", got)
	}
}
