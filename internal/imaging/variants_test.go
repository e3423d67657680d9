package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// gradient builds a small asymmetric test grid.
func gradient(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 256)})
		}
	}
	return g
}

func TestFromBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(40, 30)); err != nil {
		t.Fatal(err)
	}

	g, err := FromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if g.Rect.Dx() != 40 || g.Rect.Dy() != 30 {
		t.Errorf("dims = %dx%d", g.Rect.Dx(), g.Rect.Dy())
	}
}

func TestFromBytesInvalid(t *testing.T) {
	if _, err := FromBytes([]byte("definitely not an image")); err == nil {
		t.Error("expected error for garbage bytes")
	}
	if _, err := FromBytes(nil); err == nil {
		t.Error("expected error for empty buffer")
	}
}

func TestGrayscaleNormalizesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 25, 15))
	g := Grayscale(src)
	if g.Rect.Min.X != 0 || g.Rect.Min.Y != 0 {
		t.Errorf("origin = %v", g.Rect.Min)
	}
	if g.Rect.Dx() != 20 || g.Rect.Dy() != 10 {
		t.Errorf("dims = %dx%d", g.Rect.Dx(), g.Rect.Dy())
	}
}

func TestVariantsOrderAndNames(t *testing.T) {
	vs := Variants(gradient(64, 48))

	wantFirst := []string{
		"identity", "equalize", "sharpen",
		"gamma-1.4", "gamma-1.8", "gamma-2.2",
		"adaptive-mean", "adaptive-gaussian",
	}
	if len(vs) < len(wantFirst) {
		t.Fatalf("only %d variants", len(vs))
	}
	for i, name := range wantFirst {
		if vs[i].Name != name {
			t.Errorf("variant[%d] = %q, want %q", i, vs[i].Name, name)
		}
	}

	seen := map[string]bool{}
	for _, v := range vs {
		if seen[v.Name] {
			t.Errorf("duplicate variant name %q", v.Name)
		}
		seen[v.Name] = true
		if v.Img == nil {
			t.Errorf("variant %q has nil image", v.Name)
		}
	}
	for _, name := range []string{"otsu", "otsu-inv", "rotate-90", "rotate-180", "rotate-270", "crop-center"} {
		if !seen[name] {
			t.Errorf("missing variant %q", name)
		}
	}
}

func TestVariantsDoNotMutateBase(t *testing.T) {
	g := gradient(32, 32)
	before := make([]byte, len(g.Pix))
	copy(before, g.Pix)

	Variants(g)

	if !bytes.Equal(before, g.Pix) {
		t.Error("base image was mutated by variant generation")
	}
}

func TestRotations(t *testing.T) {
	g := gradient(5, 3)
	r90 := Rotate90(g)
	if r90.Rect.Dx() != 3 || r90.Rect.Dy() != 5 {
		t.Fatalf("rotate90 dims = %dx%d", r90.Rect.Dx(), r90.Rect.Dy())
	}
	// top-left moves to top-right under a clockwise turn
	if got, want := r90.GrayAt(2, 0).Y, g.GrayAt(0, 0).Y; got != want {
		t.Errorf("rotate90 corner = %d, want %d", got, want)
	}

	r180 := Rotate180(g)
	if got, want := r180.GrayAt(4, 2).Y, g.GrayAt(0, 0).Y; got != want {
		t.Errorf("rotate180 corner = %d, want %d", got, want)
	}

	// three more quarter turns bring rotate90 back to the original
	back := Rotate90(Rotate90(Rotate90(r90)))
	if !bytes.Equal(back.Pix, g.Pix) {
		t.Error("four quarter turns did not restore the image")
	}

	r270 := Rotate270(g)
	if got, want := r270.GrayAt(0, 4).Y, g.GrayAt(0, 0).Y; got != want {
		t.Errorf("rotate270 corner = %d, want %d", got, want)
	}
}

func TestThresholdsAreBinary(t *testing.T) {
	g := gradient(50, 50)
	for _, tc := range []struct {
		name string
		img  *image.Gray
	}{
		{"otsu", OtsuThreshold(g, false)},
		{"otsu-inv", OtsuThreshold(g, true)},
		{"adaptive-mean", AdaptiveMeanThreshold(g, 31, 5)},
		{"adaptive-gaussian", AdaptiveGaussianThreshold(g, 31, 3)},
	} {
		for i, p := range tc.img.Pix {
			if p != 0 && p != 255 {
				t.Errorf("%s: pix[%d] = %d, want 0 or 255", tc.name, i, p)
				break
			}
		}
	}
}

func TestOtsuPolarity(t *testing.T) {
	g := gradient(16, 16)
	plain := OtsuThreshold(g, false)
	inv := OtsuThreshold(g, true)
	for i := range plain.Pix {
		if plain.Pix[i] == inv.Pix[i] {
			t.Fatalf("pix[%d] identical across polarities", i)
		}
	}
}

func TestScaleFloors(t *testing.T) {
	g := gradient(20, 20)
	s := Scale(g, 0.75)
	if s.Rect.Dx() != 32 || s.Rect.Dy() != 32 {
		t.Errorf("small downscale should floor at 32, got %dx%d", s.Rect.Dx(), s.Rect.Dy())
	}

	up := Scale(gradient(100, 60), 2.0)
	if up.Rect.Dx() != 200 || up.Rect.Dy() != 120 {
		t.Errorf("upscale dims = %dx%d", up.Rect.Dx(), up.Rect.Dy())
	}
}

func TestCenterCrop(t *testing.T) {
	g := gradient(100, 100)
	c := CenterCrop(g, 0.7)
	if c.Rect.Dx() != 70 || c.Rect.Dy() != 70 {
		t.Fatalf("crop dims = %dx%d", c.Rect.Dx(), c.Rect.Dy())
	}
	if got, want := c.GrayAt(0, 0).Y, g.GrayAt(15, 15).Y; got != want {
		t.Errorf("crop origin = %d, want %d", got, want)
	}
}

func TestGammaLightens(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = 60
	}
	out := Gamma(g, 2.2)
	if out.Pix[0] <= 60 {
		t.Errorf("gamma 2.2 should lift midtones, got %d", out.Pix[0])
	}
}
