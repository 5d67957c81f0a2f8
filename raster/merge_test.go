package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestMergeIsAdditive(t *testing.T) {
	mask := New(8, 8)
	mask.SetRGBA(0, 0, Foreground)
	mask.SetRGBA(7, 7, Foreground)

	pred := image.NewGray(image.Rect(0, 0, 8, 8))
	pred.SetGray(3, 3, color.Gray{Y: 255})
	pred.SetGray(4, 4, color.Gray{Y: 201})
	pred.SetGray(5, 5, color.Gray{Y: 200})

	added, err := Merge(mask, pred, DefaultMergeThreshold)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if added != 2 {
		t.Fatalf("added %d pixels, want 2", added)
	}
	for _, p := range []image.Point{{0, 0}, {7, 7}, {3, 3}, {4, 4}} {
		if mask.RGBAAt(p.X, p.Y) != Foreground {
			t.Fatalf("pixel %v should be on", p)
		}
	}
	if mask.RGBAAt(5, 5).A != 0 {
		t.Fatal("pixel at threshold must not be merged")
	}
	if !IsBinary(mask) {
		t.Fatal("mask not binary after merge")
	}
}

func TestMergeRequiresAllChannels(t *testing.T) {
	mask := New(2, 1)
	pred := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	pred.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 100, A: 255})
	pred.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	if _, err := Merge(mask, pred, DefaultMergeThreshold); err != nil {
		t.Fatal(err)
	}
	if mask.RGBAAt(0, 0).A != 0 || mask.RGBAAt(1, 0).A != 255 {
		t.Fatalf("unexpected merge result %v", mask.Pix)
	}
}

func TestMergeBlackPredictionKeepsMask(t *testing.T) {
	mask := New(4, 4)
	mask.Fill(Foreground)
	pred := image.NewGray(image.Rect(0, 0, 4, 4))
	if _, err := Merge(mask, pred, DefaultMergeThreshold); err != nil {
		t.Fatal(err)
	}
	if CountOn(mask) != 16 {
		t.Fatal("merge removed existing coverage")
	}
}

func TestMergeSizeMismatch(t *testing.T) {
	mask := New(4, 4)
	pred := image.NewGray(image.Rect(0, 0, 5, 4))
	if _, err := Merge(mask, pred, DefaultMergeThreshold); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestLighten(t *testing.T) {
	dst := New(4, 4)
	part := image.NewGray(image.Rect(0, 0, 2, 2))
	part.SetGray(0, 0, color.Gray{Y: 255})
	Lighten(dst, part, image.Pt(3, 3))
	if dst.RGBAAt(3, 3) != Foreground {
		t.Fatalf("got %+v", dst.RGBAAt(3, 3))
	}
}
