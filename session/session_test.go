package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TIANLI0/maskpaint/magic"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func uniformImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newLoaded(t *testing.T, w, h int, opts Options, bridge *magic.Bridge) *Session {
	t.Helper()
	s := New(opts, bridge)
	t.Cleanup(s.Close)
	if err := s.LoadImage(uniformImage(w, h, color.RGBA{R: 90, G: 120, B: 60, A: 255})); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	return s
}

func dist(x, y int, c raster.Point) float64 {
	return raster.Distance(raster.Pt(float64(x)+0.5, float64(y)+0.5), c)
}

func TestDrawSingleClick(t *testing.T) {
	s := newLoaded(t, 30, 30, DefaultOptions(), nil)
	s.SetBrushSize(5)
	c := raster.Pt(10, 10)

	s.PointerDown(c, ms(0))
	s.PointerUp(ms(0))

	mask := s.Mask()
	if !raster.IsBinary(mask) {
		t.Fatal("mask is not binary after release")
	}
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			on := mask.RGBAAt(x, y).A == 255
			d := dist(x, y, c)
			if d < 4.5 && !on || d > 5.5 && on {
				t.Fatalf("pixel (%d,%d) at distance %.2f on=%v", x, y, d, on)
			}
		}
	}
}

func TestEraseSingleClick(t *testing.T) {
	s := newLoaded(t, 50, 50, DefaultOptions(), nil)
	if err := s.LoadMask(uniformImage(50, 50, color.White)); err != nil {
		t.Fatal(err)
	}
	s.SetMode(raster.ModeErase)
	s.SetBrushSize(10)
	c := raster.Pt(25, 25)

	s.PointerDown(c, ms(0))
	s.PointerUp(ms(0))

	mask := s.Mask()
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			got := mask.RGBAAt(x, y)
			d := dist(x, y, c)
			if d < 9.5 && got.A != 0 {
				t.Fatalf("pixel (%d,%d) should be off", x, y)
			}
			if d > 10.5 && got != raster.Foreground {
				t.Fatalf("pixel (%d,%d) should be unchanged, got %+v", x, y, got)
			}
		}
	}
}

func TestFillWholeRaster(t *testing.T) {
	s := newLoaded(t, 20, 20, DefaultOptions(), nil)
	if n := s.Fill(raster.Pt(5, 5), 30); n != 400 {
		t.Fatalf("filled %d pixels, want 400", n)
	}
	if raster.CountOn(s.Mask()) != 400 {
		t.Fatal("entire raster should be on")
	}
	if !s.Undo() || raster.CountOn(s.Mask()) != 0 {
		t.Fatal("fill should be undoable")
	}
}

func TestUndoRedo(t *testing.T) {
	s := newLoaded(t, 20, 20, DefaultOptions(), nil)
	s.PointerDown(raster.Pt(10, 10), ms(0))
	s.PointerUp(ms(0))
	drawn := s.Mask()

	v := s.Version()
	if !s.Undo() {
		t.Fatal("undo failed")
	}
	if s.Version() == v {
		t.Fatal("undo must signal a content change")
	}
	if raster.CountOn(s.Mask()) != 0 {
		t.Fatal("undo did not restore empty mask")
	}
	if !s.Redo() {
		t.Fatal("redo failed")
	}
	if got := s.Mask(); string(got.Pix) != string(drawn.Pix) {
		t.Fatal("redo did not restore drawn mask")
	}
	if s.Redo() {
		t.Fatal("redo with empty future should be a no-op")
	}
}

func TestMoveThrottle(t *testing.T) {
	opts := DefaultOptions()
	opts.MoveInterval = 20 * time.Millisecond
	s := newLoaded(t, 60, 20, opts, nil)
	s.SetBrushSize(2)

	s.PointerDown(raster.Pt(5, 10), ms(0))
	if s.PointerMove(raster.Pt(20, 10), ms(5)) {
		t.Fatal("move within interval should be dropped")
	}
	if s.Mask().RGBAAt(15, 10).A != 0 {
		t.Fatal("dropped move must not rasterize")
	}
	if !s.PointerMove(raster.Pt(40, 10), ms(25)) {
		t.Fatal("move after interval should be processed")
	}
	s.PointerMove(raster.Pt(55, 10), ms(30))
	s.PointerUp(ms(31))

	mask := s.Mask()
	for x := 5; x <= 54; x++ {
		if mask.RGBAAt(x, 10).A != 255 {
			t.Fatalf("gap at x=%d", x)
		}
	}
}

type stubPredictor struct {
	calls atomic.Int32
	fail  bool
	rect  image.Rectangle
}

func (p *stubPredictor) Predict(_ context.Context, req *model.PredictRequest) (*model.PredictResponse, error) {
	p.calls.Add(1)
	if p.fail {
		return &model.PredictResponse{Status: model.StatusError, Message: "boom"}, nil
	}
	pred := raster.New(req.Crops[0].CanvasWidth, req.Crops[0].CanvasHeight)
	for y := p.rect.Min.Y; y < p.rect.Max.Y; y++ {
		for x := p.rect.Min.X; x < p.rect.Max.X; x++ {
			pred.SetRGBA(x, y, raster.Foreground)
		}
	}
	enc, err := raster.EncodeBase64PNG(pred)
	if err != nil {
		return nil, err
	}
	return &model.PredictResponse{Status: model.StatusSuccess, MergedMaskBase64: enc}, nil
}

func magicSession(t *testing.T, p magic.Predictor) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.CropSize = 20
	opts.CropInterval = 200
	s := newLoaded(t, 500, 40, opts, magic.NewBridge(p, model.AssistParams{Mode: "magic"}, time.Second))
	s.SetMode(raster.ModeMagic)
	return s
}

func awaitTask(t *testing.T, s *Session) *magic.Task {
	t.Helper()
	select {
	case task := <-s.Completions():
		return task
	case <-time.After(5 * time.Second):
		t.Fatal("no assist completion")
		return nil
	}
}

func TestMagicStrokeMergesPrediction(t *testing.T) {
	p := &stubPredictor{rect: image.Rect(100, 10, 120, 30)}
	s := magicSession(t, p)

	// 已有的覆盖不能被合并移除
	s.SetMode(raster.ModeDraw)
	s.PointerDown(raster.Pt(300, 20), ms(0))
	s.PointerUp(ms(0))
	before := raster.CountOn(s.Mask())
	s.SetMode(raster.ModeMagic)

	s.PointerDown(raster.Pt(10, 20), ms(100))
	if s.Overlay().RGBAAt(10, 20).A == 0 {
		t.Fatal("magic stroke should highlight the overlay")
	}
	s.PointerMove(raster.Pt(460, 20), ms(130))

	st := s.State()
	if st.PendingCrops != 2 || st.ArcLength != 450 {
		t.Fatalf("pending crops=%d arc=%v, want 2 and 450", st.PendingCrops, st.ArcLength)
	}
	s.PointerUp(ms(140))

	st = s.State()
	if st.PendingCrops != 0 || st.ArcLength != 0 || st.InFlight != 1 {
		t.Fatalf("accumulator not reset on pointer-up: %+v", st)
	}
	if raster.CountOn(s.Overlay()) != 0 {
		t.Fatal("overlay must be cleared on pointer-up")
	}

	added, err := s.ApplyAssist(awaitTask(t, s))
	if err != nil {
		t.Fatalf("ApplyAssist: %v", err)
	}
	if added != 400 {
		t.Fatalf("added %d pixels, want 400", added)
	}
	mask := s.Mask()
	if mask.RGBAAt(110, 20) != raster.Foreground {
		t.Fatal("prediction not merged")
	}
	if raster.CountOn(mask) != before+400 || mask.RGBAAt(300, 20) != raster.Foreground {
		t.Fatal("merge must be additive")
	}
	if !raster.IsBinary(mask) {
		t.Fatal("mask not binary after merge")
	}
	if p.calls.Load() != 1 {
		t.Fatalf("predictor called %d times", p.calls.Load())
	}
}

func TestMagicStrokeFailureLeavesMask(t *testing.T) {
	s := magicSession(t, &stubPredictor{fail: true})
	s.PointerDown(raster.Pt(10, 20), ms(0))
	s.PointerMove(raster.Pt(460, 20), ms(30))
	s.PointerUp(ms(40))

	if st := s.State(); st.PendingCrops != 0 || st.ArcLength != 0 {
		t.Fatalf("accumulator not reset: %+v", st)
	}
	_, err := s.ApplyAssist(awaitTask(t, s))
	if !errors.Is(err, magic.ErrAssistFailed) {
		t.Fatalf("expected ErrAssistFailed, got %v", err)
	}
	if raster.CountOn(s.Mask()) != 0 {
		t.Fatal("failed request modified the mask")
	}
}

func TestMagicShortStrokeSendsNothing(t *testing.T) {
	p := &stubPredictor{}
	s := magicSession(t, p)
	s.PointerDown(raster.Pt(10, 20), ms(0))
	s.PointerMove(raster.Pt(150, 20), ms(30))
	s.PointerUp(ms(40))

	if st := s.State(); st.InFlight != 0 || st.PendingCrops != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	s.PointerDown(raster.Pt(10, 20), ms(100))
	s.PointerMove(raster.Pt(460, 20), ms(130))
	s.Abort()
	if st := s.State(); st.InFlight != 0 || st.PendingCrops != 0 || st.ArcLength != 0 {
		t.Fatalf("abort must reset without sending: %+v", st)
	}
	if p.calls.Load() != 0 {
		t.Fatal("no request expected")
	}
}

func TestNoImageIsNoop(t *testing.T) {
	s := New(DefaultOptions(), nil)
	defer s.Close()

	s.PointerDown(raster.Pt(1, 1), ms(0))
	s.PointerMove(raster.Pt(5, 5), ms(50))
	s.PointerUp(ms(60))
	if s.Fill(raster.Pt(1, 1), 30) != 0 || s.Undo() || s.Redo() || s.RenderPreview() {
		t.Fatal("operations without an image should be no-ops")
	}
	if err := s.LoadMask(uniformImage(2, 2, color.White)); !errors.Is(err, ErrNoImage) {
		t.Fatalf("LoadMask error = %v", err)
	}
}

func TestPreviewCoalesces(t *testing.T) {
	s := newLoaded(t, 20, 20, DefaultOptions(), nil)
	s.SetPreviewColor(color.RGBA{R: 255, A: 255})
	for i := 0; i < 5; i++ {
		s.PointerDown(raster.Pt(float64(3+i*3), 10), ms(i*100))
		s.PointerUp(ms(i*100 + 1))
	}
	if !s.RenderPreview() {
		t.Fatal("first render after mutations should run")
	}
	if s.RenderPreview() {
		t.Fatal("no mutation since last render, pass should be skipped")
	}
	if got := s.Preview().RGBAAt(3, 10); got != (color.RGBA{R: 255, A: 255}) {
		t.Fatalf("preview pixel = %+v", got)
	}
	if s.Preview().RGBAAt(0, 0).A != 0 {
		t.Fatal("preview must be transparent outside the mask")
	}
}

func TestLoadMaskScalesAndBinarizes(t *testing.T) {
	s := newLoaded(t, 10, 10, DefaultOptions(), nil)
	half := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			half.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 200})
		}
	}
	if err := s.LoadMask(half); err != nil {
		t.Fatal(err)
	}
	if raster.CountOn(s.Mask()) != 100 || !raster.IsBinary(s.Mask()) {
		t.Fatal("loaded mask should be scaled and binarized")
	}
	if !s.Undo() || raster.CountOn(s.Mask()) != 0 {
		t.Fatal("mask load should be undoable")
	}
}

func TestLoadMaskGrayLabel(t *testing.T) {
	s := newLoaded(t, 10, 10, DefaultOptions(), nil)
	label := image.NewGray(image.Rect(0, 0, 10, 10))
	label.SetGray(3, 4, color.Gray{Y: 255})

	if err := s.LoadMask(label); err != nil {
		t.Fatal(err)
	}
	mask := s.Mask()
	if n := raster.CountOn(mask); n != 1 {
		t.Fatalf("on pixels = %d, want 1", n)
	}
	if mask.RGBAAt(3, 4) != raster.Foreground {
		t.Fatal("white label pixel not loaded")
	}
}

func TestDrawTwoPointClick(t *testing.T) {
	single := newLoaded(t, 30, 30, DefaultOptions(), nil)
	twice := newLoaded(t, 30, 30, DefaultOptions(), nil)
	c := raster.Pt(10, 10)

	single.PointerDown(c, ms(0))
	single.PointerUp(ms(0))

	twice.PointerDown(c, ms(0))
	twice.PointerMove(c, ms(30))
	twice.PointerUp(ms(30))

	a, b := single.Mask(), twice.Mask()
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) differs: single %+v, two-point %+v", x, y, a.RGBAAt(x, y), b.RGBAAt(x, y))
			}
			on := b.RGBAAt(x, y).A == 255
			d := dist(x, y, c)
			if d < 4.5 && !on || d > 5.5 && on {
				t.Fatalf("pixel (%d,%d) at distance %.2f on=%v", x, y, d, on)
			}
		}
	}
}
