package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Mode 笔刷模式
type Mode int

const (
	ModeDraw Mode = iota
	ModeErase
	ModeMagic
)

func (m Mode) String() string {
	switch m {
	case ModeDraw:
		return "draw"
	case ModeErase:
		return "erase"
	case ModeMagic:
		return "magic"
	default:
		return "unknown"
	}
}

// ParseMode 解析 draw/erase/magic
func ParseMode(s string) (Mode, error) {
	switch s {
	case "draw", "brush":
		return ModeDraw, nil
	case "erase":
		return ModeErase, nil
	case "magic":
		return ModeMagic, nil
	}
	return ModeDraw, fmt.Errorf("unknown brush mode %q", s)
}

var (
	// Foreground 掩码"开"像素颜色
	Foreground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	// MagicHighlight rgba(255,0,255,0.9)，预乘
	MagicHighlight = color.RGBA{R: 230, G: 0, B: 230, A: 230}
)

// DefaultSpacing 相邻盖印之间的距离（像素）
const DefaultSpacing = 1.0

// circle 用四段三次贝塞尔逼近圆
const kappa = 0.5522847498

// Rasterizer 把圆盘盖印到缓冲上。零值不可用，使用 NewRasterizer。
type Rasterizer struct {
	z   vector.Rasterizer
	cov *image.Alpha
}

func NewRasterizer() *Rasterizer {
	return &Rasterizer{}
}

// Stroke 沿 from→to 以 spacing 为间距盖印半径为 radius 的圆盘，
// from 为 nil 时只在 to 处盖印一次。返回本段行进的弧长。
// dst 不可用时不绘制，但仍返回弧长。
func (r *Rasterizer) Stroke(dst *Buffer, from *Point, to Point, radius, spacing float64, mode Mode) float64 {
	if from == nil {
		r.Stamp(dst, to, radius, mode)
		return 0
	}
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	d := Distance(*from, to)
	if d <= spacing {
		r.Stamp(dst, to, radius, mode)
		return d
	}

	step := spacing / d
	n := int(math.Floor(d / spacing))
	last := 0.0
	for i := 1; i <= n; i++ {
		last = float64(i) * step
		r.Stamp(dst, Lerp(*from, to, last), radius, mode)
	}
	if last < 1 {
		r.Stamp(dst, to, radius, mode)
	}
	return d
}

// Stamp 在 c 处盖印一个实心圆盘
func (r *Rasterizer) Stamp(dst *Buffer, c Point, radius float64, mode Mode) {
	if dst.Empty() || radius <= 0 {
		return
	}
	box := image.Rect(
		int(math.Floor(c.X-radius)), int(math.Floor(c.Y-radius)),
		int(math.Ceil(c.X+radius)), int(math.Ceil(c.Y+radius)),
	)
	clip := box.Intersect(dst.Bounds())
	if clip.Empty() {
		return
	}

	w, h := box.Dx(), box.Dy()
	r.z.Reset(w, h)
	r.z.DrawOp = draw.Src
	addCircle(&r.z,
		float32(c.X-float64(box.Min.X)),
		float32(c.Y-float64(box.Min.Y)),
		float32(radius))

	if r.cov == nil || r.cov.Rect.Dx() < w || r.cov.Rect.Dy() < h {
		r.cov = image.NewAlpha(image.Rect(0, 0, max(w, 64), max(h, 64)))
	}
	area := image.Rect(0, 0, w, h)
	r.z.Draw(r.cov, area, image.Opaque, image.Point{})

	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		covRow := r.cov.Pix[(y-box.Min.Y)*r.cov.Stride:]
		for x := clip.Min.X; x < clip.Max.X; x++ {
			m := uint32(covRow[x-box.Min.X])
			if m == 0 {
				continue
			}
			i := dst.Offset(x, y)
			px := dst.Pix[i : i+4 : i+4]
			switch mode {
			case ModeErase:
				clearMin(px, m)
			case ModeMagic:
				coverMax(px, MagicHighlight, m)
			default:
				coverMax(px, Foreground, m)
			}
		}
	}
}

func addCircle(z *vector.Rasterizer, cx, cy, r float32) {
	k := r * kappa
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	z.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	z.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	z.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	z.ClosePath()
}

func mul255(a, b uint32) uint32 {
	return (a*b + 127) / 255
}

// coverMax 以覆盖率取最大值的方式写入颜色 s。
// 同一位置重复盖印结果不变，边缘抗锯齿不会累积。
func coverMax(px []uint8, s color.RGBA, m uint32) {
	sa := mul255(uint32(s.A), m)
	if sa <= uint32(px[3]) {
		return
	}
	px[0] = uint8(mul255(uint32(s.R), m))
	px[1] = uint8(mul255(uint32(s.G), m))
	px[2] = uint8(mul255(uint32(s.B), m))
	px[3] = uint8(sa)
}

// clearMin 把 alpha 压到不超过 255-m，颜色按比例缩放（预乘）。重复擦除同一位置结果不变。
func clearMin(px []uint8, m uint32) {
	limit := 255 - m
	a := uint32(px[3])
	if a <= limit {
		return
	}
	px[0] = uint8(uint32(px[0]) * limit / a)
	px[1] = uint8(uint32(px[1]) * limit / a)
	px[2] = uint8(uint32(px[2]) * limit / a)
	px[3] = uint8(limit)
}
