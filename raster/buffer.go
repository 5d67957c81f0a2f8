// Package raster 提供掩码编辑所需的像素缓冲与像素级操作：
// 笔刷盖印、泛洪填充、二值化、预测合并以及预览着色。
//
// 所有操作都在调用方拥有的 *Buffer 上同步执行，不做任何加锁；
// 传入 nil 或空缓冲时静默返回，因为图像加载之前就可能被调用。
package raster

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Buffer 固定步长的 RGBA 像素缓冲（预乘alpha，每像素4字节）
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// New 创建 w*h 的全透明缓冲，尺寸非法时返回 nil
func New(w, h int) *Buffer {
	if w <= 0 || h <= 0 {
		return nil
	}
	return &Buffer{Width: w, Height: h, Pix: make([]uint8, w*h*4)}
}

// FromImage 将任意图像转换为从原点开始的缓冲
func FromImage(img image.Image) *Buffer {
	if img == nil {
		return nil
	}
	r := img.Bounds()
	b := New(r.Dx(), r.Dy())
	if b == nil {
		return nil
	}
	xdraw.Draw(b.RGBA(), b.Bounds(), img, r.Min, xdraw.Src)
	return b
}

// Empty 缓冲不可用（未加载）时返回 true
func (b *Buffer) Empty() bool {
	return b == nil || b.Width <= 0 || b.Height <= 0 || len(b.Pix) != b.Width*b.Height*4
}

func (b *Buffer) Bounds() image.Rectangle {
	if b == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, b.Width, b.Height)
}

// In 判断坐标是否在缓冲内
func (b *Buffer) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// Offset 返回 (x,y) 像素首字节下标
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}

func (b *Buffer) RGBAAt(x, y int) color.RGBA {
	if b.Empty() || !b.In(x, y) {
		return color.RGBA{}
	}
	i := b.Offset(x, y)
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
}

func (b *Buffer) SetRGBA(x, y int, c color.RGBA) {
	if b.Empty() || !b.In(x, y) {
		return
	}
	i := b.Offset(x, y)
	b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = c.R, c.G, c.B, c.A
}

// RGBA 返回共享底层像素的 *image.RGBA 视图
func (b *Buffer) RGBA() *image.RGBA {
	if b.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	return &image.RGBA{Pix: b.Pix, Stride: b.Width * 4, Rect: b.Bounds()}
}

// Clone 深拷贝
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Clear 全部置为透明
func (b *Buffer) Clear() {
	if b.Empty() {
		return
	}
	clear(b.Pix)
}

// Fill 用同一颜色填满缓冲
func (b *Buffer) Fill(c color.RGBA) {
	if b.Empty() {
		return
	}
	for i := 0; i < len(b.Pix); i += 4 {
		b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}

// SameSize 判断两个缓冲尺寸是否一致
func (b *Buffer) SameSize(o *Buffer) bool {
	return !b.Empty() && !o.Empty() && b.Width == o.Width && b.Height == o.Height
}
