package raster

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// DefaultPreviewColor 预览默认颜色
var DefaultPreviewColor = color.RGBA{G: 255, A: 255}

// Compositor 以任意颜色重绘掩码形状，不修改掩码本身
type Compositor struct {
	Color color.RGBA
	src   *image.Uniform
}

func NewCompositor(c color.RGBA) *Compositor {
	return &Compositor{Color: c, src: image.NewUniform(c)}
}

// SetColor 修改预览颜色
func (c *Compositor) SetColor(col color.RGBA) {
	c.Color = col
	c.src = image.NewUniform(col)
}

// Render 把 mask 的形状以 c.Color 写入 dst：
// 只在掩码 alpha 非零处输出颜色（source-in），其余位置透明。
func (c *Compositor) Render(dst, mask *Buffer) {
	if !dst.SameSize(mask) {
		return
	}
	if c.src == nil {
		c.src = image.NewUniform(c.Color)
	}
	xdraw.DrawMask(dst.RGBA(), dst.Bounds(), c.src, image.Point{}, mask.RGBA(), image.Point{}, xdraw.Src)
}
