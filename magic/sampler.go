// Package magic 实现魔术笔：描边过程中按弧长截取原图方块，
// 批量送往分割辅助服务，并把返回的合并掩码交给会话合并。
package magic

import (
	"image"
	"image/color"
	"time"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
)

const (
	DefaultCropSize     = 200
	DefaultCropInterval = 200.0
)

// PadColor 截取区域超出图像边界部分的填充色
var PadColor = color.RGBA{A: 255}

// Sampler 累积描边弧长，每跨过一个间隔截取一个方块
type Sampler struct {
	Size     int
	Interval float64

	crops []model.Crop
	arc   float64
	now   func() time.Time
}

func NewSampler(size int, interval float64) *Sampler {
	if size <= 0 {
		size = DefaultCropSize
	}
	if interval <= 0 {
		interval = DefaultCropInterval
	}
	return &Sampler{Size: size, Interval: interval, now: time.Now}
}

// Reset 清空已截取方块与弧长
func (s *Sampler) Reset() {
	s.crops = nil
	s.arc = 0
}

// Advance 把本次移动的距离 d 累加到弧长上，并在 at 处补齐应有的方块数量。
// 一次大幅移动可能跨过多个间隔，此时会连续截取多个方块。返回新增数量。
func (s *Sampler) Advance(src *raster.Buffer, d float64, at raster.Point) int {
	s.arc += d
	if src.Empty() {
		return 0
	}
	expected := int(s.arc / s.Interval)
	added := 0
	center := at.Floor()
	for len(s.crops) < expected {
		crop, err := s.capture(src, center)
		if err != nil {
			// 下一次移动会重新补齐
			utils.Logger.Warn("failed to capture crop",
				zap.Int("x", center.X), zap.Int("y", center.Y), zap.Error(err))
			break
		}
		s.crops = append(s.crops, crop)
		added++
	}
	return added
}

func (s *Sampler) capture(src *raster.Buffer, center image.Point) (model.Crop, error) {
	region := Extract(src, center, s.Size)
	encoded, err := raster.EncodeBase64PNG(region)
	if err != nil {
		return model.Crop{}, err
	}
	return model.Crop{
		ID:           len(s.crops),
		ImageBase64:  encoded,
		CenterX:      center.X,
		CenterY:      center.Y,
		Width:        s.Size,
		Height:       s.Size,
		CanvasWidth:  src.Width,
		CanvasHeight: src.Height,
		Timestamp:    s.now().UnixMilli(),
		LineDistance: s.arc,
	}, nil
}

// Crops 当前累积的方块（只读）
func (s *Sampler) Crops() []model.Crop {
	return s.crops
}

func (s *Sampler) ArcLength() float64 {
	return s.arc
}

// Take 取走累积的方块并重置状态
func (s *Sampler) Take() []model.Crop {
	crops := s.crops
	s.Reset()
	return crops
}

// Placement 计算以 center 为中心、边长 size 的方块在原图中的有效区域 src，
// 以及该区域在方块内的位置 dst（居中放置）。
func Placement(center image.Point, size, canvasW, canvasH int) (src, dst image.Rectangle) {
	half := (size + 1) / 2
	start := image.Pt(center.X-half, center.Y-half)
	want := image.Rectangle{Min: start, Max: start.Add(image.Pt(size, size))}
	src = want.Intersect(image.Rect(0, 0, canvasW, canvasH))
	if src.Empty() {
		return image.Rectangle{}, image.Rectangle{}
	}
	off := image.Pt((size-src.Dx())/2, (size-src.Dy())/2)
	dst = image.Rectangle{Min: off, Max: off.Add(src.Size())}
	return src, dst
}

// Extract 从 src 截取以 center 为中心、边长 size 的方块。
// 图像内的像素原样复制，边界外用 PadColor 填充，有效区域在方块内居中，
// 因此输出尺寸总是 size*size。
func Extract(src *raster.Buffer, center image.Point, size int) *raster.Buffer {
	out := raster.New(size, size)
	if out == nil {
		return nil
	}
	out.Fill(PadColor)
	if src.Empty() {
		return out
	}
	from, to := Placement(center, size, src.Width, src.Height)
	if from.Empty() {
		return out
	}
	rowBytes := from.Dx() * 4
	for y := 0; y < from.Dy(); y++ {
		si := src.Offset(from.Min.X, from.Min.Y+y)
		di := out.Offset(to.Min.X, to.Min.Y+y)
		copy(out.Pix[di:di+rowBytes], src.Pix[si:si+rowBytes])
	}
	return out
}
