package raster

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// DefaultMergeThreshold 预测像素 RGB 均大于该值才会并入掩码
const DefaultMergeThreshold = 200

var ErrSizeMismatch = errors.New("raster size mismatch")

// Merge 把与掩码对齐的预测图叠加到掩码上：预测像素 R、G、B 都大于
// threshold 的位置置为"开"，其余位置保持不变，从不移除已有覆盖。
// 合并后执行一次 Binarize。返回新置"开"的像素数。
func Merge(mask *Buffer, pred image.Image, threshold uint8) (int, error) {
	if mask.Empty() {
		return 0, nil
	}
	if pred == nil {
		return 0, fmt.Errorf("merge prediction: nil image")
	}
	pr := pred.Bounds()
	if pr.Dx() != mask.Width || pr.Dy() != mask.Height {
		return 0, fmt.Errorf("merge prediction %dx%d into mask %dx%d: %w",
			pr.Dx(), pr.Dy(), mask.Width, mask.Height, ErrSizeMismatch)
	}

	// 按非预乘通道比较亮度
	nrgba, ok := pred.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, pr.Dx(), pr.Dy()))
		xdraw.Draw(nrgba, nrgba.Rect, pred, pr.Min, xdraw.Src)
	}

	t := threshold
	added := 0
	for y := 0; y < mask.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < mask.Width; x++ {
			j := x * 4
			if row[j] <= t || row[j+1] <= t || row[j+2] <= t {
				continue
			}
			i := mask.Offset(x, y)
			if mask.Pix[i+3] <= AlphaThreshold {
				added++
			}
			mask.Pix[i], mask.Pix[i+1], mask.Pix[i+2], mask.Pix[i+3] = 255, 255, 255, 255
		}
	}

	Binarize(mask)
	return added, nil
}

// Lighten 把 src 以逐通道取最大值的方式叠加到 dst 的 at 位置，用于拼合逐块预测
func Lighten(dst *Buffer, src image.Image, at image.Point) {
	if dst.Empty() || src == nil {
		return
	}
	sb := src.Bounds()
	part := FromImage(src)
	if part.Empty() {
		return
	}
	area := image.Rectangle{Min: at, Max: at.Add(sb.Size())}.Intersect(dst.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			si := part.Offset(x-at.X, y-at.Y)
			di := dst.Offset(x, y)
			for c := 0; c < 4; c++ {
				if part.Pix[si+c] > dst.Pix[di+c] {
					dst.Pix[di+c] = part.Pix[si+c]
				}
			}
		}
	}
}
