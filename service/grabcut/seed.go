package grabcut

import (
	"image"

	"gocv.io/x/gocv"
)

// GrabCut 掩码取值
const (
	gcBGD   = 0
	gcFGD   = 1
	gcPRBGD = 2
	gcPRFGD = 3
)

// Seeder 为复杂方块构建 GrabCut 初始掩码。
// 魔术笔方块的中心落在笔迹上，因此中心附近视为确定前景。
type Seeder struct{}

func NewSeeder() *Seeder {
	return &Seeder{}
}

// Saliency 基于梯度幅值的显著性图（Otsu 二值化）
func (sd *Seeder) Saliency(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	gradY := gocv.NewMat()
	defer gradX.Close()
	defer gradY.Close()

	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absGradX := gocv.NewMat()
	absGradY := gocv.NewMat()
	defer absGradX.Close()
	defer absGradY.Close()

	gocv.ConvertScaleAbs(gradX, &absGradX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absGradY, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(absGradX, 0.5, absGradY, 0.5, 0, &gradient)

	// 方块只有 200 像素左右，模糊核比整图小
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gradient, &blurred, image.Point{X: 9, Y: 9}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdOtsu)

	return saliency
}

// Mask 构建初始掩码：valid 以外和边框为确定背景，显著区域为可能前景，
// 笔迹点 radius 以内为确定前景，其余为可能背景。
// sensitivity 越大，显著区域膨胀得越多。
func (sd *Seeder) Mask(img *gocv.Mat, valid image.Rectangle, stroke image.Point, radius, border int, sensitivity float64) gocv.Mat {
	width, height := img.Cols(), img.Rows()
	mask := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
	mask.SetTo(gocv.NewScalar(gcBGD, 0, 0, 0))

	inner := valid.Inset(border)
	if inner.Empty() {
		inner = valid
	}

	saliency := sd.Saliency(img)
	defer saliency.Close()

	k := 3 + 2*int(max(0, min(sensitivity, 1))*8)
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: k, Y: k})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(saliency, &dilated, kernel)

	r2 := radius * radius
	for y := inner.Min.Y; y < inner.Max.Y; y++ {
		for x := inner.Min.X; x < inner.Max.X; x++ {
			v := uint8(gcPRBGD)
			if dilated.GetUCharAt(y, x) > 128 {
				v = gcPRFGD
			}
			dx, dy := x-stroke.X, y-stroke.Y
			if dx*dx+dy*dy <= r2 {
				v = gcFGD
			}
			mask.SetUCharAt(y, x, v)
		}
	}

	return mask
}
