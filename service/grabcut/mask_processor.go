package grabcut

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// MaskProcessor 负责处理图像掩码
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// ExtractForeground 提取前景掩码（GC_FGD 与 GC_PR_FGD）
func (mp *MaskProcessor) ExtractForeground(mask *gocv.Mat) gocv.Mat {
	fgMask := gocv.NewMat()
	tmp1 := gocv.NewMatFromScalar(gocv.Scalar{Val1: 1}, gocv.MatTypeCV8U)
	defer tmp1.Close()
	gocv.Compare(*mask, tmp1, &fgMask, gocv.CompareEQ)

	fgMaskPr := gocv.NewMat()
	defer fgMaskPr.Close()
	tmp2 := gocv.NewMatFromScalar(gocv.Scalar{Val1: 3}, gocv.MatTypeCV8U)
	defer tmp2.Close()
	gocv.Compare(*mask, tmp2, &fgMaskPr, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fgMask, fgMaskPr, &combined)
	fgMask.Close()

	return combined
}

// MorphologyOptimize 先开后闭，重复 iterations 次
func (mp *MaskProcessor) MorphologyOptimize(mask *gocv.Mat, kernelSize, iterations int) gocv.Mat {
	if kernelSize < 1 {
		kernelSize = 3
	}
	iterations = max(iterations, 1)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	current := mask.Clone()
	for i := 0; i < iterations; i++ {
		opened := gocv.NewMat()
		gocv.MorphologyEx(current, &opened, gocv.MorphOpen, kernel)
		current.Close()

		closed := gocv.NewMat()
		gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
		opened.Close()
		current = closed
	}

	return current
}

// RefineEdges 精细化掩码边缘
func (mp *MaskProcessor) RefineEdges(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	refined := gocv.NewMat()
	gocv.Dilate(*mask, &refined, kernel)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(refined, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)
	refined.Close()

	final := gocv.NewMat()
	gocv.Threshold(blurred, &final, 127, 255, gocv.ThresholdBinary)
	blurred.Close()

	return final
}

// KeepLargest 保留掩码中最大的连通区域，返回新的 Mat
func (mp *MaskProcessor) KeepLargest(mask *gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	newMask := gocv.NewMatWithSize(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	newMask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&newMask, contours, maxIndex, white, -1)

	return newMask
}
