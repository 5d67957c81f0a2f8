package grabcut

import (
	"gocv.io/x/gocv"
)

// Complexity 方块内容的复杂度等级
type Complexity int

const (
	Simple Complexity = iota
	Medium
	Complex
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Complex:
		return "complex"
	default:
		return "medium"
	}
}

// Iterations 按复杂度调整 GrabCut 迭代次数
func (c Complexity) Iterations(base int) int {
	switch c {
	case Simple:
		return max(3, base-2)
	case Complex:
		return base + 2
	default:
		return base
	}
}

// ComplexityAnalyzer 负责分析方块的复杂度
type ComplexityAnalyzer struct{}

func NewComplexityAnalyzer() *ComplexityAnalyzer {
	return &ComplexityAnalyzer{}
}

// Analyze 由边缘密度和 Lab 颜色标准差判断复杂度
func (ca *ComplexityAnalyzer) Analyze(img *gocv.Mat) Complexity {
	edgeDensity := ca.edgeDensity(img)
	colorVariance := ca.colorVariance(img)

	switch {
	case edgeDensity < 0.05 && colorVariance < 30:
		return Simple
	case edgeDensity > 0.15 || colorVariance > 60:
		return Complex
	default:
		return Medium
	}
}

func (ca *ComplexityAnalyzer) edgeDensity(img *gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	total := img.Rows() * img.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(edges)) / float64(total)
}

func (ca *ComplexityAnalyzer) colorVariance(img *gocv.Mat) float64 {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*img, &lab, gocv.ColorBGRToLab)

	mean := gocv.NewMat()
	stddev := gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(lab, &mean, &stddev)

	if stddev.Rows() == 0 {
		return 0
	}
	variance := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		variance += stddev.GetDoubleAt(i, 0)
	}
	return variance / float64(stddev.Rows())
}
