// Package grabcut 在本地对魔术笔方块做 GrabCut 前景分割，
// 作为远程分割辅助服务的替代后端，输出与远程服务相同格式的合并掩码。
package grabcut

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/magic"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Service 本地 GrabCut 分割，实现 magic.Predictor
type Service struct {
	iterations         int
	borderSize         int
	semaphore          chan struct{}
	queueTimeout       time.Duration
	complexityAnalyzer *ComplexityAnalyzer
	seeder             *Seeder
	maskProcessor      *MaskProcessor
}

func NewService(cfg *config.GrabCutConfig) *Service {
	return &Service{
		iterations:         max(cfg.Iterations, 1),
		borderSize:         cfg.BorderSize,
		semaphore:          make(chan struct{}, max(cfg.MaxConcurrent, 1)),
		queueTimeout:       time.Duration(cfg.QueueTimeout) * time.Second,
		complexityAnalyzer: NewComplexityAnalyzer(),
		seeder:             NewSeeder(),
		maskProcessor:      NewMaskProcessor(),
	}
}

// Predict 对每个方块单独分割，再按方块放置规则拼成与画布对齐的合并掩码
func (s *Service) Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictResponse, error) {
	if len(req.Crops) == 0 {
		return &model.PredictResponse{Status: model.StatusError, Message: "no crops"}, nil
	}

	// 并发控制
	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-waitCtx.Done():
		return nil, fmt.Errorf("处理队列已满，请稍后重试")
	}

	startTime := time.Now()
	width, height := req.Crops[0].CanvasWidth, req.Crops[0].CanvasHeight
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}

	merged := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
	defer merged.Close()
	merged.SetTo(gocv.NewScalar(0, 0, 0, 0))

	segmented := 0
	for _, crop := range req.Crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.segmentCrop(&merged, crop, req.AssistParams); err != nil {
			utils.Logger.Warn("failed to segment crop",
				zap.Int("crop", crop.ID), zap.Error(err))
			continue
		}
		segmented++
	}
	if segmented == 0 {
		return &model.PredictResponse{Status: model.StatusError, Message: "all crop predictions failed"}, nil
	}

	result := merged
	if req.ApplyDBSCAN {
		// 只保留最大的连通区域，去掉零散噪点
		result = s.maskProcessor.KeepLargest(&merged)
		defer result.Close()
	}

	encoded, err := encodeMask(&result)
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("crops segmented locally",
		zap.Int("crops", len(req.Crops)),
		zap.Int("segmented", segmented),
		zap.Duration("duration", time.Since(startTime)))

	return &model.PredictResponse{Status: model.StatusSuccess, MergedMaskBase64: encoded}, nil
}

// segmentCrop 分割单个方块并把前景按位或到 merged 的对应区域
func (s *Service) segmentCrop(merged *gocv.Mat, crop model.Crop, params model.AssistParams) error {
	data, err := base64.StdEncoding.DecodeString(raster.StripDataURL(crop.ImageBase64))
	if err != nil {
		return fmt.Errorf("decode crop: %w", err)
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode crop image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("failed to read crop image")
	}

	size := max(crop.Width, crop.Height)
	from, to := magic.Placement(image.Pt(crop.CenterX, crop.CenterY), size, crop.CanvasWidth, crop.CanvasHeight)
	if from.Empty() {
		return nil
	}
	to = to.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	from.Max = from.Min.Add(to.Size())

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	complexity := s.complexityAnalyzer.Analyze(&img)
	iterations := complexity.Iterations(s.iterations)

	var mask gocv.Mat
	if complexity == Simple {
		// 初始矩形取有效区域向内收缩 borderSize，太小时退回整个有效区域
		initRect := to.Inset(s.borderSize)
		if initRect.Dx() < 4 || initRect.Dy() < 4 {
			initRect = to
		}
		mask = gocv.NewMat()
		gocv.GrabCut(img, &mask, initRect, &bgdModel, &fgdModel, iterations, gocv.GCInitWithRect)
	} else {
		stroke := image.Pt(crop.CenterX, crop.CenterY).Sub(from.Min).Add(to.Min)
		mask = s.seeder.Mask(&img, to, stroke, max(size/20, 2), s.borderSize, params.Sensitivity)
		gocv.GrabCut(img, &mask, image.Rectangle{}, &bgdModel, &fgdModel, iterations, gocv.GCInitWithMask)
	}
	defer mask.Close()

	utils.Logger.Debug("crop segmented",
		zap.Int("crop", crop.ID),
		zap.String("complexity", complexity.String()),
		zap.Int("iterations", iterations))

	fgMask := s.maskProcessor.ExtractForeground(&mask)
	defer func() { fgMask.Close() }()

	if params.ApplyMorphology {
		optimized := s.maskProcessor.MorphologyOptimize(&fgMask, params.MorphKernelSize, params.MorphIterations)
		fgMask.Close()
		fgMask = optimized

		refined := s.maskProcessor.RefineEdges(&fgMask)
		fgMask.Close()
		fgMask = refined
	}

	dst := merged.Region(from)
	defer dst.Close()
	src := fgMask.Region(to)
	defer src.Close()
	gocv.BitwiseOr(dst, src, &dst)

	return nil
}

// encodeMask 将掩码编码为Base64字符串
func encodeMask(mask *gocv.Mat) (string, error) {
	data, err := gocv.IMEncode(".png", *mask)
	if err != nil {
		utils.Logger.Error("failed to encode mask", zap.Error(err))
		return "", fmt.Errorf("encode mask: %w", err)
	}
	defer data.Close()

	return base64.StdEncoding.EncodeToString(data.GetBytes()), nil
}
