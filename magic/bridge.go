package magic

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
)

var (
	// ErrAssistFailed 服务返回非 success 状态
	ErrAssistFailed = errors.New("assist service reported failure")
	// ErrMissingMask success 响应中缺少合并掩码
	ErrMissingMask = errors.New("assist response has no merged mask")
)

// Predictor 分割辅助服务。远程 HTTP、带缓存的包装和本地 GrabCut 都实现该接口。
type Predictor interface {
	Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictResponse, error)
}

// Result 一次辅助请求的结果：成功时 Mask 为与画布对齐的合并预测图
type Result struct {
	ID    int64
	Crops int
	Mask  image.Image
	Err   error
}

// Task 一个进行中的辅助请求。没有取消机制：结果到达时按当时的掩码合并或跳过。
type Task struct {
	ID   int64
	done chan struct{}
	res  Result
}

// Done 请求结束（成功或失败）时关闭
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result 阻塞直到请求结束
func (t *Task) Result() Result {
	<-t.done
	return t.res
}

// Bridge 把一批方块一次性发送给 Predictor，并把响应解码为合并掩码
type Bridge struct {
	predictor Predictor
	params    model.AssistParams
	timeout   time.Duration
}

func NewBridge(p Predictor, params model.AssistParams, timeout time.Duration) *Bridge {
	return &Bridge{predictor: p, params: params, timeout: timeout}
}

// Submit 异步发送 crops。crops 为空时不发请求并返回 nil。
// 每个 Task 持有自己的方块批次，互不影响。
func (b *Bridge) Submit(ctx context.Context, crops []model.Crop) *Task {
	if len(crops) == 0 {
		return nil
	}
	t := &Task{ID: utils.NextRequestID(), done: make(chan struct{})}
	req := &model.PredictRequest{Crops: crops, AssistParams: b.params}

	go func() {
		defer close(t.done)
		start := time.Now()
		t.res = b.resolve(ctx, req)
		t.res.ID = t.ID

		if t.res.Err != nil {
			utils.Logger.Warn("magic assist request failed",
				zap.Int64("request", t.ID),
				zap.Int("crops", len(crops)),
				zap.Duration("cost", time.Since(start)),
				zap.Error(t.res.Err))
			return
		}
		utils.Logger.Info("magic assist request completed",
			zap.Int64("request", t.ID),
			zap.Int("crops", len(crops)),
			zap.Duration("cost", time.Since(start)))
	}()
	return t
}

func (b *Bridge) resolve(ctx context.Context, req *model.PredictRequest) Result {
	res := Result{Crops: len(req.Crops)}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	resp, err := b.predictor.Predict(ctx, req)
	if err != nil {
		res.Err = fmt.Errorf("predict crops: %w", err)
		return res
	}
	if resp == nil {
		res.Err = fmt.Errorf("predict crops: empty response: %w", ErrAssistFailed)
		return res
	}
	if resp.Status != model.StatusSuccess {
		res.Err = fmt.Errorf("predict crops: status %q: %s: %w", resp.Status, resp.Message, ErrAssistFailed)
		return res
	}

	switch {
	case resp.MergedMaskBase64 != "":
		res.Mask, err = raster.DecodeBase64Image(resp.MergedMaskBase64)
	case len(resp.Predictions) > 0:
		res.Mask, err = composePredictions(req.Crops, resp.Predictions)
	default:
		err = ErrMissingMask
	}
	if err != nil {
		res.Mask = nil
		res.Err = fmt.Errorf("predict crops: %w", err)
	}
	return res
}

// composePredictions 把逐块预测按方块放置规则拼成一张与画布对齐的掩码
func composePredictions(crops []model.Crop, preds []model.CropPrediction) (image.Image, error) {
	w, h := crops[0].CanvasWidth, crops[0].CanvasHeight
	merged := raster.New(w, h)
	if merged == nil {
		return nil, fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	placed := 0
	for i, p := range preds {
		img, err := raster.DecodeBase64Image(p.MaskBase64)
		if err != nil {
			utils.Logger.Warn("skipping undecodable crop prediction", zap.Int("index", i), zap.Error(err))
			continue
		}
		size := max(p.Width, p.Height)
		from, to := Placement(image.Pt(p.CenterX, p.CenterY), size, w, h)
		if from.Empty() {
			continue
		}
		part := raster.FromImage(img)
		if part.Empty() {
			continue
		}
		sub := part.RGBA().SubImage(to.Add(part.Bounds().Min))
		raster.Lighten(merged, sub, from.Min)
		placed++
	}
	if placed == 0 {
		return nil, ErrMissingMask
	}
	return merged.RGBA(), nil
}
