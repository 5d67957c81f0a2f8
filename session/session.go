// Package session 持有一次标注编辑的全部栅格状态，并实现指针驱动的描边状态机。
//
// Session 不是并发安全的：所有方法都必须在同一个 goroutine 上调用，
// 通常由 Loop 负责。唯一的异步部分是魔术笔的辅助请求，其结果通过
// Completions 回到持有者 goroutine，再由 ApplyAssist 合并。
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/TIANLI0/maskpaint/history"
	"github.com/TIANLI0/maskpaint/magic"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

var ErrNoImage = errors.New("no image loaded")

// Source 当前图像在数据集中的位置
type Source struct {
	Dataset string
	Image   string
}

type Session struct {
	opts Options

	image   *raster.Buffer // 原图，加载后只读
	mask    *raster.Buffer
	overlay *raster.Buffer // 魔术笔临时覆盖层
	preview *raster.Buffer

	history    *history.Manager
	rasterizer *raster.Rasterizer
	sampler    *magic.Sampler
	bridge     *magic.Bridge
	compositor *raster.Compositor

	mode      raster.Mode
	brushSize float64
	source    Source

	drawing    bool
	strokeMode raster.Mode
	last       *raster.Point
	lastMove   time.Time
	pending    *raster.Point

	dirty   bool
	version uint64

	ctx      context.Context
	cancel   context.CancelFunc
	results  chan *magic.Task
	inflight int
}

// New 创建会话。bridge 为 nil 时魔术笔只绘制覆盖层，不发送请求。
func New(opts Options, bridge *magic.Bridge) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:       opts,
		history:    history.New(opts.HistoryLimit),
		rasterizer: raster.NewRasterizer(),
		sampler:    magic.NewSampler(opts.CropSize, opts.CropInterval),
		bridge:     bridge,
		compositor: raster.NewCompositor(opts.PreviewColor),
		mode:       raster.ModeDraw,
		brushSize:  opts.BrushSize,
		ctx:        ctx,
		cancel:     cancel,
		results:    make(chan *magic.Task),
	}
}

// Close 停止转发尚未完成的辅助请求结果
func (s *Session) Close() {
	s.cancel()
}

// LoadImage 载入新图像，并把掩码、覆盖层、预览层重置为同尺寸的透明图层
func (s *Session) LoadImage(img image.Image) error {
	buf := raster.FromImage(img)
	if buf.Empty() {
		return fmt.Errorf("load image: %w", ErrNoImage)
	}
	s.resetStroke()
	s.image = buf
	s.mask = raster.New(buf.Width, buf.Height)
	s.overlay = raster.New(buf.Width, buf.Height)
	s.preview = raster.New(buf.Width, buf.Height)
	s.history.Reset()
	s.source = Source{}
	s.markChanged()

	utils.Logger.Info("image loaded", zap.Int("width", buf.Width), zap.Int("height", buf.Height))
	return nil
}

// LoadMask 用外部掩码替换当前掩码（先快照，可撤销）。尺寸不同时按最近邻缩放。
// 不透明的黑白标签按亮度判定开关。
func (s *Session) LoadMask(img image.Image) error {
	if s.mask.Empty() {
		return fmt.Errorf("load mask: %w", ErrNoImage)
	}
	if img == nil {
		return fmt.Errorf("load mask: nil image")
	}
	s.resetStroke()
	s.history.Snapshot(s.mask)
	s.mask.Clear()
	xdraw.NearestNeighbor.Scale(s.mask.RGBA(), s.mask.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	raster.BinarizeLabel(s.mask)
	s.markChanged()
	return nil
}

// ResetHistory 清空撤销与重做栈，用于打开图像时自动载入已有标签之后
func (s *Session) ResetHistory() {
	s.history.Reset()
}

// PointerDown 开始一次描边。每次按下都会先对掩码做快照。
func (s *Session) PointerDown(p raster.Point, at time.Time) {
	if s.mask.Empty() {
		return
	}
	if s.drawing {
		s.PointerUp(at)
	}

	s.history.Snapshot(s.mask)
	s.drawing = true
	s.strokeMode = s.mode
	s.lastMove = at
	s.pending = nil

	switch s.strokeMode {
	case raster.ModeMagic:
		s.sampler.Reset()
		s.overlay.Clear()
		s.rasterizer.Stroke(s.overlay, nil, p, s.magicRadius(), s.opts.Spacing, raster.ModeMagic)
	default:
		s.rasterizer.Stroke(s.mask, nil, p, s.brushSize, s.opts.Spacing, s.strokeMode)
		s.markChanged()
	}
	s.last = &p
}

// PointerMove 继续描边。距上次处理不足 MoveInterval 的移动被丢弃，
// 只记住位置，在下一次被接受的移动或抬起时使用。返回是否处理了该移动。
func (s *Session) PointerMove(p raster.Point, at time.Time) bool {
	if !s.drawing {
		return false
	}
	if at.Sub(s.lastMove) < s.opts.MoveInterval {
		s.pending = &p
		return false
	}
	s.segment(p)
	s.lastMove = at
	return true
}

func (s *Session) segment(p raster.Point) {
	switch s.strokeMode {
	case raster.ModeMagic:
		d := s.rasterizer.Stroke(s.overlay, s.last, p, s.magicRadius(), s.opts.Spacing, raster.ModeMagic)
		s.sampler.Advance(s.image, d, p)
	default:
		s.rasterizer.Stroke(s.mask, s.last, p, s.brushSize, s.opts.Spacing, s.strokeMode)
		s.markChanged()
	}
	s.last = &p
	s.pending = nil
}

// PointerUp 结束描边：画笔/橡皮擦二值化掩码；魔术笔发送累积的方块。
func (s *Session) PointerUp(at time.Time) {
	if !s.drawing {
		return
	}
	if s.pending != nil {
		s.segment(*s.pending)
		s.lastMove = at
	}
	mode := s.strokeMode
	s.drawing = false
	s.last = nil

	switch mode {
	case raster.ModeMagic:
		crops := s.sampler.Take()
		s.overlay.Clear()
		s.submit(crops)
	default:
		raster.Binarize(s.mask)
		s.markChanged()
	}
}

// Abort 放弃当前描边，不发送任何请求
func (s *Session) Abort() {
	if !s.drawing {
		return
	}
	mode := s.strokeMode
	s.resetStroke()
	if mode != raster.ModeMagic {
		raster.Binarize(s.mask)
		s.markChanged()
	}
}

func (s *Session) resetStroke() {
	s.drawing = false
	s.last = nil
	s.pending = nil
	s.sampler.Reset()
	s.overlay.Clear()
}

func (s *Session) magicRadius() float64 {
	return float64(s.sampler.Size) / 2
}

func (s *Session) submit(crops []model.Crop) {
	if len(crops) == 0 {
		return
	}
	if s.bridge == nil {
		utils.Logger.Warn("magic stroke finished without assist backend", zap.Int("crops", len(crops)))
		return
	}
	task := s.bridge.Submit(s.ctx, crops)
	if task == nil {
		return
	}
	s.inflight++
	go func() {
		select {
		case <-task.Done():
		case <-s.ctx.Done():
			return
		}
		select {
		case s.results <- task:
		case <-s.ctx.Done():
		}
	}()
}

// Completions 已完成的辅助请求，持有者 goroutine 读取后交给 ApplyAssist
func (s *Session) Completions() <-chan *magic.Task {
	return s.results
}

// ApplyAssist 把辅助结果合并进当前掩码。失败的请求不修改掩码。
// 合并针对结果到达时的掩码，不做任何回滚。
func (s *Session) ApplyAssist(task *magic.Task) (int, error) {
	if task == nil {
		return 0, nil
	}
	if s.inflight > 0 {
		s.inflight--
	}
	res := task.Result()
	if res.Err != nil {
		return 0, res.Err
	}
	if s.mask.Empty() {
		return 0, nil
	}
	added, err := raster.Merge(s.mask, res.Mask, s.opts.MergeThreshold)
	if err != nil {
		utils.Logger.Warn("failed to merge assist prediction",
			zap.Int64("request", res.ID), zap.Error(err))
		return 0, err
	}
	s.markChanged()
	utils.Logger.Info("assist prediction merged",
		zap.Int64("request", res.ID),
		zap.Int("crops", res.Crops),
		zap.Int("added_pixels", added))
	return added, nil
}

// Fill 右键泛洪填充（可撤销），随后二值化。返回填充像素数。
func (s *Session) Fill(p raster.Point, tolerance int) int {
	if s.mask.Empty() {
		return 0
	}
	seed := p.Floor()
	if !s.mask.In(seed.X, seed.Y) || s.mask.RGBAAt(seed.X, seed.Y) == raster.Foreground {
		return 0
	}
	s.history.Snapshot(s.mask)
	n := raster.FloodFill(s.mask, seed, tolerance, raster.Foreground)
	raster.Binarize(s.mask)
	s.markChanged()
	return n
}

// FillDefault 使用配置的容差填充
func (s *Session) FillDefault(p raster.Point) int {
	return s.Fill(p, s.opts.FillTolerance)
}

// Undo 撤销；描边进行中时忽略
func (s *Session) Undo() bool {
	if s.drawing || !s.history.Undo(s.mask) {
		return false
	}
	s.markChanged()
	return true
}

// Redo 重做；描边进行中时忽略
func (s *Session) Redo() bool {
	if s.drawing || !s.history.Redo(s.mask) {
		return false
	}
	s.markChanged()
	return true
}

func (s *Session) markChanged() {
	s.dirty = true
	s.version++
}

// RenderPreview 掩码有变化时重算预览。多次变化合并为一次重算。
func (s *Session) RenderPreview() bool {
	if !s.dirty || s.preview.Empty() {
		return false
	}
	s.compositor.Render(s.preview, s.mask)
	s.dirty = false
	return true
}

func (s *Session) SetMode(m raster.Mode) {
	s.mode = m
}

func (s *Session) Mode() raster.Mode {
	return s.mode
}

func (s *Session) SetBrushSize(r float64) {
	if r > 0 {
		s.brushSize = r
	}
}

func (s *Session) SetPreviewColor(c color.RGBA) {
	s.compositor.SetColor(c)
	s.dirty = true
}

func (s *Session) SetSource(src Source) {
	s.source = src
}

func (s *Session) Source() Source {
	return s.source
}

// Loaded 是否已经载入图像
func (s *Session) Loaded() bool {
	return !s.image.Empty()
}

// Version 掩码内容每次变化都会递增
func (s *Session) Version() uint64 {
	return s.version
}

// Mask 返回掩码副本
func (s *Session) Mask() *raster.Buffer {
	return s.mask.Clone()
}

// Preview 返回最近一次重算的预览副本
func (s *Session) Preview() *raster.Buffer {
	return s.preview.Clone()
}

// Overlay 返回魔术笔覆盖层副本
func (s *Session) Overlay() *raster.Buffer {
	return s.overlay.Clone()
}

// State 返回会话状态摘要
func (s *Session) State() model.SessionState {
	past, future := s.history.Depth()
	st := model.SessionState{
		Loaded:       s.Loaded(),
		Mode:         s.mode.String(),
		BrushSize:    s.brushSize,
		Drawing:      s.drawing,
		PreviewColor: raster.HexColor(s.compositor.Color),
		UndoDepth:    past,
		RedoDepth:    future,
		PendingCrops: len(s.sampler.Crops()),
		ArcLength:    s.sampler.ArcLength(),
		InFlight:     s.inflight,
		Version:      s.version,
	}
	if s.Loaded() {
		st.Width, st.Height = s.image.Width, s.image.Height
	}
	return st
}
