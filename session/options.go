package session

import (
	"fmt"
	"image/color"
	"time"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/history"
	"github.com/TIANLI0/maskpaint/magic"
	"github.com/TIANLI0/maskpaint/raster"
)

// Options 编辑会话参数
type Options struct {
	BrushSize      float64
	Spacing        float64
	HistoryLimit   int
	MoveInterval   time.Duration
	FillTolerance  int
	CropSize       int
	CropInterval   float64
	MergeThreshold uint8
	PreviewColor   color.RGBA
}

func DefaultOptions() Options {
	return Options{
		BrushSize:      5,
		Spacing:        raster.DefaultSpacing,
		HistoryLimit:   history.DefaultLimit,
		MoveInterval:   20 * time.Millisecond,
		FillTolerance:  30,
		CropSize:       magic.DefaultCropSize,
		CropInterval:   magic.DefaultCropInterval,
		MergeThreshold: raster.DefaultMergeThreshold,
		PreviewColor:   raster.DefaultPreviewColor,
	}
}

// OptionsFromConfig 从配置构建会话参数
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	e, m := cfg.Editor, cfg.Magic

	if e.BrushSize > 0 {
		opts.BrushSize = e.BrushSize
	}
	if e.BrushSpacing > 0 {
		opts.Spacing = e.BrushSpacing
	}
	if e.HistoryLimit > 0 {
		opts.HistoryLimit = e.HistoryLimit
	}
	if e.MoveInterval >= 0 {
		opts.MoveInterval = e.MoveInterval
	}
	opts.FillTolerance = min(max(e.FillTolerance, 0), 255)
	if e.PreviewColor != "" {
		c, err := raster.ParseColor(e.PreviewColor)
		if err != nil {
			return opts, fmt.Errorf("editor.preview_color: %w", err)
		}
		opts.PreviewColor = c
	}

	if m.CropSize > 0 {
		opts.CropSize = m.CropSize
	}
	if m.CropInterval > 0 {
		opts.CropInterval = m.CropInterval
	}
	if m.MergeThreshold < 0 || m.MergeThreshold > 255 {
		return opts, fmt.Errorf("magic.merge_threshold %d out of range", m.MergeThreshold)
	}
	opts.MergeThreshold = uint8(m.MergeThreshold)
	return opts, nil
}
