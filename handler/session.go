package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/service"
	"github.com/TIANLI0/maskpaint/session"
	"github.com/TIANLI0/maskpaint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 鼠标右键
const buttonSecondary = 2

var errNoSource = errors.New("dataset and label are required")

// Pointer 处理指针事件。右键按下触发泛洪填充，离开画布等同于抬起，abort 放弃当前描边。
func (h *SessionHandler) Pointer(c *gin.Context) {
	var ev model.PointerEvent
	if !bind(c, &ev) {
		return
	}

	at := time.Now()
	if ev.Timestamp > 0 {
		at = time.UnixMilli(ev.Timestamp)
	}
	p := raster.Pt(ev.X, ev.Y)

	var state model.SessionState
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if !s.Loaded() {
			return session.ErrNoImage
		}
		switch ev.Type {
		case "down":
			if ev.Button == buttonSecondary {
				s.FillDefault(p)
			} else {
				s.PointerDown(p, at)
			}
		case "move":
			s.PointerMove(p, at)
		case "up", "leave":
			s.PointerUp(at)
		case "abort":
			s.Abort()
		}
		state = s.State()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Success: true, Data: state})
}

// Fill 在指定位置做泛洪填充
func (h *SessionHandler) Fill(c *gin.Context) {
	var req model.FillRequest
	if !bind(c, &req) {
		return
	}

	var filled int
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if !s.Loaded() {
			return session.ErrNoImage
		}
		p := raster.Pt(req.X, req.Y)
		if req.Tolerance != nil {
			filled = s.Fill(p, *req.Tolerance)
		} else {
			filled = s.FillDefault(p)
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Success: true, Data: gin.H{"filled": filled}})
}

func (h *SessionHandler) Undo(c *gin.Context) {
	h.step(c, (*session.Session).Undo)
}

func (h *SessionHandler) Redo(c *gin.Context) {
	h.step(c, (*session.Session).Redo)
}

func (h *SessionHandler) step(c *gin.Context, op func(*session.Session) bool) {
	var (
		applied bool
		state   model.SessionState
	)
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		applied = op(s)
		state = s.State()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    gin.H{"applied": applied, "state": state},
	})
}

// Brush 设置工具模式与笔刷半径
func (h *SessionHandler) Brush(c *gin.Context) {
	var req model.BrushRequest
	if !bind(c, &req) {
		return
	}

	var mode raster.Mode
	if req.Mode != "" {
		m, err := raster.ParseMode(req.Mode)
		if err != nil {
			badRequest(c, "未知的工具模式", err)
			return
		}
		mode = m
	}

	var state model.SessionState
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if req.Mode != "" {
			s.SetMode(mode)
		}
		s.SetBrushSize(req.Size)
		state = s.State()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Success: true, Data: state})
}

// PreviewColor 设置预览着色
func (h *SessionHandler) PreviewColor(c *gin.Context) {
	var req model.ColorRequest
	if !bind(c, &req) {
		return
	}
	col, err := raster.ParseColor(req.Color)
	if err != nil {
		badRequest(c, "无法解析颜色", err)
		return
	}

	err = h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		s.SetPreviewColor(col)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Success: true, Data: gin.H{"color": raster.HexColor(col)}})
}

// Mask 返回当前掩码
func (h *SessionHandler) Mask(c *gin.Context) {
	h.sendRaster(c, (*session.Session).Mask)
}

// Preview 返回最近一次渲染的预览层
func (h *SessionHandler) Preview(c *gin.Context) {
	h.sendRaster(c, (*session.Session).Preview)
}

func (h *SessionHandler) sendRaster(c *gin.Context, get func(*session.Session) *raster.Buffer) {
	var (
		buf     *raster.Buffer
		version uint64
	)
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if !s.Loaded() {
			return session.ErrNoImage
		}
		buf = get(s)
		version = s.Version()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// 编码放在事件循环之外
	encoded, err := raster.EncodeBase64PNG(buf)
	if err != nil {
		internalError(c, "编码失败", err)
		return
	}
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data: model.RasterPayload{
			Image:   "data:image/png;base64," + encoded,
			Width:   buf.Width,
			Height:  buf.Height,
			Version: version,
		},
	})
}

// State 返回会话状态
func (h *SessionHandler) State(c *gin.Context) {
	var state model.SessionState
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		state = s.State()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Success: true, Data: state})
}

// SaveMask 把当前掩码写回数据集
func (h *SessionHandler) SaveMask(c *gin.Context) {
	var req model.SaveMaskRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	var (
		mask *raster.Buffer
		src  session.Source
	)
	err := h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if !s.Loaded() {
			return session.ErrNoImage
		}
		mask = s.Mask()
		src = s.Source()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	dataset, label := req.Dataset, req.Label
	if dataset == "" {
		dataset = src.Dataset
	}
	if label == "" {
		label = service.LabelName(src.Image)
	}
	if dataset == "" || label == "" {
		badRequest(c, "缺少数据集或标签名", errNoSource)
		return
	}

	data, err := raster.EncodePNG(mask)
	if err != nil {
		internalError(c, "编码失败", err)
		return
	}
	if err := h.datasets.SaveLabel(dataset, label, data); err != nil {
		writeError(c, err)
		return
	}

	utils.Logger.Info("mask saved",
		zap.String("dataset", dataset),
		zap.String("label", label),
		zap.Int("bytes", len(data)))

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "标签已保存",
		Data:    gin.H{"dataset": dataset, "label": label},
	})
}

// writeError 按错误类型选择状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNoImage):
		c.JSON(http.StatusConflict, model.ErrorResponse{Success: false, Message: "请先载入图像", Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Success: false, Message: "未找到", Error: err.Error()})
	case errors.Is(err, service.ErrInvalidName):
		badRequest(c, "名称不合法", err)
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Success: false, Message: "编辑会话不可用", Error: err.Error()})
	default:
		internalError(c, "处理失败", err)
	}
}

func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		badRequest(c, "请求参数错误", err)
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Success: false, Message: msg, Error: err.Error()})
}

func internalError(c *gin.Context, msg string, err error) {
	utils.Logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{Success: false, Message: msg, Error: err.Error()})
}
