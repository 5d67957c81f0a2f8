package handler

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/service"
	"github.com/TIANLI0/maskpaint/session"
	"github.com/TIANLI0/maskpaint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler 把 HTTP 请求转成事件循环上的会话操作
type SessionHandler struct {
	cfg      *config.Config
	loop     *session.Loop
	datasets *service.DatasetService
}

func NewSessionHandler(cfg *config.Config, loop *session.Loop, datasets *service.DatasetService) *SessionHandler {
	return &SessionHandler{
		cfg:      cfg,
		loop:     loop,
		datasets: datasets,
	}
}

// UploadImage 上传图像并开始新的编辑
func (h *SessionHandler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		internalError(c, "读取文件失败", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		internalError(c, "读取文件失败", err)
		return
	}

	img, err := raster.DecodeImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "图片解码失败",
			Error:   err.Error(),
		})
		return
	}

	src := session.Source{
		Dataset: c.PostForm("dataset"),
		Image:   c.PostForm("name"),
	}
	if src.Dataset == "" {
		src.Dataset = service.DatasetFromPath(file.Filename)
	}

	info := model.ImageInfo{
		MD5:     utils.BytesMD5(data),
		Width:   img.Bounds().Dx(),
		Height:  img.Bounds().Dy(),
		Dataset: src.Dataset,
		Image:   src.Image,
	}
	if src.Image != "" {
		info.Label = service.LabelName(src.Image)
	}

	err = h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if err := s.LoadImage(img); err != nil {
			return err
		}
		s.SetSource(src)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	utils.Logger.Info("image uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", info.MD5),
		zap.Int64("size", file.Size),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height))

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "图像已载入",
		Data:    info,
	})
}

// OpenImage 从数据集打开图像，已有标签时一并载入
func (h *SessionHandler) OpenImage(c *gin.Context) {
	var req model.OpenImageRequest
	if !bind(c, &req) {
		return
	}

	data, err := h.datasets.LoadImage(req.Dataset, req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	img, err := raster.DecodeImage(data)
	if err != nil {
		internalError(c, "图片解码失败", err)
		return
	}

	info := model.ImageInfo{
		MD5:     utils.BytesMD5(data),
		Width:   img.Bounds().Dx(),
		Height:  img.Bounds().Dy(),
		Dataset: req.Dataset,
		Image:   req.Image,
		Label:   service.LabelName(req.Image),
	}

	var label image.Image
	if labelData, err := h.datasets.LoadLabel(req.Dataset, info.Label); err == nil {
		if label, err = raster.DecodeImage(labelData); err != nil {
			utils.Logger.Warn("ignoring undecodable label",
				zap.String("dataset", req.Dataset),
				zap.String("label", info.Label),
				zap.Error(err))
		}
	} else if !errors.Is(err, service.ErrNotFound) {
		utils.Logger.Warn("failed to read label", zap.Error(err))
	}

	err = h.loop.Do(c.Request.Context(), func(s *session.Session) error {
		if err := s.LoadImage(img); err != nil {
			return err
		}
		s.SetSource(session.Source{Dataset: req.Dataset, Image: req.Image})
		if label != nil {
			if err := s.LoadMask(label); err != nil {
				return err
			}
			s.ResetHistory()
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "图像已打开",
		Data: gin.H{
			"image":       info,
			"label_found": label != nil,
		},
	})
}

func (h *SessionHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
