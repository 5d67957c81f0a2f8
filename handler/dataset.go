package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/service"
	"github.com/TIANLI0/maskpaint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DatasetHandler 数据集图像与标签的读写接口
type DatasetHandler struct {
	datasets *service.DatasetService
}

func NewDatasetHandler(datasets *service.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

// GetLabel 以 base64 文本返回标签 PNG
func (h *DatasetHandler) GetLabel(c *gin.Context) {
	data, err := h.datasets.LoadLabel(c.Param("dataset"), c.Param("label"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString(data))
}

// SaveLabel 保存 base64 标签，可带 data URL 前缀
func (h *DatasetHandler) SaveLabel(c *gin.Context) {
	var body model.LabelBody
	if !bind(c, &body) {
		return
	}
	h.save(c, body.Label, h.datasets.SaveLabel, "label")
}

// GetImage 以 base64 文本返回数据集图像
func (h *DatasetHandler) GetImage(c *gin.Context) {
	data, err := h.datasets.LoadImage(c.Param("dataset"), c.Param("image"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString(data))
}

// SaveImage 保存 base64 图像，可带 data URL 前缀
func (h *DatasetHandler) SaveImage(c *gin.Context) {
	var body model.ImageBody
	if !bind(c, &body) {
		return
	}
	h.save(c, body.Image, h.datasets.SaveImage, "image")
}

func (h *DatasetHandler) save(c *gin.Context, encoded string, write func(dataset, name string, data []byte) error, param string) {
	data, err := base64.StdEncoding.DecodeString(raster.StripDataURL(encoded))
	if err != nil {
		badRequest(c, "base64 解码失败", err)
		return
	}

	dataset, name := c.Param("dataset"), c.Param(param)
	if err := write(dataset, name, data); err != nil {
		writeError(c, err)
		return
	}

	utils.Logger.Info("dataset file saved",
		zap.String("dataset", dataset),
		zap.String(param, name),
		zap.Int("bytes", len(data)))

	c.JSON(http.StatusOK, model.Response{Success: true, Message: "保存成功"})
}
