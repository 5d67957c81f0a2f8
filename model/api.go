package model

// Response 通用响应
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ImageInfo 当前编辑图像信息
type ImageInfo struct {
	MD5     string `json:"md5"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Dataset string `json:"dataset,omitempty"`
	Image   string `json:"image,omitempty"`
	Label   string `json:"label,omitempty"`
}

// OpenImageRequest 从数据集打开图像
type OpenImageRequest struct {
	Dataset string `json:"dataset" binding:"required"`
	Image   string `json:"image" binding:"required"`
}

// PointerEvent 指针事件
type PointerEvent struct {
	Type      string  `json:"type" binding:"required,oneof=down move up leave abort"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Button    int     `json:"button"`
	Timestamp int64   `json:"timestamp"` // 毫秒，0 表示使用服务器时间
}

// FillRequest 泛洪填充
type FillRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Tolerance *int    `json:"tolerance,omitempty"`
}

// BrushRequest 笔刷设置
type BrushRequest struct {
	Mode string  `json:"mode,omitempty"`
	Size float64 `json:"size,omitempty"`
}

// ColorRequest 预览颜色
type ColorRequest struct {
	Color string `json:"color" binding:"required"`
}

// SaveMaskRequest 保存掩码，留空时使用当前图像推导的数据集与标签名
type SaveMaskRequest struct {
	Dataset string `json:"dataset"`
	Label   string `json:"label"`
}

// RasterPayload base64 PNG 栅格
type RasterPayload struct {
	Image   string `json:"image"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Version uint64 `json:"version"`
}

// SessionState 编辑会话状态
type SessionState struct {
	Loaded       bool    `json:"loaded"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Mode         string  `json:"mode"`
	BrushSize    float64 `json:"brush_size"`
	Drawing      bool    `json:"drawing"`
	PreviewColor string  `json:"preview_color"`
	UndoDepth    int     `json:"undo_depth"`
	RedoDepth    int     `json:"redo_depth"`
	PendingCrops int     `json:"pending_crops"`
	ArcLength    float64 `json:"arc_length"`
	InFlight     int     `json:"in_flight"`
	Version      uint64  `json:"version"`
}

// LabelBody 数据集标签上传
type LabelBody struct {
	Label string `json:"label" binding:"required"`
}

// ImageBody 数据集图像上传
type ImageBody struct {
	Image string `json:"image" binding:"required"`
}
