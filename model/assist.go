package model

// Crop 魔术笔描边过程中截取的原图方块
type Crop struct {
	ID           int     `json:"id"`
	ImageBase64  string  `json:"image_base64"`
	CenterX      int     `json:"centerX"`
	CenterY      int     `json:"centerY"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	CanvasWidth  int     `json:"canvas_width"`
	CanvasHeight int     `json:"canvas_height"`
	Timestamp    int64   `json:"timestamp"`
	LineDistance float64 `json:"line_distance"`
}

// AssistParams 远程分割辅助参数
type AssistParams struct {
	Mode            string  `json:"mode" mapstructure:"mode"`
	ApplyMorphology bool    `json:"apply_morphology" mapstructure:"apply_morphology"`
	MorphKernelSize int     `json:"morph_kernel_size" mapstructure:"morph_kernel_size"`
	MorphIterations int     `json:"morph_iterations" mapstructure:"morph_iterations"`
	ApplyDBSCAN     bool    `json:"apply_dbscan" mapstructure:"apply_dbscan"`
	DBEps           float64 `json:"db_eps" mapstructure:"db_eps"`
	DBMinSamples    int     `json:"db_min_samples" mapstructure:"db_min_samples"`
	Sensitivity     float64 `json:"sensitivity" mapstructure:"sensitivity"`
}

// PredictRequest 一次批量预测请求
type PredictRequest struct {
	Crops []Crop `json:"crops"`
	AssistParams
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PredictResponse 批量预测响应
type PredictResponse struct {
	Status           string           `json:"status"`
	MergedMaskBase64 string           `json:"merged_mask_base64,omitempty"`
	Message          string           `json:"message,omitempty"`
	Predictions      []CropPrediction `json:"predictions,omitempty"`
}

// CropPrediction 逐块预测结果（旧版响应格式）
type CropPrediction struct {
	MaskBase64 string `json:"mask_base64"`
	CenterX    int    `json:"centerX"`
	CenterY    int    `json:"centerY"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}
