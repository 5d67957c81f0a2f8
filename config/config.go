package config

import (
	"fmt"
	"time"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Dataset DatasetConfig `mapstructure:"dataset"`
	Editor  EditorConfig  `mapstructure:"editor"`
	Magic   MagicConfig   `mapstructure:"magic"`
	GrabCut GrabCutConfig `mapstructure:"grabcut"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type DatasetConfig struct {
	Root string `mapstructure:"root"`
}

// EditorConfig 编辑引擎参数
type EditorConfig struct {
	BrushSize       float64       `mapstructure:"brush_size"`
	BrushSpacing    float64       `mapstructure:"brush_spacing"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	MoveInterval    time.Duration `mapstructure:"move_interval"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	FillTolerance   int           `mapstructure:"fill_tolerance"`
	PreviewColor    string        `mapstructure:"preview_color"`
}

// MagicConfig 魔术笔与远程辅助参数
type MagicConfig struct {
	Backend        string             `mapstructure:"backend"` // remote | local
	Endpoint       string             `mapstructure:"endpoint"`
	Timeout        time.Duration      `mapstructure:"timeout"`
	CropSize       int                `mapstructure:"crop_size"`
	CropInterval   float64            `mapstructure:"crop_interval"`
	MergeThreshold int                `mapstructure:"merge_threshold"`
	Assist         model.AssistParams `mapstructure:"assist"`
}

type GrabCutConfig struct {
	Iterations    int `mapstructure:"iterations"`
	BorderSize    int `mapstructure:"border_size"`
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueTimeout  int `mapstructure:"queue_timeout"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MASKPAINT")
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("dataset.root", d.Dataset.Root)

	v.SetDefault("editor.brush_size", d.Editor.BrushSize)
	v.SetDefault("editor.brush_spacing", d.Editor.BrushSpacing)
	v.SetDefault("editor.history_limit", d.Editor.HistoryLimit)
	v.SetDefault("editor.move_interval", d.Editor.MoveInterval)
	v.SetDefault("editor.refresh_interval", d.Editor.RefreshInterval)
	v.SetDefault("editor.fill_tolerance", d.Editor.FillTolerance)
	v.SetDefault("editor.preview_color", d.Editor.PreviewColor)

	v.SetDefault("magic.backend", d.Magic.Backend)
	v.SetDefault("magic.endpoint", d.Magic.Endpoint)
	v.SetDefault("magic.timeout", d.Magic.Timeout)
	v.SetDefault("magic.crop_size", d.Magic.CropSize)
	v.SetDefault("magic.crop_interval", d.Magic.CropInterval)
	v.SetDefault("magic.merge_threshold", d.Magic.MergeThreshold)
	v.SetDefault("magic.assist.mode", d.Magic.Assist.Mode)
	v.SetDefault("magic.assist.apply_morphology", d.Magic.Assist.ApplyMorphology)
	v.SetDefault("magic.assist.morph_kernel_size", d.Magic.Assist.MorphKernelSize)
	v.SetDefault("magic.assist.morph_iterations", d.Magic.Assist.MorphIterations)
	v.SetDefault("magic.assist.apply_dbscan", d.Magic.Assist.ApplyDBSCAN)
	v.SetDefault("magic.assist.db_eps", d.Magic.Assist.DBEps)
	v.SetDefault("magic.assist.db_min_samples", d.Magic.Assist.DBMinSamples)
	v.SetDefault("magic.assist.sensitivity", d.Magic.Assist.Sensitivity)

	v.SetDefault("grabcut.iterations", d.GrabCut.Iterations)
	v.SetDefault("grabcut.border_size", d.GrabCut.BorderSize)
	v.SetDefault("grabcut.max_concurrent", d.GrabCut.MaxConcurrent)
	v.SetDefault("grabcut.queue_timeout", d.GrabCut.QueueTimeout)
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      20 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg"},
		},
		Dataset: DatasetConfig{
			Root: "./datasets",
		},
		Editor: EditorConfig{
			BrushSize:       5,
			BrushSpacing:    1,
			HistoryLimit:    20,
			MoveInterval:    20 * time.Millisecond,
			RefreshInterval: 16 * time.Millisecond,
			FillTolerance:   30,
			PreviewColor:    "#00ff00",
		},
		Magic: MagicConfig{
			Backend:        "remote",
			Endpoint:       "http://localhost:5000/magic_pen/predict_crops",
			Timeout:        30 * time.Second,
			CropSize:       200,
			CropInterval:   200,
			MergeThreshold: 200,
			Assist: model.AssistParams{
				Mode:            "magic",
				ApplyMorphology: true,
				MorphKernelSize: 3,
				MorphIterations: 1,
				ApplyDBSCAN:     false,
				DBEps:           5,
				DBMinSamples:    10,
				Sensitivity:     0.5,
			},
		},
		GrabCut: GrabCutConfig{
			Iterations:    5,
			BorderSize:    10,
			MaxConcurrent: 3,
			QueueTimeout:  30,
		},
	}
}
