package handler

import (
	"net/http"

	"github.com/TIANLI0/maskpaint/middleware"
	"github.com/gin-gonic/gin"
)

// BuildInfo 构建信息，由 main 通过 ldflags 注入
type BuildInfo struct {
	Version   string
	BuildTime string
	BuildID   string
	GitCommit string
	GitBranch string
}

// SetupRouter 注册所有路由
func SetupRouter(sessions *SessionHandler, datasets *DatasetHandler, build BuildInfo) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": build.Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    build.Version,
			"build_time": build.BuildTime,
			"build_id":   build.BuildID,
			"git_commit": build.GitCommit,
			"git_branch": build.GitBranch,
		})
	})

	ds := r.Group("/datasets/:dataset")
	{
		ds.GET("/labels/:label", datasets.GetLabel)
		ds.POST("/labels/:label", datasets.SaveLabel)
		ds.GET("/images/:image", datasets.GetImage)
		ds.POST("/images/:image", datasets.SaveImage)
	}

	// API路由
	api := r.Group("/api/v1")
	{
		api.POST("/image", sessions.UploadImage)
		api.POST("/image/open", sessions.OpenImage)
		api.POST("/pointer", sessions.Pointer)
		api.POST("/fill", sessions.Fill)
		api.POST("/undo", sessions.Undo)
		api.POST("/redo", sessions.Redo)
		api.PUT("/brush", sessions.Brush)
		api.PUT("/preview/color", sessions.PreviewColor)
		api.GET("/mask", sessions.Mask)
		api.GET("/preview", sessions.Preview)
		api.GET("/state", sessions.State)
		api.POST("/mask/save", sessions.SaveMask)
	}

	return r
}
