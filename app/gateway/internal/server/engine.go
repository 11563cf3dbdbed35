package server

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	drLogger "github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/gateway/internal/conf"
)

// NewResearchEngine 加载研究配置并初始化引擎
func NewResearchEngine(c *conf.Research, logger log.Logger) (*engine.Engine, func(), error) {
	helper := log.NewHelper(logger)
	path := "configs/config.yaml"
	if c != nil && c.Config != "" {
		path = c.Config
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		helper.Errorf("Failed to load research config %s: %v", path, err)
		return nil, nil, err
	}
	if c != nil && c.Log != nil {
		if c.Log.Level != "" {
			cfg.Log.Level = c.Log.Level
		}
		if c.Log.File != "" {
			cfg.Log.File = c.Log.File
		}
	}

	if err := drLogger.InitLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.Format); err != nil {
		helper.Errorf("Failed to init research logger: %v", err)
		_ = drLogger.InitLogger("info", "") // 降级处理
	}

	eng, err := engine.NewEngine(context.Background(), cfg)
	if err != nil {
		helper.Errorf("Failed to init research engine: %v", err)
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("Cleaning up research engine")
	}
	return eng, cleanup, nil
}
