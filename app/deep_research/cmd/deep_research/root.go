package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
)

const envPrefix = "DEEP_RESEARCH"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "deep_research",
		Short:         "Multi-stage web research: plan, search, analyze, write",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "configs/config.yaml", "config file path")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newResearchCmd(v),
		newCollaborateCmd(v),
		newPersonasCmd(v),
	)
	return root
}

// envOverrides 环境变量或命令行覆盖的配置项
func envOverrides(cfg *config.Config) map[string]*string {
	return map[string]*string{
		"llm.api_key":      &cfg.LLM.APIKey,
		"llm.base_url":     &cfg.LLM.BaseURL,
		"llm.model":        &cfg.LLM.Model,
		"search.provider":  &cfg.Search.Provider,
		"search.recency":   &cfg.Search.Recency,
		"serper.api_key":   &cfg.Search.Serper.APIKey,
		"tavily.api_key":   &cfg.Search.Tavily.APIKey,
		"searxng.base_url": &cfg.Search.SearXNG.BaseURL,
		"log.level":        &cfg.Log.Level,
		"log.file":         &cfg.Log.File,
		"persona_file":     &cfg.PersonaFile,
	}
}

// loadConfig 读取配置文件并叠加环境变量。配置文件不存在时使用默认值
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.LoadConfig(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	for key, dst := range envOverrides(cfg) {
		if val := strings.TrimSpace(v.GetString(key)); val != "" {
			*dst = val
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// setup 加载配置、初始化日志并构建引擎
func setup(ctx context.Context, v *viper.Viper) (*engine.Engine, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return engine.NewEngine(ctx, cfg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
