package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential 缺少外部服务凭证，构建引擎时直接失败
var ErrMissingCredential = errors.New("missing required credential")

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Research    ResearchConfig    `yaml:"research"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	PersonaFile string            `yaml:"persona_file"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider   string        `yaml:"provider"`
	Serper     SerperConfig  `yaml:"serper"`
	Tavily     TavilyConfig  `yaml:"tavily"`
	SearXNG    SearXNGConfig `yaml:"searxng"`
	MaxResults int           `yaml:"max_results"`
	GL         string        `yaml:"gl"`
	HL         string        `yaml:"hl"`
	Recency    string        `yaml:"recency"` // day / week / month / year，空表示不限
	MaxRetries int           `yaml:"max_retries"`
}

// SerperConfig Serper 配置
type SerperConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// ResearchConfig 研究流水线参数
type ResearchConfig struct {
	SubQuestions             int           `yaml:"sub_questions"`
	MinSourcesPerQuery       int           `yaml:"min_sources_per_query"`
	TargetSourcesPerQuestion int           `yaml:"target_sources_per_question"`
	FetchTimeout             time.Duration `yaml:"fetch_timeout"`
	FetchWorkers             int           `yaml:"fetch_workers"`
	MaxContentChars          int           `yaml:"max_content_chars"`
	QuestionDelay            time.Duration `yaml:"question_delay"`
	DeepenDelay              time.Duration `yaml:"deepen_delay"`
	GenerationTimeout        time.Duration `yaml:"generation_timeout"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"` // text / json
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// 默认值
const (
	DefaultProvider                 = "serper"
	DefaultSubQuestions             = 3
	MaxSubQuestions                 = 10
	DefaultMinSourcesPerQuery       = 5
	DefaultTargetSourcesPerQuestion = 3
	DefaultMaxSearchResults         = 12
	DefaultFetchTimeout             = 10 * time.Second
	DefaultFetchWorkers             = 5
	DefaultMaxContentChars          = 1200
	DefaultQuestionDelay            = 2 * time.Second
	DefaultDeepenDelay              = time.Second
	DefaultGenerationTimeout        = 180 * time.Second
	DefaultMaxTokens                = 1500
	DefaultTemperature              = 0.3
)

// Default 返回填充了默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig 从指定路径加载配置并填充默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Search.Provider == "" {
		c.Search.Provider = DefaultProvider
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = DefaultMaxSearchResults
	}
	if c.Search.GL == "" {
		c.Search.GL = "us"
	}
	if c.Search.HL == "" {
		c.Search.HL = "en"
	}
	if c.Search.MaxRetries <= 0 {
		c.Search.MaxRetries = 3
	}

	r := &c.Research
	if r.SubQuestions <= 0 {
		r.SubQuestions = DefaultSubQuestions
	}
	if r.SubQuestions > MaxSubQuestions {
		r.SubQuestions = MaxSubQuestions
	}
	if r.MinSourcesPerQuery <= 0 {
		r.MinSourcesPerQuery = DefaultMinSourcesPerQuery
	}
	if r.TargetSourcesPerQuestion <= 0 {
		r.TargetSourcesPerQuestion = DefaultTargetSourcesPerQuestion
	}
	if r.FetchTimeout <= 0 {
		r.FetchTimeout = DefaultFetchTimeout
	}
	if r.FetchWorkers <= 0 {
		r.FetchWorkers = DefaultFetchWorkers
	}
	if r.MaxContentChars <= 0 {
		r.MaxContentChars = DefaultMaxContentChars
	}
	if r.QuestionDelay < 0 {
		r.QuestionDelay = 0
	} else if r.QuestionDelay == 0 {
		r.QuestionDelay = DefaultQuestionDelay
	}
	if r.DeepenDelay < 0 {
		r.DeepenDelay = 0
	} else if r.DeepenDelay == 0 {
		r.DeepenDelay = DefaultDeepenDelay
	}
	if r.GenerationTimeout <= 0 {
		r.GenerationTimeout = DefaultGenerationTimeout
	}

	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = DefaultTemperature
	}

	if c.Concurrency.QPS <= 0 {
		c.Concurrency.QPS = 1
	}
	if c.Concurrency.RPM <= 0 {
		c.Concurrency.RPM = 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 检查外部服务凭证，缺失时返回 ErrMissingCredential
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm.api_key", ErrMissingCredential)
	}
	switch c.Search.Provider {
	case "serper":
		if c.Search.Serper.APIKey == "" {
			return fmt.Errorf("%w: search.serper.api_key", ErrMissingCredential)
		}
	case "tavily":
		if c.Search.Tavily.APIKey == "" {
			return fmt.Errorf("%w: search.tavily.api_key", ErrMissingCredential)
		}
	case "searxng":
		if c.Search.SearXNG.BaseURL == "" {
			return fmt.Errorf("%w: search.searxng.base_url", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown search provider: %s", c.Search.Provider)
	}
	return nil
}
