package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/analyst"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/fetch"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/planner"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/scout"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search/factory"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/writer"
)

// ErrNoQuery 查询为空
var ErrNoQuery = errors.New("research query is empty")

// Phase 流水线阶段
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseScouting  Phase = "scouting"
	PhaseAnalyzing Phase = "analyzing"
	PhaseWriting   Phase = "writing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// 各阶段开始时上报的进度
var phaseProgress = map[Phase]int{
	PhasePlanning:  10,
	PhaseScouting:  30,
	PhaseAnalyzing: 60,
	PhaseWriting:   85,
	PhaseDone:      100,
}

// Components 引擎依赖的外部服务
type Components struct {
	Generator llm.Generator
	Searcher  search.Searcher
	Fetcher   fetch.Fetcher
	Personas  *persona.Registry
}

// Engine 研究流水线编排：Planning → Scouting → Analyzing → Writing → Done
type Engine struct {
	cfg      *config.Config
	gen      llm.Generator
	personas *persona.Registry

	planner *planner.Planner
	scout   *scout.Scout
	analyst *analyst.Analyzer
	writer  *writer.Writer
}

// NewEngine 根据配置创建引擎。缺少凭证时直接返回 config.ErrMissingCredential
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM, cfg.Concurrency)
	if err != nil {
		return nil, err
	}

	searcher, err := factory.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}

	personas, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("角色表加载失败: %w", err)
	}

	return New(cfg, Components{
		Generator: client,
		Searcher:  searcher,
		Fetcher:   fetch.NewExtractor(cfg.Research.FetchTimeout, cfg.Research.MaxContentChars),
		Personas:  personas,
	}), nil
}

// New 用给定依赖组装引擎，每个阶段的生成调用都带截止时间和指标
func New(cfg *config.Config, c Components) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if c.Personas == nil {
		c.Personas = persona.Default()
	}

	e := &Engine{cfg: cfg, gen: c.Generator, personas: c.Personas}
	e.planner = planner.New(e.StageGenerator("planner"))
	e.scout = scout.New(c.Searcher, c.Fetcher, scout.OptionsFromConfig(cfg))
	e.analyst = analyst.New(e.StageGenerator("analyst"))
	e.writer = writer.New(e.StageGenerator("writer"))
	return e
}

// StageGenerator 返回带看门狗超时和指标的生成客户端
func (e *Engine) StageGenerator(stage string) llm.Generator {
	return llm.Instrumented(llm.WithDeadline(e.gen, e.cfg.Research.GenerationTimeout), stage)
}

// Personas 角色表
func (e *Engine) Personas() *persona.Registry {
	return e.personas
}

// SearchWeb 单次网页检索，失败返回空列表
func (e *Engine) SearchWeb(ctx context.Context, query string, n int) []model.SearchResult {
	return e.scout.SearchWeb(ctx, query, n)
}

// RunOptions 运行选项
type RunOptions struct {
	SubQuestions     int
	Persona          string
	Background       string // 其他角色已有的发现，只用于子问题规划
	ProgressCallback func(status string, progress int)
}

// Result 一次研究的结果。失败时 Success=false，Phase 为失败所在阶段，Report 为空
type Result struct {
	Success         bool                    `json:"success"`
	Query           string                  `json:"query"`
	Persona         string                  `json:"persona,omitempty"`
	Phase           Phase                   `json:"phase"`
	CompletedPhases []Phase                 `json:"completed_phases"`
	PhaseDurations  map[Phase]time.Duration `json:"phase_durations"`
	SubQuestions    []string                `json:"sub_questions,omitempty"`
	Sources         *model.SourceSet        `json:"sources,omitempty"`
	Analysis        *model.AnalysisResult   `json:"analysis,omitempty"`
	Report          *model.Report           `json:"report,omitempty"`
	Error           string                  `json:"error,omitempty"`
	Err             error                   `json:"-"`
	StartedAt       time.Time               `json:"started_at"`
	Duration        time.Duration           `json:"duration"`
}

// Research 执行完整流水线。各阶段内部的外部服务错误在阶段内降级；
// 阶段中的 panic 或上游取消会终止流水线，并返回带阶段信息的失败结果
func (e *Engine) Research(ctx context.Context, query string, opts RunOptions) *Result {
	log := logger.Stage("engine")
	res := &Result{
		Query:          strings.TrimSpace(query),
		Persona:        opts.Persona,
		PhaseDurations: make(map[Phase]time.Duration),
		StartedAt:      time.Now(),
	}
	progress := func(status string, p int) {
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(status, p)
		}
	}
	progress("starting", 0)

	steps := []struct {
		phase Phase
		run   func() error
	}{
		{PhasePlanning, func() error {
			if res.Query == "" {
				return ErrNoQuery
			}
			focused := res.Query
			if opts.Persona != "" {
				p, ok := e.personas.Get(opts.Persona)
				if !ok {
					return fmt.Errorf("%w: %s", persona.ErrUnknownPersona, opts.Persona)
				}
				res.Persona = p.ID
				focused = p.FocusQuery(res.Query)
			}
			n := opts.SubQuestions
			if n <= 0 {
				n = e.cfg.Research.SubQuestions
			}
			res.SubQuestions = e.planner.DecomposeWithBackground(ctx, focused, opts.Background, n)
			return nil
		}},
		{PhaseScouting, func() error {
			res.Sources = e.scout.Gather(ctx, res.SubQuestions)
			return nil
		}},
		{PhaseAnalyzing, func() error {
			res.Analysis = e.analyst.Analyze(ctx, res.Sources)
			return nil
		}},
		{PhaseWriting, func() error {
			res.Report = e.writer.Write(ctx, res.Query, res.Analysis)
			return nil
		}},
	}

	log.Infof("开始研究: %s", res.Query)
	for _, step := range steps {
		progress(string(step.phase), phaseProgress[step.phase])
		if err := e.runPhase(ctx, res, step.phase, step.run); err != nil {
			return e.fail(res, step.phase, err, progress)
		}
		res.CompletedPhases = append(res.CompletedPhases, step.phase)
	}

	res.Phase = PhaseDone
	res.Success = true
	res.Duration = time.Since(res.StartedAt)
	metrics.RunsTotal.WithLabelValues("success").Inc()
	progress("completed", phaseProgress[PhaseDone])
	log.Infof("研究完成，耗时 %s", res.Duration.Round(time.Millisecond))
	return res
}

// runPhase 执行单个阶段，panic 转为错误，上游取消视为失败
func (e *Engine) runPhase(ctx context.Context, res *Result, phase Phase, run func() error) (err error) {
	res.Phase = phase
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s phase: %v", phase, r)
		}
		d := time.Since(start)
		res.PhaseDurations[phase] = d
		metrics.ObservePhase(string(phase), d)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := run(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Engine) fail(res *Result, phase Phase, err error, progress func(string, int)) *Result {
	// 失败时不输出半成品报告
	res.Report = nil
	res.Success = false
	res.Phase = phase
	res.Err = err
	res.Error = err.Error()
	res.Duration = time.Since(res.StartedAt)

	metrics.RunsTotal.WithLabelValues("failed").Inc()
	logger.Stage("engine").Errorf("研究在 %s 阶段失败: %v", phase, err)
	progress(string(PhaseFailed), phaseProgress[phase])
	return res
}
