package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
)

// Researcher 单角色研究调用，由 engine.Engine 实现
type Researcher interface {
	Research(ctx context.Context, query string, opts engine.RunOptions) *engine.Result
}

// Manager 在一组角色上运行研究并合并结果
type Manager struct {
	researcher Researcher
	gen        llm.Generator
	personas   *persona.Registry
	now        func() time.Time
}

// NewManager personas 为空时使用内置角色表
func NewManager(r Researcher, gen llm.Generator, personas *persona.Registry) *Manager {
	if personas == nil {
		personas = persona.Default()
	}
	return &Manager{researcher: r, gen: gen, personas: personas, now: time.Now}
}

// FromEngine 用引擎本身作为研究调用和综合生成服务
func FromEngine(e *engine.Engine) *Manager {
	return NewManager(e, e.StageGenerator("collab"), e.Personas())
}

// Run 执行一次协作研究。参数错误直接返回错误；单个角色失败只记录在会话中，
// 全部角色失败时会话状态为 failed 且不做综合
func (m *Manager) Run(ctx context.Context, query string, personaIDs []string, mode Mode) (*Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, engine.ErrNoQuery
	}
	if len(personaIDs) == 0 {
		return nil, ErrNoPersonas
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	personas, err := m.personas.Resolve(personaIDs)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		Query:     query,
		Mode:      mode,
		Status:    StatusActive,
		StartedAt: m.now(),
	}
	for _, p := range personas {
		s.PersonaIDs = append(s.PersonaIDs, p.ID)
	}

	log := logger.Stage("collab").WithField("session", s.ID)
	log.Infof("开始 %s 协作: %s, 角色 %s", mode, query, strings.Join(s.PersonaIDs, ","))

	switch mode {
	case ModeSequential:
		m.runSequential(ctx, s, personas)
	default:
		m.runParallel(ctx, s, personas)
	}

	done := s.succeeded()
	synthesis := "none"
	if len(done) == 0 {
		s.Status = StatusFailed
		s.Error = "all persona research runs failed"
		if err := ctx.Err(); err != nil {
			s.Error = err.Error()
		}
		log.Errorf("协作失败: %s", s.Error)
	} else {
		s.SharedContext = shareInsights(done)
		s.Synthesis = m.synthesize(ctx, query, done, s.SharedContext)
		s.Communications = append(s.Communications, Communication{
			Timestamp:        m.now(),
			SessionID:        s.ID,
			Action:           ActionSynthesis,
			InsightsShared:   len(s.SharedContext.AllInsights),
			PersonasInvolved: personaIDs(done),
			CrossReferences:  len(s.SharedContext.CrossReferences),
			Summary:          fmt.Sprintf("Final synthesis created from %d agent analyses", len(done)),
		})
		s.Status = StatusCompleted
		synthesis = s.Synthesis.Method
	}

	s.EndedAt = m.now()
	s.Duration = s.EndedAt.Sub(s.StartedAt)
	metrics.CollaborationSessions.WithLabelValues(string(mode), synthesis).Inc()
	log.Infof("协作结束: %s，耗时 %s", s.Status, s.Duration.Round(time.Millisecond))
	return s, nil
}

// runParallel 各角色独立研究，结果按角色顺序保存
func (m *Manager) runParallel(ctx context.Context, s *Session, personas []persona.Persona) {
	results := make([]*PersonaResult, len(personas))
	var g errgroup.Group
	for i, p := range personas {
		g.Go(func() error {
			results[i] = m.runPersona(ctx, s.Query, p, "")
			return nil
		})
	}
	_ = g.Wait()
	s.Results = results
}

// runSequential 按顺序研究，后面的角色拿到前面角色的要点
func (m *Manager) runSequential(ctx context.Context, s *Session, personas []persona.Persona) {
	var prior []*PersonaResult
	for i, p := range personas {
		if err := ctx.Err(); err != nil {
			s.Results = append(s.Results, &PersonaResult{PersonaID: p.ID, PersonaName: p.Name, Error: err.Error()})
			continue
		}
		logger.Stage("collab").Infof("角色 %s 开始研究 (%d/%d)", p.ID, i+1, len(personas))

		r := m.runPersona(ctx, s.Query, p, priorFindings(prior))
		r.EnhancedQuery = EnhancedQuery(s.Query, prior, p)
		r.ContextUsed = len(prior) > 0
		s.Results = append(s.Results, r)
		if !r.Success {
			continue
		}

		s.Communications = append(s.Communications, Communication{
			Timestamp:       m.now(),
			SessionID:       s.ID,
			PersonaID:       p.ID,
			Action:          ActionSharedInsights,
			InsightsShared:  len(r.KeyInsights),
			ContextReceived: len(prior),
			Summary:         fmt.Sprintf("%s shared %d insights", p.ID, len(r.KeyInsights)),
		})
		prior = append(prior, r)
	}
}

// runPersona 运行单个角色，panic 记为该角色失败
func (m *Manager) runPersona(ctx context.Context, q string, p persona.Persona, background string) (out *PersonaResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Stage("collab").Errorf("角色 %s 研究 panic: %v", p.ID, r)
			out = &PersonaResult{PersonaID: p.ID, PersonaName: p.Name, Error: fmt.Sprintf("panic: %v", r)}
		}
		out.ProcessingTime = time.Since(start)
	}()

	res := m.researcher.Research(ctx, q, engine.RunOptions{Persona: p.ID, Background: background})
	if res == nil {
		return &PersonaResult{PersonaID: p.ID, PersonaName: p.Name, Error: "no result"}
	}
	return digest(p, res)
}
