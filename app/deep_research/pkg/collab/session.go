package collab

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoPersonas 协作至少需要一个角色
	ErrNoPersonas = errors.New("collaboration needs at least one persona")
	// ErrUnknownMode 未知的协作模式
	ErrUnknownMode = errors.New("unknown collaboration mode")
)

// Mode 协作模式
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// ParseMode 解析协作模式，空字符串视为 parallel
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeParallel:
		return ModeParallel, nil
	case ModeSequential:
		return ModeSequential, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMode, s)
}

// Status 会话状态
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// 综合方式
const (
	SynthesisGenerated = "generated"
	SynthesisManual    = "manual_fallback"
)

// 通信日志动作
const (
	ActionSharedInsights = "shared_insights"
	ActionSynthesis      = "collaboration_synthesis"
)

// PersonaResult 单个角色研究结果的摘要
type PersonaResult struct {
	PersonaID          string        `json:"persona_id"`
	PersonaName        string        `json:"persona_name"`
	Success            bool          `json:"success"`
	Error              string        `json:"error,omitempty"`
	ExecutiveSummary   string        `json:"executive_summary"`
	Analysis           string        `json:"analysis"`
	KeyInsights        []string      `json:"key_insights"`
	SpecialistFindings []string      `json:"specialist_findings,omitempty"`
	Confidence         float64       `json:"confidence"`
	Sources            []string      `json:"sources"`
	ProcessingTime     time.Duration `json:"processing_time"`
	EnhancedQuery      string        `json:"enhanced_query,omitempty"`
	ContextUsed        bool          `json:"context_used"`
	Report             string        `json:"report,omitempty"`
}

// CrossReference 两个角色之间相近的洞察
type CrossReference struct {
	PersonaA   string  `json:"persona1"`
	PersonaB   string  `json:"persona2"`
	InsightA   string  `json:"insight1"`
	InsightB   string  `json:"insight2"`
	Similarity float64 `json:"similarity"`
}

// SharedContext 角色之间共享的洞察
type SharedContext struct {
	CommonThemes      []string         `json:"common_themes"`
	CrossReferences   []CrossReference `json:"cross_references"`
	AllInsights       []string         `json:"all_insights"`
	UniqueSources     []string         `json:"unique_sources"`
	AverageConfidence float64          `json:"average_confidence"`
	PersonaCount      int              `json:"persona_count"`
}

// Synthesis 多角色综合结论
type Synthesis struct {
	ExecutiveSummary     string    `json:"executive_summary"`
	DetailedSynthesis    string    `json:"detailed_synthesis"`
	KeyFindings          []string  `json:"key_findings"`
	CrossPersonaInsights []string  `json:"cross_persona_insights"`
	ConfidenceAssessment float64   `json:"confidence_assessment"`
	Recommendations      []string  `json:"recommendations"`
	PersonasInvolved     []string  `json:"personas_involved"`
	TotalSources         int       `json:"total_sources"`
	Timestamp            time.Time `json:"synthesis_timestamp"`
	Method               string    `json:"synthesis_method"`
}

// Communication 协作通信日志条目
type Communication struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
	PersonaID        string    `json:"persona_id,omitempty"`
	Action           string    `json:"action"`
	InsightsShared   int       `json:"insights_shared"`
	ContextReceived  int       `json:"context_received"`
	PersonasInvolved []string  `json:"personas_involved,omitempty"`
	CrossReferences  int       `json:"cross_references,omitempty"`
	Summary          string    `json:"communication_summary"`
}

// Session 一次协作研究，只在单次请求内存活
type Session struct {
	ID             string           `json:"session_id"`
	PersonaIDs     []string         `json:"personas"`
	Query          string           `json:"query"`
	Mode           Mode             `json:"mode"`
	Status         Status           `json:"status"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"start_time"`
	EndedAt        time.Time        `json:"end_time"`
	Duration       time.Duration    `json:"processing_time"`
	Results        []*PersonaResult `json:"individual_results"`
	SharedContext  *SharedContext   `json:"shared_context,omitempty"`
	Synthesis      *Synthesis       `json:"synthesized_result,omitempty"`
	Communications []Communication  `json:"collaboration_log"`
}

// Result 按角色 ID 查找结果
func (s *Session) Result(personaID string) (*PersonaResult, bool) {
	for _, r := range s.Results {
		if r != nil && r.PersonaID == personaID {
			return r, true
		}
	}
	return nil, false
}

func (s *Session) succeeded() []*PersonaResult {
	var out []*PersonaResult
	for _, r := range s.Results {
		if r != nil && r.Success {
			out = append(out, r)
		}
	}
	return out
}
