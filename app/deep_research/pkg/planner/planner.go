package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
)

// MaxSubQuestions 单次分解的子问题上限，与模板数量一致
const MaxSubQuestions = 10

// fallbackTemplates 生成失败时使用的固定模板，%s 为原始查询
var fallbackTemplates = [MaxSubQuestions]string{
	"What is %s and how does it work?",
	"What are the current applications and use cases of %s?",
	"What are the advantages and benefits of %s?",
	"What are the challenges and limitations of %s?",
	"What are the recent developments in %s?",
	"What is the market outlook for %s?",
	"Which organizations and companies are leading in %s?",
	"What are the key statistics and data about %s?",
	"How does %s compare to alternative approaches?",
	"What regulations and standards apply to %s?",
}

const planningPrompt = `TASK: Break down this research query into %[1]d focused, web-searchable sub-questions.

USER QUERY: "%[2]s"
%[3]s
Generate sub-questions that are:
1. SPECIFIC and FOCUSED (not broad or vague)
2. WEB-SEARCHABLE (will find concrete information online)
3. COMPLEMENTARY (cover different aspects without overlap)
4. ACTIONABLE (lead to factual, citable information)
5. COMPREHENSIVE (together cover the full scope)

Avoid questions that are philosophical or opinion-based. Focus on factual, data-driven aspects.

EXAMPLES of GOOD sub-questions:
- "What are the current market statistics for [specific technology]?"
- "Which companies are leading in [specific field] and what are their key products?"
- "What challenges and limitations exist with [specific technology]?"

EXAMPLES of BAD sub-questions:
- "What is the future of [broad topic]?" (too vague)
- "Should people use [technology]?" (opinion-based)

FORMAT: Return ONLY a JSON array of %[1]d strings:
["specific sub-question 1", "specific sub-question 2", ...]`

// Planner 将用户查询分解为子问题
type Planner struct {
	gen llm.Generator
}

// New 创建 Planner
func New(gen llm.Generator) *Planner {
	return &Planner{gen: gen}
}

// ClampCount 将目标数量限制在 [1, MaxSubQuestions]
func ClampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxSubQuestions {
		return MaxSubQuestions
	}
	return n
}

// Decompose 生成不超过 targetCount 个子问题，任何失败都回退到模板
func (p *Planner) Decompose(ctx context.Context, query string, targetCount int) []string {
	return p.DecomposeWithBackground(ctx, query, "", targetCount)
}

// DecomposeWithBackground 同 Decompose，background 为其他角色已有的发现，只进入提示词，不影响模板回退
func (p *Planner) DecomposeWithBackground(ctx context.Context, query, background string, targetCount int) []string {
	n := ClampCount(targetCount)
	log := logger.Stage("planner")

	var section string
	if background = strings.TrimSpace(background); background != "" {
		section = fmt.Sprintf("\nBACKGROUND (findings from earlier analysts; go deeper instead of repeating them):\n%s\n", background)
	}

	text, err := p.gen.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(planningPrompt, n, query, section),
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err != nil {
		log.Warnf("子问题生成失败，使用模板回退: %v", err)
		metrics.Fallback("planner")
		return Fallback(query, n)
	}

	questions, err := llm.DecodeStringArray(text)
	if err != nil {
		questions = parseLines(text)
	}
	questions = clean(questions, n)
	if len(questions) == 0 {
		log.Warn("模型输出中没有可用的子问题，使用模板回退")
		metrics.Fallback("planner")
		return Fallback(query, n)
	}

	log.Infof("生成 %d 个子问题", len(questions))
	return questions
}

// Fallback 用固定模板生成恰好 n 个子问题，n 会被限制在 [1, MaxSubQuestions]
func Fallback(query string, n int) []string {
	n = ClampCount(n)
	query = strings.TrimSpace(query)
	out := make([]string, 0, n)
	for _, tpl := range fallbackTemplates[:n] {
		out = append(out, fmt.Sprintf(tpl, query))
	}
	return out
}

// parseLines 没有 JSON 数组时按行解析：接受引号包裹的行和 "- " 开头的行
func parseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case len(line) >= 2 && strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`):
			out = append(out, line[1:len(line)-1])
		case strings.HasPrefix(line, "- "):
			out = append(out, strings.Trim(strings.TrimSpace(line[2:]), `"`))
		}
	}
	return out
}

func clean(questions []string, n int) []string {
	out := make([]string, 0, n)
	for _, q := range questions {
		q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ","))
		q = strings.Trim(q, `"`)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}
