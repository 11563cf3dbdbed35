package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DefaultID 未指定角色时使用的通用研究角色
const DefaultID = "research"

// ErrUnknownPersona 角色 ID 不在注册表中
var ErrUnknownPersona = errors.New("unknown persona")

//go:embed personas.yaml
var builtin []byte

// Persona 领域研究角色，只改变查询侧重点，研究流程相同
type Persona struct {
	ID                 string   `yaml:"id" json:"id"`
	Name               string   `yaml:"name" json:"name"`
	Icon               string   `yaml:"icon" json:"icon"`
	Specialty          string   `yaml:"specialty" json:"specialty"`
	Description        string   `yaml:"description" json:"description"`
	UseCases           []string `yaml:"use_cases" json:"use_cases"`
	Keywords           []string `yaml:"keywords" json:"keywords"`
	FocusTerms         string   `yaml:"focus_terms" json:"focus_terms"`
	SpecialistKeywords []string `yaml:"specialist_keywords" json:"specialist_keywords"`
	AnalysisType       string   `yaml:"analysis_type" json:"analysis_type"`
}

// FocusQuery 在查询后追加角色的检索侧重词
func (p Persona) FocusQuery(query string) string {
	query = strings.TrimSpace(query)
	if p.FocusTerms == "" {
		return query
	}
	return query + " " + p.FocusTerms
}

// Registry 只读角色表，加载后不再修改
type Registry struct {
	order []string
	byID  map[string]Persona
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default 返回内置角色表
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(builtin)
		if err != nil {
			panic(fmt.Sprintf("内置角色表无效: %v", err))
		}
		defaultReg = r
	})
	return defaultReg
}

// Load 从文件加载角色表，path 为空时返回内置角色表
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 角色列表，ID 必须非空且唯一
func Parse(data []byte) (*Registry, error) {
	var list []Persona
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if len(list) == 0 {
		return nil, errors.New("persona table is empty")
	}

	r := &Registry{byID: make(map[string]Persona, len(list))}
	for _, p := range list {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		if p.ID == "" {
			return nil, errors.New("persona id is empty")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id: %s", p.ID)
		}
		if p.AnalysisType == "" {
			p.AnalysisType = p.ID
		}
		r.order = append(r.order, p.ID)
		r.byID[p.ID] = p
	}
	return r, nil
}

// Get 按 ID 查找角色，大小写不敏感
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// Resolve 按顺序解析一组 ID，重复 ID 只保留一次
func (r *Registry) Resolve(ids []string) ([]Persona, error) {
	out := make([]Persona, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		p, ok := r.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, id)
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// IDs 按注册顺序返回全部 ID
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// List 按注册顺序返回全部角色
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Match 按查询命中的关键词数量推荐角色，只返回有命中的角色，并列时保持注册顺序
func (r *Registry) Match(query string) []Persona {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-'
	}) {
		words[w] = struct{}{}
	}

	type scored struct {
		p     Persona
		score int
	}
	var hits []scored
	for _, p := range r.List() {
		score := 0
		for _, k := range p.Keywords {
			if _, ok := words[strings.ToLower(k)]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	out := make([]Persona, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out
}
