package scout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/fetch"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
)

// 补充检索使用的后缀，每个后缀最多取前 3 条结果
var deepenSuffixes = []string{"research analysis", "technical details", "case studies examples"}

const deepenTopN = 3

// Options Scout 参数
type Options struct {
	MinSourcesPerQuery       int
	TargetSourcesPerQuestion int
	MaxSearchResults         int
	Workers                  int
	QuestionDelay            time.Duration
	DeepenDelay              time.Duration
	Locale                   search.Locale
	RecencyWindow            string
}

// OptionsFromConfig 从配置构造 Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinSourcesPerQuery:       cfg.Research.MinSourcesPerQuery,
		TargetSourcesPerQuestion: cfg.Research.TargetSourcesPerQuestion,
		MaxSearchResults:         cfg.Search.MaxResults,
		Workers:                  cfg.Research.FetchWorkers,
		QuestionDelay:            cfg.Research.QuestionDelay,
		DeepenDelay:              cfg.Research.DeepenDelay,
		Locale:                   search.Locale{GL: cfg.Search.GL, HL: cfg.Search.HL},
		RecencyWindow:            cfg.Search.Recency,
	}
}

// Scout 为每个子问题检索、抽取并排序来源
type Scout struct {
	searcher search.Searcher
	fetcher  fetch.Fetcher
	opts     Options

	// 出站搜索请求串行化
	searchMu sync.Mutex
}

// New 创建 Scout
func New(searcher search.Searcher, fetcher fetch.Fetcher, opts Options) *Scout {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultFetchWorkers
	}
	if opts.TargetSourcesPerQuestion <= 0 {
		opts.TargetSourcesPerQuestion = config.DefaultTargetSourcesPerQuestion
	}
	if opts.MinSourcesPerQuery <= 0 {
		opts.MinSourcesPerQuery = config.DefaultMinSourcesPerQuery
	}
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = config.DefaultMaxSearchResults
	}
	return &Scout{searcher: searcher, fetcher: fetcher, opts: opts}
}

// Gather 依次处理每个子问题，单个子问题失败时得到空列表
func (s *Scout) Gather(ctx context.Context, questions []string) *model.SourceSet {
	log := logger.Stage("scout")
	set := model.NewSourceSet()

	for i, q := range questions {
		log.Infof("[%d/%d] 检索: %s", i+1, len(questions), q)
		set.Put(q, s.gatherSafe(ctx, q))
		log.Infof("[%d/%d] 保留 %d 个来源", i+1, len(questions), len(set.Sources[q]))

		if i < len(questions)-1 {
			sleep(ctx, s.opts.QuestionDelay)
		}
	}

	log.Infof("检索完成，共 %d 个来源", set.Total())
	return set
}

func (s *Scout) gatherSafe(ctx context.Context, question string) (out []*model.ExtractedSource) {
	defer func() {
		if r := recover(); r != nil {
			logger.Stage("scout").Errorf("子问题检索异常 [%s]: %v", question, r)
			out = []*model.ExtractedSource{}
		}
	}()
	return s.GatherOne(ctx, question)
}

// GatherOne 处理单个子问题：两路检索、去重、并发抽取、必要时补充检索，最后按相关度截断
func (s *Scout) GatherOne(ctx context.Context, question string) []*model.ExtractedSource {
	results := append(s.search(ctx, question), s.search(ctx, question+" guide examples")...)
	unique := Dedupe(results)
	sources := s.extractAll(ctx, unique)

	if len(sources) < s.opts.MinSourcesPerQuery {
		seen := make(map[string]struct{}, len(unique))
		for _, r := range unique {
			seen[NormalizeURL(r.URL)] = struct{}{}
		}
		extra := s.deepen(ctx, question, len(sources), seen)
		if len(extra) > 0 {
			logger.Stage("scout").Infof("来源不足 %d，补充 %d 条", s.opts.MinSourcesPerQuery, len(extra))
			sources = append(sources, s.extractAll(ctx, extra)...)
		}
	}

	ranked := Rank(question, sources)
	if len(ranked) > s.opts.TargetSourcesPerQuestion {
		ranked = ranked[:s.opts.TargetSourcesPerQuestion]
	}
	return ranked
}

// deepen 补充检索，返回最多 min-current 条未见过的结果
func (s *Scout) deepen(ctx context.Context, question string, current int, seen map[string]struct{}) []model.SearchResult {
	needed := s.opts.MinSourcesPerQuery - current
	var out []model.SearchResult

	for i, suffix := range deepenSuffixes {
		if len(out) >= needed || ctx.Err() != nil {
			break
		}
		if i > 0 {
			sleep(ctx, s.opts.DeepenDelay)
		}

		taken := 0
		for _, r := range s.search(ctx, fmt.Sprintf("%s %s", question, suffix)) {
			if taken == deepenTopN {
				break
			}
			key := NormalizeURL(r.URL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
			taken++
		}
	}

	if len(out) > needed {
		out = out[:needed]
	}
	return out
}

// SearchWeb 单次检索，搜索失败返回空列表
func (s *Scout) SearchWeb(ctx context.Context, query string, n int) []model.SearchResult {
	results := s.search(ctx, query)
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results
}

// search 串行化的搜索调用，错误被记录并转换为空结果
func (s *Scout) search(ctx context.Context, query string) []model.SearchResult {
	s.searchMu.Lock()
	resp, err := s.searcher.Search(ctx, &search.Request{
		Query:         query,
		MaxResults:    s.opts.MaxSearchResults,
		Locale:        s.opts.Locale,
		RecencyWindow: s.opts.RecencyWindow,
	})
	s.searchMu.Unlock()

	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		logger.Stage("scout").Warnf("搜索失败 [%s]: %v", query, err)
		return nil
	}
	metrics.SearchRequests.WithLabelValues("success").Inc()
	if resp == nil {
		return nil
	}

	cleaned := search.CleanQuery(query)
	out := make([]model.SearchResult, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		title, snippet := r.Title, r.Snippet
		if title == "" {
			title = "No title"
		}
		if snippet == "" {
			snippet = "No snippet"
		}
		out = append(out, model.SearchResult{
			Title:          title,
			URL:            r.URL,
			Snippet:        snippet,
			SourceQuery:    cleaned,
			SearchPosition: len(out) + 1,
		})
	}
	return out
}

// extractAll 并发抽取正文。去重已在派发前完成，每个 worker 只写自己的下标
func (s *Scout) extractAll(ctx context.Context, results []model.SearchResult) []*model.ExtractedSource {
	out := make([]*model.ExtractedSource, len(results))

	// worker 永远返回 nil，单个抓取失败不会取消其他抓取
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, r := range results {
		g.Go(func() error {
			out[i] = s.extractOne(gctx, r)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Scout) extractOne(ctx context.Context, r model.SearchResult) (src *model.ExtractedSource) {
	defer func() {
		if rec := recover(); rec != nil {
			src = snippetSource(r, fmt.Errorf("extract panic: %v", rec))
		}
	}()

	c := s.fetcher.Fetch(ctx, r.URL, r.Snippet)
	if !c.Success {
		metrics.FetchResults.WithLabelValues("snippet_fallback").Inc()
		return snippetSource(r, c.Err)
	}
	metrics.FetchResults.WithLabelValues("extracted").Inc()
	return &model.ExtractedSource{
		SearchResult:        r,
		ExtractedContent:    c.Text,
		ContentLength:       c.Length,
		ExtractionSucceeded: true,
	}
}

func snippetSource(r model.SearchResult, err error) *model.ExtractedSource {
	src := &model.ExtractedSource{
		SearchResult:     r,
		ExtractedContent: r.Snippet,
		ContentLength:    len([]rune(r.Snippet)),
	}
	if err != nil {
		src.ExtractionError = err.Error()
	}
	return src
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
