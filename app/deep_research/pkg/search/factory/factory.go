package factory

import (
	"fmt"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/searxng"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/serper"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/tavily"
)

// NewSearcher 根据配置创建搜索实例
func NewSearcher(cfg *config.Config) (search.Searcher, error) {
	sc := cfg.Search
	switch sc.Provider {
	case "", "serper":
		if sc.Serper.APIKey == "" {
			return nil, fmt.Errorf("%w: serper api key", config.ErrMissingCredential)
		}
		return serper.NewClient(sc.Serper.APIKey,
			serper.WithBaseURL(sc.Serper.BaseURL),
			serper.WithMaxRetries(sc.MaxRetries),
		), nil

	case "tavily":
		if sc.Tavily.APIKey == "" {
			return nil, fmt.Errorf("%w: tavily api key", config.ErrMissingCredential)
		}
		return tavily.NewClient(sc.Tavily.APIKey, sc.Tavily.BaseURL, sc.MaxRetries), nil

	case "searxng":
		if sc.SearXNG.BaseURL == "" {
			return nil, fmt.Errorf("%w: searxng base url", config.ErrMissingCredential)
		}
		return searxng.NewClient(sc.SearXNG.BaseURL, sc.SearXNG.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown search provider: %s", sc.Provider)
	}
}
