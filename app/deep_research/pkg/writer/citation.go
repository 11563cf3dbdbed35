package writer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

// 常见站点的固定标题，按顺序匹配
var domainTitles = []struct {
	domain string
	title  string
}{
	{"arxiv.org", "ArXiv Research Paper"},
	{"github.com", "GitHub Repository"},
	{"stackoverflow.com", "Stack Overflow"},
	{"medium.com", "Medium Article"},
	{"towardsdatascience.com", "Towards Data Science"},
	{"pytorch.org", "PyTorch Documentation"},
	{"tensorflow.org", "TensorFlow Documentation"},
	{"wikipedia.org", "Wikipedia"},
	{"nature.com", "Nature Journal"},
	{"sciencedirect.com", "ScienceDirect"},
}

// BuildCitationMap 按子问题顺序遍历答案的来源 URL，每个 URL 只记录第一次出现
func BuildCitationMap(analysis *model.AnalysisResult) model.CitationMap {
	citations := make(model.CitationMap)
	if analysis == nil {
		return citations
	}
	for _, ans := range analysis.OrderedAnswers() {
		for _, u := range ans.SourceURLs {
			if _, ok := citations[u]; ok {
				continue
			}
			citations[u] = model.CitationEntry{
				URL:               u,
				Title:             TitleFromURL(u),
				OriginSubQuestion: ans.Question,
			}
		}
	}
	return citations
}

// TitleFromURL 由 URL 推导可读标题：先查固定表，否则把域名去掉常见后缀后转为标题格式
func TitleFromURL(u string) string {
	host := strings.TrimPrefix(model.Host(u), "www.")
	if host == "" {
		return "Source"
	}

	for _, d := range domainTitles {
		if strings.Contains(host, d.domain) {
			return d.title
		}
	}

	name := host
	for _, suffix := range []string{".com", ".org", ".edu"} {
		name = strings.ReplaceAll(name, suffix, "")
	}
	name = strings.NewReplacer(".", " ", "-", " ").Replace(name)

	// Caser 有状态，每次调用新建
	return cases.Title(language.English).String(name)
}
