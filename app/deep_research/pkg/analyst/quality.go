package analyst

import (
	"sort"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

// 质量筛选阈值
const (
	minContentLength  = 100
	minRelevance      = 0.2
	maxQualitySources = 3
)

// Quality 计算来源用于事实抽取的质量分
func Quality(src *model.ExtractedSource) float64 {
	var score float64
	switch n := src.ContentLength; {
	case n >= 500:
		score += 0.3
	case n >= 200:
		score += 0.2
	case n >= 100:
		score += 0.1
	}

	score += min(src.RelevanceScore*0.4, 0.4)
	if src.ExtractionSucceeded {
		score += 0.2
	}
	if model.IsTrustedDomain(src.URL) {
		score += 0.1
	}
	return score
}

// SelectQuality 为每个来源写入质量分，保留正文足够长且相关度达标的来源，按质量降序取前 3
func SelectQuality(sources []*model.ExtractedSource) []*model.ExtractedSource {
	kept := make([]*model.ExtractedSource, 0, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		src.QualityScore = Quality(src)
		if src.ContentLength >= minContentLength && src.RelevanceScore >= minRelevance {
			kept = append(kept, src)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].QualityScore > kept[j].QualityScore
	})
	if len(kept) > maxQualitySources {
		kept = kept[:maxQualitySources]
	}
	return kept
}
