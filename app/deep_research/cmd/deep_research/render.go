package main

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/collab"
)

// renderSession 协作结果的 Markdown 输出
func renderSession(s *collab.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Collaborative Research: %s\n\n", s.Query)
	fmt.Fprintf(&b, "Session: %s | Mode: %s | Personas: %s\n\n", s.ID, s.Mode, strings.Join(s.PersonaIDs, ", "))

	syn := s.Synthesis
	if syn == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", syn.ExecutiveSummary)
	writeList(&b, "Key Findings", syn.KeyFindings)
	writeList(&b, "Cross-Persona Insights", syn.CrossPersonaInsights)
	writeList(&b, "Recommendations", syn.Recommendations)
	fmt.Fprintf(&b, "## Confidence\n\n%.0f%% across %d sources (%s)\n\n", syn.ConfidenceAssessment*100, syn.TotalSources, syn.Method)

	if syn.DetailedSynthesis != "" {
		fmt.Fprintf(&b, "## Detailed Synthesis\n\n%s\n\n", syn.DetailedSynthesis)
	}
	for _, r := range s.Results {
		if !r.Success {
			fmt.Fprintf(&b, "## %s\n\nFailed: %s\n\n", r.PersonaName, r.Error)
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", r.PersonaName, r.ExecutiveSummary)
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
