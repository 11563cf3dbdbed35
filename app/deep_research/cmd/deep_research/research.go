package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
)

func newResearchCmd(v *viper.Viper) *cobra.Command {
	var (
		query     string
		questions int
		personaID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Run the full research pipeline for one query",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			eng, err := setup(ctx, v)
			if err != nil {
				return err
			}

			res := eng.Research(ctx, query, engine.RunOptions{
				SubQuestions: questions,
				Persona:      personaID,
				ProgressCallback: func(status string, progress int) {
					logger.Log.Infof("[%3d%%] %s", progress, status)
				},
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if res.Success {
				fmt.Fprintln(out, res.Report.MarkdownText)
			}
			if !res.Success {
				return fmt.Errorf("research failed in %s phase: %w", res.Phase, errors.New(res.Error))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "research query")
	cmd.Flags().IntVarP(&questions, "questions", "n", 0, "number of sub-questions (default from config)")
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "research persona id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
