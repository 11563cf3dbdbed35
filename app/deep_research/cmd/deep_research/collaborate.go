package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/collab"
)

func newCollaborateCmd(v *viper.Viper) *cobra.Command {
	var (
		query    string
		personas []string
		mode     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "collaborate",
		Short: "Run several personas on one query and merge their findings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			eng, err := setup(ctx, v)
			if err != nil {
				return err
			}

			s, err := collab.FromEngine(eng).Run(ctx, query, personas, collab.Mode(mode))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(s); err != nil {
					return err
				}
			} else if s.Status == collab.StatusCompleted {
				fmt.Fprint(out, renderSession(s))
			}
			if s.Status != collab.StatusCompleted {
				return fmt.Errorf("collaboration %s failed: %w", s.ID, errors.New(s.Error))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "research query")
	cmd.Flags().StringSliceVar(&personas, "personas", []string{"research", "analyst"}, "comma separated persona ids")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(collab.ModeParallel), "parallel or sequential")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
