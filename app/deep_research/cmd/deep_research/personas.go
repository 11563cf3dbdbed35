package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
)

func newPersonasCmd(v *viper.Viper) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "List research personas, or suggest personas for a query",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			reg, err := persona.Load(cfg.PersonaFile)
			if err != nil {
				return err
			}

			list := reg.List()
			if match != "" {
				list = reg.Match(match)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSPECIALTY\tKEYWORDS")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", p.ID, p.Icon, p.Name, p.Specialty, strings.Join(p.Keywords, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "only show personas whose keywords match this query")
	return cmd
}
