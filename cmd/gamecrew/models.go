package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models of the catalog and their token limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadModelCatalog(a.cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tINPUT\tOUTPUT\tCONFIGURED")
			for _, m := range catalog.ListModels("") {
				mark := ""
				if mi := catalog.GetModelInfo(a.cfg.Model.Name); mi != nil && mi.ID == m.ID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", m.ID, m.DisplayName, m.InputTokenLimit, m.OutputTokenLimit, mark)
			}
			return tw.Flush()
		},
	}
}
