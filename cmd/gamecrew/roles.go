package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danshapiro/gamecrew/internal/roles"
)

func newRolesCmd(a *app) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List the team roles, or print one role's system instruction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if show == "" {
				for _, name := range roles.Names() {
					fmt.Fprintln(w, name)
				}
				return nil
			}
			reg, err := roles.LoadRegistry(a.cfg.RolesCatalog)
			if err != nil {
				return err
			}
			_, text, err := reg.LookupName(show)
			if err != nil {
				return err
			}
			fmt.Fprint(w, text)
			return nil
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Print the system instruction of this role")
	return cmd
}
