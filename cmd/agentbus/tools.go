package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/szaher/agentbus/internal/tools"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, t := range tools.Catalog {
				fmt.Fprintf(w, "%s\n  %s\n", t.Name, t.Description)
				for _, p := range t.Params {
					var flags []string
					if p.Required {
						flags = append(flags, "required")
					}
					if p.Type != "string" {
						flags = append(flags, p.Type)
					}
					suffix := ""
					if len(flags) > 0 {
						suffix = " (" + strings.Join(flags, ", ") + ")"
					}
					fmt.Fprintf(w, "    %s%s: %s\n", p.Name, suffix, p.Description)
				}
			}
			return nil
		},
	}
}
