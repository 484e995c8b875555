package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photostudio/internal/templates"
)

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in style templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := templates.Default()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, cat := range catalog.Categories() {
				fmt.Fprintln(out, cat.Name)
				for _, t := range cat.Templates {
					fmt.Fprintf(out, "  %-12s %s\n", t.ID, t.Name)
				}
			}
			return nil
		},
	}
}
