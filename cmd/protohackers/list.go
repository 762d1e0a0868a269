package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/protohackers/config"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available services",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, s := range config.Services {
				fmt.Fprintf(out, "%2d  %-10s %s\n", s.Number, s.Name, s.Desc)
			}
		},
	}
}
