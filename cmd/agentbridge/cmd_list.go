package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var checkAvailable bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered backend ids",
		RunE: func(c *cobra.Command, _ []string) error {
			return runList(c.Context(), checkAvailable)
		},
	}
	cmd.Flags().BoolVar(&checkAvailable, "check", false, "Probe each backend's Available() before printing")
	return cmd
}

func runList(ctx context.Context, checkAvailable bool) error {
	reg := buildRegistry(newLogger())
	for _, name := range reg.List() {
		if !checkAvailable {
			fmt.Println(name)
			continue
		}
		adapter, _ := reg.Lookup(name)
		status := "unavailable"
		if adapter.Available(ctx) {
			status = "available"
		}
		fmt.Printf("%s\t%s\n", name, status)
	}
	return nil
}
