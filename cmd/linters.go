package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/runner"
)

var lintersCmd = &cobra.Command{
	Use:   "linters",
	Short: "List registered linters and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry := linters.Default()
		linterRunner := runner.New(registry, localLister{}, cfg.Runner)
		statuses := linterRunner.AllLinterStatus(context.Background())

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("%-16s %-12s %-12s %s\n", "LINTER", "AVAILABLE", "VERSION", "EXTENSIONS")
		for _, d := range registry.List() {
			status := statuses[d.Name]
			availability := red("no")
			version := "-"
			if status.Available {
				availability = green("yes")
				if status.Version != "" {
					version = status.Version
				}
			}
			fmt.Printf("%-16s %-21s %-12s %s\n", d.Name, availability, version, strings.Join(d.Extensions, " "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintersCmd)
}
