package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/clicky"
	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"
	"github.com/spf13/cobra"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
	"github.com/flanksource/lint-api/runner"
	"github.com/flanksource/lint-api/workspace"
)

var (
	lintFix     bool
	lintTimeout int
)

var lintCmd = &cobra.Command{
	Use:   "lint <linter> [path]",
	Short: "Run a registered linter against a local directory",
	Long: `Run one of the registered linters against a local directory without
going through the HTTP API. The directory defaults to the working
directory.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		linterName := args[0]
		dir := "."
		if len(args) > 1 {
			dir = args[1]
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
			return fmt.Errorf("not a directory: %s", absDir)
		}

		return lintLocal(cfg, linterName, absDir)
	},
}

func init() {
	lintCmd.Flags().BoolVar(&lintFix, "fix", false, "Ask the linter to fix what it can")
	lintCmd.Flags().IntVar(&lintTimeout, "timeout", 0, "Timeout in milliseconds (0 uses the linter default)")
	rootCmd.AddCommand(lintCmd)
}

// localLister adapts a local directory to the runner's file listing
// contract without materializing a workspace copy
type localLister struct{}

func (localLister) ListFiles(path string) ([]string, error) {
	return workspace.ListFiles(path)
}

func lintLocal(cfg *config.Config, linterName, dir string) error {
	registry := linters.Default()
	if !registry.Has(linterName) {
		return fmt.Errorf("unknown linter %q; run 'lint-api linters' for the registered set", linterName)
	}

	linterRunner := runner.New(registry, localLister{}, cfg.Runner)

	lintTask := clicky.StartTask[*models.ExecutionResult](fmt.Sprintf("Running %s on %s", linterName, dir),
		func(ctx flanksourceContext.Context, t *task.Task) (*models.ExecutionResult, error) {
			execution := models.Execution{
				Linter:        linterName,
				WorkspacePath: dir,
				Options:       &models.LintOptions{Fix: lintFix, TimeoutMs: lintTimeout},
				TimeoutMs:     lintTimeout,
			}

			started := time.Now()
			result, err := linterRunner.Run(ctx, execution)
			if err != nil {
				return nil, err
			}
			t.Infof("%s finished in %s with %d issues", linterName, time.Since(started).Truncate(time.Millisecond), len(result.Issues))
			return result, nil
		})

	result, err := lintTask.GetResult()
	if err != nil {
		return err
	}

	for _, issue := range result.Issues {
		fmt.Println(issue.String())
	}
	fmt.Printf("\n%d issues (%d errors, %d warnings) across %d files\n",
		len(result.Issues), result.ErrorCount(), result.WarningCount(), result.FileCount)
	return nil
}
