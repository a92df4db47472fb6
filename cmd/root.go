package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/flanksource/clicky"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flanksource/lint-api/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lint-api",
	Short: "HTTP API for running linters against submitted code",
	Long: `lint-api exposes a uniform HTTP interface for running a curated set of
linters (eslint, golangci-lint, ruff, shellcheck, hadolint, markdownlint,
yamllint, vale) against submitted code fragments or project archives.

Results are normalized, cached by content and options, and available
synchronously or through asynchronous jobs.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Wait for any background clicky tasks to complete
	exitCode := clicky.WaitForGlobalCompletion()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lint-api.yaml)")
	logger.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lint-api")
	}

	viper.SetEnvPrefix("LINT_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

// loadConfig materializes the validated configuration from the viper tree
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
