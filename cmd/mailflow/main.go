// mailflow runs the email classification pipeline.
//
// Usage:
//
//	mailflow serve classifier|router|handlers|all [--config mailflow.yaml]
//	mailflow classify --file email.json [--url http://localhost:8001/classify]
//	mailflow watch [--subject mail.>]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/mailflow/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "mailflow",
	Short: "Classify incoming email and route it to workflow handlers",
	Long: `mailflow classifies normalized emails with an LLM, forces low-confidence
results to human review, and routes each email to its workflow handler with a
single fallback to human review when the handler is unreachable.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "",
		"path to the YAML config file (default $MAILFLOW_CONFIG or "+config.DefaultConfigFile+")")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration honoring --config.
func loadConfig() (*config.Config, error) {
	if rootFlags.configPath != "" {
		return config.LoadFrom(rootFlags.configPath)
	}
	return config.Load()
}
