package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.2.0"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Security and compliance engine for the commerce platform",
	Long: `Sentinel watches the platform's request traffic, turns observations
into security events with automated responses, evaluates business records
against compliance rules, and keeps an immutable audit trail. It exposes an
administrative HTTP API for security operators.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}
