package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oryxcart/sentinel/internal/compliance"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with compliance rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a compliance rule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	rules, err := compliance.LoadRuleFile(args[0])
	if err != nil {
		return err
	}
	for _, rule := range rules {
		fmt.Printf("%-28s %-8s enabled=%-5t conditions=%d actions=%d\n",
			rule.ID, rule.Category, rule.Enabled, len(rule.Conditions), len(rule.Actions))
	}
	fmt.Printf("%d rules OK\n", len(rules))
	return nil
}
