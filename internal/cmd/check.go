package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conclave-sh/conclave/internal/config"
	"github.com/conclave-sh/conclave/internal/guard"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/orchestrator"
	"github.com/conclave-sh/conclave/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check <agent-id> <action>",
	Short: "Screen one action through the constitutional guard",
	Long: `Run a single action through the two-tier constitutional guard and
print the decision. A blocked action exits with status 2 so the command
composes in scripts; vote-required exits 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("context", "", "action context screened alongside the action")
	checkCmd.Flags().StringSlice("affected", nil, "agent ids the action would affect")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	agent, err := identity.Parse(args[0])
	if err != nil {
		return err
	}
	action := args[1]
	actionContext, _ := cmd.Flags().GetString("context")
	affected, _ := cmd.Flags().GetStringSlice("affected")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, logging.NopLogger())
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(cmd.Context(), cfg, st, logging.NopLogger())
	if err != nil {
		st.Close()
		return err
	}

	decision := orch.Guard().CheckAction(cmd.Context(), agent, action, actionContext, affected)
	st.Close()

	fmt.Printf("Verdict:  %s\n", decision.Verdict)
	fmt.Printf("Severity: %s\n", decision.Severity)
	fmt.Printf("Reason:   %s\n", decision.Explanation)
	if len(decision.Citations) > 0 {
		fmt.Printf("Cites:    %s\n", strings.Join(decision.Citations, ", "))
	}

	switch decision.Verdict {
	case guard.VerdictBlock:
		os.Exit(2)
	case guard.VerdictVoteRequired:
		os.Exit(1)
	}
	return nil
}
