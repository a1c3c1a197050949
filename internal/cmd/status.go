package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conclave-sh/conclave/internal/config"
	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show governance state",
	Long:  `Display the active constitution, registered agents, recent guard decisions, and recent deliberations.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("limit", 10, "how many recent decisions and votes to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := store.Open(cfg.Store.Path, logging.NopLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()

	doc, err := st.ActivePolicy(ctx)
	switch {
	case errors.Is(err, errors.ErrPolicyUnavailable):
		fmt.Println("Constitution: none active")
	case err != nil:
		return err
	default:
		fmt.Printf("Constitution: %s v%d (%d articles, %d prohibited actions)\n",
			doc.ID, doc.Version, len(doc.Articles), len(doc.ProhibitedActions))
	}

	fmt.Println("\nAgents:")
	tiers := []identity.Tier{
		identity.TierHead, identity.TierCouncil, identity.TierLead, identity.TierTask,
		identity.TierCriticQuality, identity.TierCriticSafety, identity.TierCriticAlignment,
	}
	for _, tier := range tiers {
		agents, err := st.AgentsInTier(ctx, tier)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			continue
		}
		pending := 0
		for _, id := range agents {
			depth, err := st.QueueDepth(ctx, id, id)
			if err != nil {
				return err
			}
			pending += depth
		}
		fmt.Printf("  %-16s %d agents, %d pending messages\n", tier.String(), len(agents), pending)
	}

	decisions, err := st.RecentDecisions(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("\nRecent decisions (%d):\n", len(decisions))
	for _, d := range decisions {
		fmt.Printf("  %s  %-5s %-14s %s\n",
			d.CreatedAt.Format("2006-01-02 15:04:05"), d.AgentID, d.Verdict, d.Action)
	}

	votes, err := st.RecentVotes(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("\nRecent deliberations (%d):\n", len(votes))
	for _, v := range votes {
		line := fmt.Sprintf("  %-12s %-9s for=%d against=%d abstain=%d  %s",
			v.Kind, v.Outcome, v.VotesFor, v.VotesAgainst, v.Abstentions, v.Topic)
		if v.OverrideBy != "" {
			line += fmt.Sprintf("  [overridden by %s]", v.OverrideBy)
		}
		fmt.Println(line)
	}

	return nil
}
