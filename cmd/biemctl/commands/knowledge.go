package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synapsed/biem/pkg/knowledge"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Structured-fact pipeline: extraction, confirmation, retrieval",
}

var knowledgeProcessCmd = &cobra.Command{
	Use:   "process <message>",
	Short: "Run a message through extraction, conflict detection, and storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		session, _ := cmd.Flags().GetString("session")
		contributor, _ := cmd.Flags().GetString("contributor")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Knowledge.Process(cmd.Context(), args[0], source, session, contributor)
		if err != nil {
			return err
		}
		for _, t := range result.Stored {
			fmt.Printf("stored: %s %s %s\n", t.Subject, t.Predicate, t.Object)
		}
		for _, p := range result.Pending {
			fmt.Printf("pending: %s  %s\n", p.ID, p.Prompt)
		}
		if len(result.Stored) == 0 && len(result.Pending) == 0 {
			fmt.Println("no durable facts extracted")
		}
		return nil
	},
}

var knowledgeConfirmCmd = &cobra.Command{
	Use:   "confirm <pending-id>",
	Short: "Confirm or reject a pending knowledge update",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reject, _ := cmd.Flags().GetBool("reject")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		updated, err := e.Knowledge.Confirm(cmd.Context(), args[0], !reject)
		if err != nil {
			return err
		}
		if updated == nil {
			fmt.Println("discarded")
			return nil
		}
		fmt.Printf("updated: %s %s %s (version %d)\n", updated.Subject, updated.Predicate, updated.Object, updated.Version)
		return nil
	},
}

var knowledgePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending knowledge updates awaiting confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		for _, p := range e.Knowledge.PendingList() {
			fmt.Printf("%s  %s\n", p.ID, p.Prompt)
		}
		return nil
	},
}

var knowledgeQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve stored triples relevant to a text query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		expansionK, _ := cmd.Flags().GetInt("expansion-k")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		expansionMinScore, _ := cmd.Flags().GetFloat64("expansion-min-score")
		expansionWeight, _ := cmd.Flags().GetFloat64("expansion-weight")
		maxItems, _ := cmd.Flags().GetInt("max-items")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Knowledge.Query(cmd.Context(), args[0], topK, expansionK, minScore, expansionMinScore, expansionWeight, maxItems)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.4f  %s %s %s\n", r.Score, r.Triple.Subject, r.Triple.Predicate, r.Triple.Object)
		}
		return nil
	},
}

func init() {
	knowledgeProcessCmd.Flags().String("source", knowledge.SourceUser, "contribution source: user or agent_inferred")
	knowledgeProcessCmd.Flags().String("session", "", "session id")
	knowledgeProcessCmd.Flags().String("contributor", "", "contributor id")

	knowledgeConfirmCmd.Flags().Bool("reject", false, "reject instead of confirm")

	knowledgeQueryCmd.Flags().Int("top-k", 5, "primary search result count")
	knowledgeQueryCmd.Flags().Int("expansion-k", 3, "expansion search result count per primary hit")
	knowledgeQueryCmd.Flags().Float64("min-score", 0.5, "primary search minimum score")
	knowledgeQueryCmd.Flags().Float64("expansion-min-score", 0.4, "expansion search minimum score")
	knowledgeQueryCmd.Flags().Float64("expansion-weight", 0.7, "weight applied to expansion hit scores")
	knowledgeQueryCmd.Flags().Int("max-items", 10, "maximum results returned")

	knowledgeCmd.AddCommand(knowledgeProcessCmd, knowledgeConfirmCmd, knowledgePendingCmd, knowledgeQueryCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
