package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var memoryScope string

var ingestCmd = &cobra.Command{
	Use:   "ingest <content>",
	Short: "Add a memory node from text content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		id, report, err := e.Memory.Ingest(cmd.Context(), args[0], source, memoryScope)
		if err != nil {
			return err
		}
		fmt.Printf("node_id: %s\n", id)
		if report.HasConflict() {
			for _, c := range report.Conflicts {
				fmt.Printf("conflict: neighbor=%s type=%s confidence=%.2f %s\n",
					c.NeighborID, c.ConflictType, c.Confidence, c.Description)
			}
		}
		return nil
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall memory nodes matching a text query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Memory.Recall(cmd.Context(), args[0], memoryScope, topK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.4f  %s  tier=%s  %s\n", r.Score, r.Node.ID, r.Node.Tier, r.Node.Content)
		}
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <node-id> <delta>",
	Short: "Apply an energy delta in [-0.5, 0.5] to a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var delta float64
		if _, err := fmt.Sscanf(args[1], "%f", &delta); err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[1], err)
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Memory.Feedback(cmd.Context(), memoryScope, args[0], delta)
	},
}

var eventCmd = &cobra.Command{
	Use:   "event <source-id> <target-id> <reason>",
	Short: "Record an explicit causal link between two nodes",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Memory.RecordEvent(cmd.Context(), memoryScope, args[0], args[1], args[2])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report L1/L2 node population and storage footprint for a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		s, err := e.Memory.Stats(cmd.Context(), memoryScope)
		if err != nil {
			return err
		}
		fmt.Printf("l1: %d\nl2: %d\nstorage_bytes: %d\n", s.L1Count, s.L2Count, s.StorageBytes)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every node in a scope (administrative use only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Memory.Reset(cmd.Context(), memoryScope)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run background sweep/reconcile/consolidate loops until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("running maintenance loops for scope %q (ctrl-c to stop)\n", memoryScope)
		e.Memory.Run(ctx, memoryScope)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source", "user", "source tag: user, agent, or system")

	recallCmd.Flags().Int("top-k", 0, "number of results (0 uses the configured default)")

	for _, c := range []*cobra.Command{ingestCmd, recallCmd, feedbackCmd, eventCmd, statsCmd, resetCmd, runCmd} {
		c.PersistentFlags().StringVar(&memoryScope, "scope", "default", "memory scope")
	}

	rootCmd.AddCommand(ingestCmd, recallCmd, feedbackCmd, eventCmd, statsCmd, resetCmd, runCmd)
}
