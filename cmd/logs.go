package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/internal/store"
)

var (
	logsSuggestionID string
	logsDecision     string
	logsLimit        int
	logsOffset       int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List verification logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		logs, err := st.ListLogs(ctx, store.LogFilter{
			SuggestionID: logsSuggestionID,
			Decision:     model.Decision(logsDecision),
			Limit:        logsLimit,
			Offset:       logsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list logs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(logs)
	},
}

var (
	overrideLogID    string
	overrideDecision string
	overrideNote     string
	overrideReviewer string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Attach a human review decision to a verification log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		decision := model.Decision(overrideDecision)
		switch decision {
		case model.DecisionAutoApprove, model.DecisionFlagForHuman, model.DecisionAutoReject:
		default:
			return eris.Errorf("invalid decision %q", overrideDecision)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		override := model.HumanOverride{
			Decision:   decision,
			Note:       overrideNote,
			ReviewedBy: overrideReviewer,
			ReviewedAt: time.Now().UTC(),
		}
		if err := st.AnnotateLogOverride(ctx, overrideLogID, override); err != nil {
			return eris.Wrapf(err, "override log %s", overrideLogID)
		}

		// Drive the suggestion's status from the human decision too.
		vlog, err := st.GetLog(ctx, overrideLogID)
		if err != nil {
			return eris.Wrap(err, "reload log")
		}
		if decision == model.DecisionAutoApprove {
			if _, err := st.PromoteSuggestion(ctx, vlog.SuggestionID); err != nil {
				return eris.Wrap(err, "promote suggestion")
			}
		} else {
			if err := st.UpdateSuggestionStatus(ctx, vlog.SuggestionID, model.DecisionToStatus(decision)); err != nil {
				return eris.Wrap(err, "update suggestion status")
			}
		}

		return nil
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsSuggestionID, "suggestion", "", "filter by suggestion ID")
	logsCmd.Flags().StringVar(&logsDecision, "decision", "", "filter by decision")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "maximum logs to return")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "pagination offset")
	rootCmd.AddCommand(logsCmd)

	overrideCmd.Flags().StringVar(&overrideLogID, "log", "", "verification log ID (required)")
	overrideCmd.Flags().StringVar(&overrideDecision, "decision", "", "replacement decision (required)")
	overrideCmd.Flags().StringVar(&overrideNote, "note", "", "reviewer note")
	overrideCmd.Flags().StringVar(&overrideReviewer, "reviewer", "", "reviewer identity (required)")
	_ = overrideCmd.MarkFlagRequired("log")
	_ = overrideCmd.MarkFlagRequired("decision")
	_ = overrideCmd.MarkFlagRequired("reviewer")
	rootCmd.AddCommand(overrideCmd)
}
