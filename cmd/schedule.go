package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
)

var scheduleLimit int

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Re-verify published entries whose check date has come due",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initVerifier(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		due, err := env.Store.ListDueSuggestions(ctx, time.Now().UTC(), scheduleLimit)
		if err != nil {
			return eris.Wrap(err, "list due suggestions")
		}
		if len(due) == 0 {
			zap.L().Info("no suggestions due for re-verification")
			return nil
		}

		zap.L().Info("re-verifying due suggestions", zap.Int("count", len(due)))

		type outcome struct {
			SuggestionID string         `json:"suggestion_id"`
			Name         string         `json:"name"`
			Decision     model.Decision `json:"decision,omitempty"`
			Score        float64        `json:"score,omitempty"`
			Error        string         `json:"error,omitempty"`
		}
		outcomes := make([]outcome, 0, len(due))

		for i := range due {
			sug := &due[i]
			o := outcome{SuggestionID: sug.ID, Name: sug.Name}

			vlog, err := env.Verifier.Verify(ctx, sug, model.VerificationPeriodic)
			if err != nil {
				zap.L().Error("periodic verification errored",
					zap.String("suggestion_id", sug.ID), zap.Error(err))
				o.Error = err.Error()
			} else {
				o.Decision = vlog.Decision
				o.Score = vlog.Score
			}
			outcomes = append(outcomes, o)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func init() {
	scheduleCmd.Flags().IntVar(&scheduleLimit, "limit", 100, "maximum entries to re-verify in one run")
	rootCmd.AddCommand(scheduleCmd)
}
