package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
)

var (
	verifySuggestionID string
	verifyType         string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a verification pass for one stored suggestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		vtype := model.VerificationType(verifyType)
		switch vtype {
		case model.VerificationInitial, model.VerificationPeriodic, model.VerificationReported:
		default:
			return eris.Errorf("invalid verification type %q", verifyType)
		}

		env, err := initVerifier(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sug, err := env.Store.GetSuggestion(ctx, verifySuggestionID)
		if err != nil {
			return eris.Wrapf(err, "load suggestion %s", verifySuggestionID)
		}

		vlog, err := env.Verifier.Verify(ctx, sug, vtype)
		if err != nil {
			return eris.Wrap(err, "verification pass")
		}

		zap.L().Info("verification complete",
			zap.String("suggestion_id", sug.ID),
			zap.String("decision", string(vlog.Decision)),
			zap.Float64("score", vlog.Score),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(vlog)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySuggestionID, "id", "", "suggestion ID (required)")
	verifyCmd.Flags().StringVar(&verifyType, "type", "initial", "verification type: initial, periodic, or reported")
	_ = verifyCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(verifyCmd)
}
