package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/verify"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit and verify a batch of suggestions from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(batchFile)
		if err != nil {
			return eris.Wrapf(err, "read batch file %s", batchFile)
		}

		var req verify.BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return eris.Wrap(err, "parse batch file")
		}

		if errs := verify.ValidateBatch(&req, cfg.Verifier.MaxBatchSize); len(errs) > 0 {
			out, _ := json.MarshalIndent(errs, "", "  ")
			os.Stderr.Write(out)
			os.Stderr.Write([]byte("\n"))
			return eris.Errorf("batch failed validation with %d error(s)", len(errs))
		}

		env, err := initVerifier(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Verifier.ProcessBatch(ctx, &req)

		zap.L().Info("batch complete",
			zap.Int("total", result.Summary.Total),
			zap.Int("auto_approved", result.Summary.AutoApproved),
			zap.Int("flagged", result.Summary.Flagged),
			zap.Int("rejected", result.Summary.Rejected),
			zap.Int("duplicates", result.Summary.Duplicates),
			zap.Int("errors", result.Summary.Errors),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to JSON batch file (required)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
