package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/model"
	"github.com/sells-group/policy-audit/internal/report"
)

var (
	auditXLSX   string
	auditNoSave bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <file.pdf>",
	Short: "Audit a questionnaire PDF against the policy corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		env, err := initAudit(ctx, "audit", !auditNoSave)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Run(ctx, filepath.Base(path), path)
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		s := model.Summarize(run.Verdicts)
		zap.L().Info("audit complete",
			zap.String("run_id", run.ID),
			zap.Int("questions", s.Total),
			zap.Int("met", s.Met),
			zap.Int("not_met", s.NotMet),
			zap.Int("errors", s.Errors),
		)

		if auditXLSX != "" {
			if err := report.WriteXLSX(auditXLSX, run.Source, run.Verdicts); err != nil {
				return err
			}
			zap.L().Info("wrote xlsx report", zap.String("path", auditXLSX))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Verdicts)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditXLSX, "xlsx", "", "also write verdicts to this .xlsx file")
	auditCmd.Flags().BoolVar(&auditNoSave, "no-save", false, "do not persist the audit run")
	rootCmd.AddCommand(auditCmd)
}
