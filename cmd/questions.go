package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/policy-audit/internal/ocr"
	"github.com/sells-group/policy-audit/internal/pipeline"
)

var questionsCmd = &cobra.Command{
	Use:   "questions <file.pdf>",
	Short: "Print the questions found in an audit PDF",
	Long:  "Runs text extraction and question segmentation only. No model calls are made.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extractor, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		questions, err := pipeline.New(extractor, nil, nil).Questions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, q := range questions {
			fmt.Fprintln(cmd.OutOrStdout(), q)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(questionsCmd)
}
