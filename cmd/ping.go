package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/llm"
)

const pingPrompt = "Hello"

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured language model accepts our credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ping"); err != nil {
			return err
		}

		client, err := llm.NewProvider(cfg)
		if err != nil {
			return err
		}

		reply, err := pingModel(cmd.Context(), client, time.Duration(cfg.LLM.TimeoutSecs)*time.Second)
		if err != nil {
			return err
		}
		zap.L().Info("model reachable", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func pingModel(ctx context.Context, client llm.Client, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply, err := client.Generate(ctx, pingPrompt)
	if err != nil {
		return "", eris.Wrap(err, "ping: model call failed")
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", eris.New("ping: model returned an empty reply")
	}
	return reply, nil
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
