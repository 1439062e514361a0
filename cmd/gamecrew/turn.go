package main

import (
	"encoding/json"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/llm"
)

func newTurnCmd(a *app) *cobra.Command {
	var agent, input, historyPath string
	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Run a single agent turn and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.CredentialError(); err != nil {
				return err
			}
			history, err := readHistory(historyPath)
			if err != nil {
				return err
			}
			st, err := buildStack(cmd.Context(), a.cfg, nil)
			if err != nil {
				return err
			}
			defer st.close()

			res, err := st.controller.Handle(cmd.Context(), handoff.TurnRequest{
				Role:      agent,
				Message:   input,
				History:   history,
				RequestID: ulid.Make().String(),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "Display name of the acting role")
	cmd.Flags().StringVar(&input, "input", "", "Message for the role; empty resumes from history")
	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with prior turns ([{role, parts}])")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// readHistory loads a conversation in the /api/chat wire shape.
func readHistory(path string) ([]llm.Message, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read history")
	}
	var history []llm.Message
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, errors.Wrapf(err, "decode history %s", path)
	}
	return history, nil
}
