package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/danshapiro/gamecrew/internal/events"
	"github.com/danshapiro/gamecrew/internal/runner"
)

var (
	roleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	arrowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	nextStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	thoughtStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888")).MarginLeft(2)
	contentStyle = lipgloss.NewStyle().MarginLeft(2)
	doneStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// maxShownContent bounds how much of each reply is echoed; the full game goes
// to --out.
const maxShownContent = 600

func newPlayCmd(a *app) *cobra.Command {
	var brief, outPath, eventsPath string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run the whole team from a brief until the Producer signals FINISH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(brief) == "" {
				return errors.New("--brief must not be empty")
			}
			if err := a.cfg.CredentialError(); err != nil {
				return err
			}
			return a.play(cmd.Context(), cmd.OutOrStdout(), brief, outPath, eventsPath)
		},
	}
	cmd.Flags().StringVar(&brief, "brief", "", "What the team should build")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the latest code snippet to this file")
	cmd.Flags().StringVar(&eventsPath, "events", "", "Append turn events as JSON lines to this file")
	cmd.Flags().Int("max-turns", 0, "Stop after this many turns (default 40)")
	cmd.Flags().Int("retries", 0, "Resubmit a failed turn up to this many times (default 2)")
	_ = cmd.MarkFlagRequired("brief")
	bindFlags(a.v, cmd.Flags(), map[string]string{
		"play.max_turns": "max-turns",
		"play.retries":   "retries",
	})
	return cmd
}

func (a *app) play(ctx context.Context, w io.Writer, brief, outPath, eventsPath string) error {
	var sink events.Sink
	if eventsPath != "" {
		f, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open events file")
		}
		defer func() { _ = f.Close() }()
		sink = jsonLinesSink(f)
	}

	st, err := buildStack(ctx, a.cfg, sink)
	if err != nil {
		return err
	}
	defer st.close()

	r := runner.New(st.controller,
		runner.WithMaxTurns(a.cfg.Play.MaxTurns),
		runner.WithRetries(a.cfg.Play.Retries),
		runner.OnStep(func(s runner.Step) { printStep(w, s) }),
	)
	out, playErr := r.Play(ctx, brief)

	if out.Snippet != nil && outPath != "" {
		if err := os.WriteFile(outPath, []byte(*out.Snippet), 0o644); err != nil {
			return errors.Wrap(err, "write snippet")
		}
	}
	switch {
	case playErr != nil:
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("stopped after %d turns: %v", out.Turns, playErr)))
	default:
		fmt.Fprintln(w, doneStyle.Render(fmt.Sprintf("FINISH after %d turns", out.Turns)))
	}
	if out.Snippet != nil && outPath != "" {
		fmt.Fprintf(w, "game written to %s (%d bytes)\n", outPath, len(*out.Snippet))
	}
	return playErr
}

func printStep(w io.Writer, s runner.Step) {
	header := fmt.Sprintf("%2d %s %s %s",
		s.Turn,
		roleStyle.Render(s.Role.String()),
		arrowStyle.Render("→"),
		nextStyle.Render(s.Result.NextRole.String()))
	if s.Attempts > 1 {
		header += arrowStyle.Render(fmt.Sprintf(" (%d attempts)", s.Attempts))
	}
	fmt.Fprintln(w, header)
	if t := strings.TrimSpace(s.Result.Thought); t != "" {
		fmt.Fprintln(w, thoughtStyle.Render(t))
	}
	content := strings.TrimSpace(s.Result.Content)
	if r := []rune(content); len(r) > maxShownContent {
		content = string(r[:maxShownContent]) + " …"
	}
	if content != "" {
		fmt.Fprintln(w, contentStyle.Render(content))
	}
}

// jsonLinesSink appends one JSON object per turn event to w.
func jsonLinesSink(w io.Writer) events.Sink {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return events.SinkFunc(func(_ context.Context, e events.TurnEvent) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(e)
	})
}
