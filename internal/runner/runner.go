// Package runner drives a full production run: it starts at the Producer with
// a brief and follows next_agent from turn to turn until FINISH.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

const (
	DefaultMaxTurns = 40
	DefaultRetries  = 2
)

// ErrTurnLimit is returned when the run does not reach FINISH in time.
var ErrTurnLimit = errors.New("turn limit reached before FINISH")

// Turner runs a single turn; *handoff.Controller implements it.
type Turner interface {
	Handle(ctx context.Context, req handoff.TurnRequest) (handoff.TurnResult, error)
}

// Step reports a completed turn.
type Step struct {
	Turn     int
	Role     roles.Role
	Attempts int
	Result   handoff.TurnResult
}

// Outcome is the state of a run when Play returns.
type Outcome struct {
	Turns    int
	Finished bool
	// Snippet is the most recent code snippet any role produced.
	Snippet *string
	History []llm.Message
	Last    handoff.TurnResult
}

type Runner struct {
	turns    Turner
	maxTurns int
	retries  int
	backoff  BackoffConfig
	onStep   func(Step)
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Runner)

func WithMaxTurns(n int) Option { return func(r *Runner) { r.maxTurns = n } }

// WithRetries sets how many times a failed turn is resubmitted.
func WithRetries(n int) Option { return func(r *Runner) { r.retries = n } }

func WithBackoff(cfg BackoffConfig) Option { return func(r *Runner) { r.backoff = cfg } }

// OnStep is called after every successful turn.
func OnStep(f func(Step)) Option { return func(r *Runner) { r.onStep = f } }

func New(turns Turner, opts ...Option) *Runner {
	r := &Runner{
		turns:    turns,
		maxTurns: DefaultMaxTurns,
		retries:  DefaultRetries,
		backoff:  DefaultBackoff(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(r)
	}
	if r.maxTurns < 1 {
		r.maxTurns = 1
	}
	if r.retries < 0 {
		r.retries = 0
	}
	return r
}

// Play runs from the brief until FINISH, the turn limit, or a turn that
// fails after all retries. The returned Outcome is valid in every case.
func (r *Runner) Play(ctx context.Context, brief string) (Outcome, error) {
	var out Outcome
	role := roles.Producer
	message := brief

	for turn := 1; turn <= r.maxTurns; turn++ {
		req := handoff.TurnRequest{
			Role:      role.String(),
			Message:   message,
			History:   out.History,
			RequestID: fmt.Sprintf("turn-%d", turn),
		}
		res, attempts, err := r.handleWithRetry(ctx, req)
		if err != nil {
			return out, errors.Wrapf(err, "turn %d (%s)", turn, role)
		}
		out.Turns = turn
		out.Last = res
		if res.CodeSnippet != nil {
			out.Snippet = res.CodeSnippet
		}

		sent := message
		if sent == "" {
			sent = gateway.ContinuationMessage(role)
		}
		reply, err := json.Marshal(struct {
			Thought   string     `json:"thought"`
			Content   string     `json:"content"`
			NextAgent roles.Role `json:"next_agent"`
		}{res.Thought, res.Content, res.NextRole})
		if err != nil {
			return out, errors.Wrap(err, "encode reply for history")
		}
		out.History = append(out.History, llm.User(sent), llm.Model(string(reply)))

		if r.onStep != nil {
			r.onStep(Step{Turn: turn, Role: role, Attempts: attempts, Result: res})
		}
		if res.NextRole.IsTerminal() {
			out.Finished = true
			return out, nil
		}
		role = res.NextRole
		message = ""
	}
	return out, ErrTurnLimit
}

func (r *Runner) handleWithRetry(ctx context.Context, req handoff.TurnRequest) (handoff.TurnResult, int, error) {
	if err := ctx.Err(); err != nil {
		return handoff.TurnResult{}, 0, err
	}
	attempts := r.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := r.turns.Handle(ctx, req)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if attempt == attempts || !shouldRetry(ctx, err) {
			return handoff.TurnResult{}, attempt, err
		}
		delay := DelayForAttempt(attempt, r.backoff, fmt.Sprintf("%s:%s:%d", req.RequestID, req.Role, attempt))
		if ra, ok := retryAfter(err); ok && ra > delay {
			delay = ra
		}
		log.Warn().Err(err).Str("role", req.Role).Int("attempt", attempt).Dur("delay", delay).Msg("turn failed; retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return handoff.TurnResult{}, attempt, err
		}
	}
	return handoff.TurnResult{}, attempts, lastErr
}

// shouldRetry retries only gateway failures that could succeed on resubmit.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if roles.IsUnknownRole(err) {
		return false
	}
	var ge *gateway.GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Retryable()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
