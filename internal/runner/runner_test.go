package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

type scriptStep struct {
	res handoff.TurnResult
	err error
}

type scriptedTurner struct {
	mu    sync.Mutex
	steps []scriptStep
	reqs  []handoff.TurnRequest
}

func (s *scriptedTurner) Handle(_ context.Context, req handoff.TurnRequest) (handoff.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := append([]llm.Message(nil), req.History...)
	req.History = hist
	s.reqs = append(s.reqs, req)
	if len(s.steps) == 0 {
		return handoff.TurnResult{}, errors.New("script exhausted")
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.res, st.err
}

func ok(next roles.Role, content string) scriptStep {
	return scriptStep{res: handoff.TurnResult{Thought: "t", Content: content, NextRole: next}}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newRunner(t *scriptedTurner, opts ...Option) *Runner {
	r := New(t, opts...)
	r.sleep = noSleep
	return r
}

func TestPlay_FollowsHandoffsToFinish(t *testing.T) {
	snippet := "<!DOCTYPE html><html></html>"
	turner := &scriptedTurner{steps: []scriptStep{
		ok(roles.GameDesigner, "scope"),
		{res: handoff.TurnResult{Content: "code", NextRole: roles.TechnicalQA, CodeSnippet: &snippet}},
		ok(roles.Producer, "qa ok"),
		ok(roles.Finish, "ship"),
	}}
	var steps []Step
	r := newRunner(turner, OnStep(func(s Step) { steps = append(steps, s) }))

	out, err := r.Play(context.Background(), "make snake")
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.Equal(t, 4, out.Turns)
	require.NotNil(t, out.Snippet)
	assert.Equal(t, snippet, *out.Snippet)
	assert.Equal(t, roles.Finish, out.Last.NextRole)

	require.Len(t, turner.reqs, 4)
	assert.Equal(t, "Producer", turner.reqs[0].Role)
	assert.Equal(t, "make snake", turner.reqs[0].Message)
	assert.Empty(t, turner.reqs[0].History)
	assert.Equal(t, "Game Designer", turner.reqs[1].Role)
	assert.Equal(t, "", turner.reqs[1].Message)
	assert.Len(t, turner.reqs[1].History, 2)
	assert.Equal(t, "Technical QA", turner.reqs[2].Role)

	// History alternates user/model and records what was actually sent.
	require.Len(t, out.History, 8)
	for i, m := range out.History {
		if i%2 == 0 {
			assert.Equal(t, llm.RoleUser, m.Role)
		} else {
			assert.Equal(t, llm.RoleModel, m.Role)
		}
	}
	assert.Equal(t, "make snake", out.History[0].Text())
	assert.Equal(t, "Attention Game Designer. Proceed with your task based on context.", out.History[2].Text())

	var reply map[string]string
	require.NoError(t, json.Unmarshal([]byte(out.History[1].Text()), &reply))
	assert.Equal(t, "Game Designer", reply["next_agent"])

	require.Len(t, steps, 4)
	assert.Equal(t, roles.GameDesigner, steps[1].Role)
	assert.Equal(t, 1, steps[1].Attempts)
}

func TestPlay_TurnLimit(t *testing.T) {
	turner := &scriptedTurner{steps: []scriptStep{ok(roles.GameDesigner, "a"), ok(roles.Producer, "b"), ok(roles.GameDesigner, "c")}}
	r := newRunner(turner, WithMaxTurns(2))

	out, err := r.Play(context.Background(), "brief")
	assert.ErrorIs(t, err, ErrTurnLimit)
	assert.False(t, out.Finished)
	assert.Equal(t, 2, out.Turns)
	assert.Len(t, out.History, 4)
}

func TestPlay_RetriesGatewayErrors(t *testing.T) {
	gerr := &gateway.GatewayError{Kind: gateway.KindNetwork, Role: roles.Producer, Cause: errors.New("reset")}
	turner := &scriptedTurner{steps: []scriptStep{{err: gerr}, {err: gerr}, ok(roles.Finish, "done")}}
	var steps []Step
	r := newRunner(turner, WithRetries(2), OnStep(func(s Step) { steps = append(steps, s) }))

	out, err := r.Play(context.Background(), "brief")
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.Len(t, turner.reqs, 3)
	require.Len(t, steps, 1)
	assert.Equal(t, 3, steps[0].Attempts)
	// Every attempt resubmits the identical request.
	assert.Equal(t, turner.reqs[0], turner.reqs[2])
}

func TestPlay_GivesUpAfterRetries(t *testing.T) {
	gerr := &gateway.GatewayError{Kind: gateway.KindQuota, Role: roles.Producer, Cause: errors.New("quota")}
	turner := &scriptedTurner{steps: []scriptStep{{err: gerr}, {err: gerr}, {err: gerr}}}
	r := newRunner(turner, WithRetries(1))

	_, err := r.Play(context.Background(), "brief")
	var ge *gateway.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Len(t, turner.reqs, 2)
}

func TestPlay_NoRetryForNonRetryable(t *testing.T) {
	cases := []error{
		&gateway.GatewayError{Kind: gateway.KindAuth, Role: roles.Producer, Cause: errors.New("bad key")},
		&gateway.GatewayError{Kind: gateway.KindCanceled, Role: roles.Producer, Cause: context.Canceled},
		&roles.UnknownRoleError{Name: "x"},
		errors.New("not a gateway error"),
	}
	for _, e := range cases {
		turner := &scriptedTurner{steps: []scriptStep{{err: e}, ok(roles.Finish, "never")}}
		r := newRunner(turner, WithRetries(3))
		_, err := r.Play(context.Background(), "brief")
		assert.ErrorIs(t, err, e)
		assert.Len(t, turner.reqs, 1, "%v", e)
	}
}

func TestPlay_CanceledContext(t *testing.T) {
	turner := &scriptedTurner{steps: []scriptStep{ok(roles.Finish, "x")}}
	r := newRunner(turner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Play(ctx, "brief")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, turner.reqs)
}

func TestPlay_KeepsLatestSnippet(t *testing.T) {
	a, b := "first", "second"
	turner := &scriptedTurner{steps: []scriptStep{
		{res: handoff.TurnResult{NextRole: roles.UIDeveloper, CodeSnippet: &a}},
		{res: handoff.TurnResult{NextRole: roles.Producer, CodeSnippet: &b}},
		ok(roles.Finish, "no code here"),
	}}
	out, err := newRunner(turner).Play(context.Background(), "brief")
	require.NoError(t, err)
	require.NotNil(t, out.Snippet)
	assert.Equal(t, "second", *out.Snippet)
}

func TestDelayForAttempt(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 50 * time.Millisecond, Factor: 10, MaxDelay: 200 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, DelayForAttempt(1, cfg, "s"))
	assert.Equal(t, 200*time.Millisecond, DelayForAttempt(2, cfg, "s"))
	assert.Equal(t, 200*time.Millisecond, DelayForAttempt(5, cfg, "s"))
	assert.Equal(t, time.Duration(0), DelayForAttempt(1, BackoffConfig{}, "s"))

	cfg = BackoffConfig{InitialDelay: 100 * time.Millisecond, Factor: 1, Jitter: true}
	d1 := DelayForAttempt(1, cfg, "seed-a")
	assert.Equal(t, d1, DelayForAttempt(1, cfg, "seed-a"))
	assert.GreaterOrEqual(t, d1, 50*time.Millisecond)
	assert.LessOrEqual(t, d1, 150*time.Millisecond)
}

func TestRetryAfterFromBackend(t *testing.T) {
	ra := 3 * time.Second
	cause := llm.ErrorFromHTTPStatus("fake", 429, "slow down", nil, &ra)
	err := &gateway.GatewayError{Kind: gateway.KindQuota, Cause: cause}
	d, ok := retryAfter(err)
	require.True(t, ok)
	assert.Equal(t, ra, d)

	_, ok = retryAfter(errors.New("plain"))
	assert.False(t, ok)
}
