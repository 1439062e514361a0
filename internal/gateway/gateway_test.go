package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

type fakeAdapter struct {
	mu    sync.Mutex
	reqs  []llm.Request
	text  string
	err   error
	block bool
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return llm.Response{}, llm.WrapContextError(f.Name(), ctx.Err())
	}
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Provider: "fake", Model: req.Model, Text: f.text}, nil
}

func newGateway(t *testing.T, a llm.ProviderAdapter, opts ...Option) *Gateway {
	t.Helper()
	reg, err := roles.DefaultRegistry()
	require.NoError(t, err)
	g, err := New(a, reg, opts...)
	require.NoError(t, err)
	return g
}

func TestInvoke_BuildsRequest(t *testing.T) {
	a := &fakeAdapter{text: `{"thought":"t","content":"c","next_agent":"Producer"}`}
	g := newGateway(t, a, WithModel("gemini-test"), WithMaxOutputTokens(512), WithTemperature(0.2))

	history := []llm.Message{llm.User("brief"), llm.Model("{}")}
	out, err := g.Invoke(context.Background(), roles.GameDesigner, history, "go on")
	require.NoError(t, err)
	assert.Equal(t, a.text, out)

	require.Len(t, a.reqs, 1)
	req := a.reqs[0]
	assert.Equal(t, "gemini-test", req.Model)
	assert.Equal(t, "go on", req.Message)
	assert.Equal(t, history, req.History)
	assert.Contains(t, req.SystemInstruction, "ROLE: GAME DESIGNER")
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 512, *req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_schema", req.ResponseFormat.Type)
	assert.Equal(t, "object", req.ResponseFormat.JSONSchema["type"])
}

func TestInvoke_EmptyMessageUsesContinuation(t *testing.T) {
	a := &fakeAdapter{text: "x"}
	g := newGateway(t, a)

	_, err := g.Invoke(context.Background(), roles.YandexSDKIntegrator, []llm.Message{llm.User("a"), llm.Model("b")}, "")
	require.NoError(t, err)
	require.Len(t, a.reqs, 1)
	assert.Equal(t, "Attention Yandex SDK Integrator. Proceed with your task based on context.", a.reqs[0].Message)
}

func TestInvoke_NoSchemaKeepsJSONMode(t *testing.T) {
	a := &fakeAdapter{text: "x"}
	g := newGateway(t, a, WithResponseSchema(nil))
	_, err := g.Invoke(context.Background(), roles.Producer, nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, &llm.ResponseFormat{Type: "json"}, a.reqs[0].ResponseFormat)
}

func TestInvoke_UnknownRole(t *testing.T) {
	a := &fakeAdapter{text: "x"}
	g := newGateway(t, a)
	for _, r := range []roles.Role{0, roles.Finish, 99} {
		_, err := g.Invoke(context.Background(), r, nil, "hi")
		assert.True(t, roles.IsUnknownRole(err), "role %d: %v", int(r), err)
	}
	assert.Empty(t, a.reqs)
}

func TestInvoke_FailuresBecomeGatewayErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{llm.ErrorFromHTTPStatus("fake", 400, "Please ensure that multiturn requests alternate between user and model.", nil, nil), KindRejectedHistory},
		{llm.ErrorFromHTTPStatus("fake", 422, "bad", nil, nil), KindRejectedHistory},
		{llm.ErrorFromHTTPStatus("fake", 401, "no", nil, nil), KindAuth},
		{llm.ErrorFromHTTPStatus("fake", 403, "denied", nil, nil), KindAuth},
		{llm.ErrorFromHTTPStatus("fake", 429, "quota exceeded", nil, nil), KindQuota},
		{llm.ErrorFromHTTPStatus("fake", 429, "slow down", nil, nil), KindQuota},
		{llm.ErrorFromHTTPStatus("fake", 500, "boom", nil, nil), KindBackend},
		{llm.NewRequestTimeoutError("fake", "slow"), KindTimeout},
		{llm.WrapContextError("fake", errors.New("connection refused")), KindNetwork},
		{&llm.ConfigurationError{Message: "GOOGLE_API_KEY not set"}, KindConfig},
		{context.Canceled, KindCanceled},
		{errors.New("something else"), KindBackend},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%v", tc.kind, tc.err), func(t *testing.T) {
			g := newGateway(t, &fakeAdapter{err: tc.err})
			_, err := g.Invoke(context.Background(), roles.Producer, nil, "hi")
			var ge *GatewayError
			require.True(t, errors.As(err, &ge), "got %T", err)
			assert.Equal(t, tc.kind, ge.Kind)
			assert.Equal(t, roles.Producer, ge.Role)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.kind == KindRejectedHistory, errors.Is(err, ErrBackendRejectedHistory))
		})
	}
}

func TestInvoke_Timeout(t *testing.T) {
	a := &fakeAdapter{block: true}
	g := newGateway(t, a, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := g.Invoke(context.Background(), roles.Producer, nil, "hi")
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindTimeout, ge.Kind)
	assert.True(t, ge.Retryable())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvoke_CallerCancel(t *testing.T) {
	a := &fakeAdapter{block: true}
	g := newGateway(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Invoke(ctx, roles.Producer, nil, "hi")
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindCanceled, ge.Kind)
	assert.False(t, ge.Retryable())
}

func TestGatewayError_Message(t *testing.T) {
	err := &GatewayError{Kind: KindQuota, Role: roles.TechnicalQA, Cause: errors.New("quota")}
	assert.True(t, strings.Contains(err.Error(), "Technical QA"))
	assert.True(t, strings.Contains(err.Error(), "quota"))
	assert.True(t, IsGatewayError(fmt.Errorf("wrapped: %w", err)))
}

func TestNew_RequiresDependencies(t *testing.T) {
	reg, err := roles.DefaultRegistry()
	require.NoError(t, err)
	_, err = New(nil, reg)
	assert.Error(t, err)
	_, err = New(&fakeAdapter{}, nil)
	assert.Error(t, err)
}
