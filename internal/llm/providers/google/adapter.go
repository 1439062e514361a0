package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/providerspec"
)

const (
	ProviderName   = "google"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Adapter calls the Gemini generateContent REST endpoint.
type Adapter struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// APIKeyFromEnv returns GEMINI_API_KEY, falling back to GOOGLE_API_KEY.
func APIKeyFromEnv() string {
	spec, _ := providerspec.Builtin(ProviderName)
	for _, name := range spec.API.APIKeyEnvs {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key
		}
	}
	return ""
}

func NewFromEnv() (*Adapter, error) {
	key := APIKeyFromEnv()
	if key == "" {
		return nil, &llm.ConfigurationError{Message: "GOOGLE_API_KEY not set"}
	}
	spec, _ := providerspec.Builtin(ProviderName)
	return New(key, os.Getenv(spec.API.BaseURLEnv)), nil
}

func New(apiKey, baseURL string) *Adapter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Adapter{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: base,
		// Avoid short client-level timeouts; rely on request context deadlines instead.
		Client: &http.Client{Timeout: 0},
	}
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := req.Validate(); err != nil {
		return llm.Response{}, err
	}
	if a.APIKey == "" {
		return llm.Response{}, &llm.ConfigurationError{Message: "GOOGLE_API_KEY not set"}
	}
	if a.Client == nil {
		a.Client = &http.Client{Timeout: 0}
	}
	base := a.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	b, err := json.Marshal(buildBody(req))
	if err != nil {
		return llm.Response{}, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, url.PathEscape(req.Model))
	u, err := url.Parse(endpoint)
	if err != nil {
		return llm.Response{}, &llm.ConfigurationError{Message: fmt.Sprintf("invalid base url: %v", err)}
	}
	q := u.Query()
	q.Set("key", a.APIKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return llm.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return llm.Response{}, llm.WrapContextError(a.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, llm.WrapContextError(a.Name(), err)
	}
	var raw map[string]any
	_ = json.Unmarshal(rawBytes, &raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ra := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return llm.Response{}, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, errorMessage(raw, rawBytes), raw, ra)
	}
	if raw == nil {
		return llm.Response{}, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, "response body is not JSON", nil, nil)
	}
	return fromGeminiResponse(a.Name(), raw, req.Model)
}

func buildBody(req llm.Request) map[string]any {
	contents := make([]map[string]any, 0, len(req.History)+1)
	for _, m := range req.History {
		parts := make([]map[string]any, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, map[string]any{"text": p})
		}
		// Roles go out verbatim; the backend owns the alternation rule.
		contents = append(contents, map[string]any{"role": string(m.Role), "parts": parts})
	}
	contents = append(contents, map[string]any{
		"role":  string(llm.RoleUser),
		"parts": []map[string]any{{"text": req.Message}},
	})

	genCfg := map[string]any{}
	if req.Temperature != nil {
		genCfg["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = *req.MaxTokens
	}
	if req.ResponseFormat != nil {
		switch strings.ToLower(strings.TrimSpace(req.ResponseFormat.Type)) {
		case "json":
			genCfg["responseMimeType"] = "application/json"
		case "json_schema":
			genCfg["responseMimeType"] = "application/json"
			if req.ResponseFormat.JSONSchema != nil {
				genCfg["responseSchema"] = sanitizeGeminiSchema(req.ResponseFormat.JSONSchema)
			}
		}
	}

	body := map[string]any{"contents": contents}
	if len(genCfg) > 0 {
		body["generationConfig"] = genCfg
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemInstruction}},
		}
	}
	return body
}

// sanitizeGeminiSchema drops JSON Schema keywords that Gemini's Schema proto rejects.
func sanitizeGeminiSchema(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			switch k {
			case "additionalProperties", "$schema", "$id", "$defs", "title":
				continue
			}
			out[k] = sanitizeGeminiSchema(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = sanitizeGeminiSchema(x[i])
		}
		return out
	default:
		return v
	}
}

func errorMessage(raw map[string]any, body []byte) string {
	if e, ok := raw["error"].(map[string]any); ok {
		if m, _ := e["message"].(string); strings.TrimSpace(m) != "" {
			return m
		}
	}
	return fmt.Sprintf("generateContent failed: %s", strings.TrimSpace(string(body)))
}

func fromGeminiResponse(provider string, raw map[string]any, requestedModel string) (llm.Response, error) {
	r := llm.Response{Provider: provider, Model: requestedModel}
	if v, _ := raw["modelVersion"].(string); v != "" {
		r.Model = v
	}
	if um, ok := raw["usageMetadata"].(map[string]any); ok {
		r.Usage = parseUsage(um)
	}

	cands, _ := raw["candidates"].([]any)
	if len(cands) == 0 {
		if pf, ok := raw["promptFeedback"].(map[string]any); ok {
			if br, _ := pf["blockReason"].(string); br != "" {
				return llm.Response{}, llm.NewContentFilterError(provider, "prompt blocked: "+br, raw)
			}
		}
		return llm.Response{}, llm.ErrorFromHTTPStatus(provider, http.StatusOK, "response has no candidates", raw, nil)
	}

	c0, _ := cands[0].(map[string]any)
	var sb strings.Builder
	if content, ok := c0["content"].(map[string]any); ok {
		if parts, ok := content["parts"].([]any); ok {
			for _, pAny := range parts {
				p, ok := pAny.(map[string]any)
				if !ok {
					continue
				}
				// Thought summaries are not part of the answer.
				if th, _ := p["thought"].(bool); th {
					continue
				}
				if t, _ := p["text"].(string); t != "" {
					sb.WriteString(t)
				}
			}
		}
	}
	fr, _ := c0["finishReason"].(string)
	r.Finish = llm.NormalizeFinishReason(provider, fr)
	r.Text = sb.String()
	if r.Text == "" && r.Finish.Reason == "content_filter" {
		return llm.Response{}, llm.NewContentFilterError(provider, "response blocked: "+fr, raw)
	}
	return r, nil
}

func parseUsage(u map[string]any) llm.Usage {
	getInt := func(v any) int {
		switch x := v.(type) {
		case float64:
			return int(x)
		case int:
			return x
		default:
			return 0
		}
	}
	usage := llm.Usage{
		InputTokens:  getInt(u["promptTokenCount"]),
		OutputTokens: getInt(u["candidatesTokenCount"]),
		TotalTokens:  getInt(u["totalTokenCount"]),
	}
	if v := getInt(u["thoughtsTokenCount"]); v > 0 {
		usage.ReasoningTokens = &v
	}
	return usage
}
