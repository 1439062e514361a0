// Package genaisdk runs turns through the official Gemini Go SDK chat session.
package genaisdk

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/danshapiro/gamecrew/internal/llm"
)

const ProviderName = "google-sdk"

type Adapter struct {
	client *genai.Client
}

// New builds an SDK client. The caller owns the adapter and must Close it.
func New(ctx context.Context, apiKey, baseURL string) (*Adapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &llm.ConfigurationError{Message: "GOOGLE_API_KEY not set"}
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithEndpoint(base))
	}
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, &llm.ConfigurationError{Message: "create genai client: " + err.Error()}
	}
	return &Adapter{client: c}, nil
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := req.Validate(); err != nil {
		return llm.Response{}, err
	}

	model := a.client.GenerativeModel(req.Model)
	configureModel(model, req)

	cs := model.StartChat()
	cs.History = toGenAIHistory(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return llm.Response{}, classifyError(a.Name(), err)
	}
	return fromGenAIResponse(a.Name(), req.Model, resp)
}

func configureModel(model *genai.GenerativeModel, req llm.Request) {
	if strings.TrimSpace(req.SystemInstruction) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemInstruction))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(*req.MaxTokens))
	}
	if rf := req.ResponseFormat; rf != nil {
		switch strings.ToLower(strings.TrimSpace(rf.Type)) {
		case "json":
			model.ResponseMIMEType = "application/json"
		case "json_schema":
			model.ResponseMIMEType = "application/json"
			model.ResponseSchema = toGenAISchema(rf.JSONSchema)
		}
	}
}

func toGenAIHistory(msgs []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, genai.Text(p))
		}
		out = append(out, &genai.Content{Role: string(m.Role), Parts: parts})
	}
	return out
}

// toGenAISchema converts a JSON Schema map to the SDK's restricted Schema
// (best-effort for the scalar/object/array subset).
func toGenAISchema(v map[string]any) *genai.Schema {
	if v == nil {
		return nil
	}
	s := &genai.Schema{}
	if d, _ := v["description"].(string); d != "" {
		s.Description = d
	}
	t, _ := v["type"].(string)
	switch t {
	case "string":
		s.Type = genai.TypeString
		if enum, ok := v["enum"].([]any); ok {
			for _, e := range enum {
				if es, ok := e.(string); ok {
					s.Enum = append(s.Enum, es)
				}
			}
		}
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		if items, ok := v["items"].(map[string]any); ok {
			s.Items = toGenAISchema(items)
		}
	default:
		s.Type = genai.TypeObject
		if props, ok := v["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, pAny := range props {
				if p, ok := pAny.(map[string]any); ok {
					s.Properties[name] = toGenAISchema(p)
				}
			}
		}
		switch req := v["required"].(type) {
		case []string:
			s.Required = append(s.Required, req...)
		case []any:
			for _, r := range req {
				if rs, ok := r.(string); ok {
					s.Required = append(s.Required, rs)
				}
			}
		}
	}
	return s
}

func fromGenAIResponse(provider, model string, resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return llm.Response{}, llm.NewContentFilterError(provider, "prompt blocked", nil)
		}
		return llm.Response{}, llm.ErrorFromHTTPStatus(provider, 200, "response has no candidates", nil, nil)
	}
	out := llm.Response{Provider: provider, Model: model}
	c0 := resp.Candidates[0]
	var sb strings.Builder
	if c0.Content != nil {
		for _, p := range c0.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	out.Text = sb.String()
	out.Finish = llm.NormalizeFinishReason(provider, finishReasonName(c0.FinishReason))
	if um := resp.UsageMetadata; um != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
	}
	return out, nil
}

func finishReasonName(fr genai.FinishReason) string {
	switch fr {
	case genai.FinishReasonStop:
		return "STOP"
	case genai.FinishReasonMaxTokens:
		return "MAX_TOKENS"
	case genai.FinishReasonSafety:
		return "SAFETY"
	case genai.FinishReasonRecitation:
		return "RECITATION"
	case genai.FinishReasonUnspecified:
		return ""
	default:
		return "OTHER"
	}
}

func classifyError(provider string, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return llm.NewContentFilterError(provider, blocked.Error(), nil)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if strings.TrimSpace(msg) == "" {
			msg = gerr.Error()
		}
		return llm.ErrorFromHTTPStatus(provider, gerr.Code, msg, gerr.Body, nil)
	}
	return llm.WrapContextError(provider, err)
}
