package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the speaker tag of a conversation turn, using the backend's vocabulary.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of conversation history. Roles are passed to the
// backend as given; alternation is the backend's contract, not ours.
type Message struct {
	Role  Role     `json:"role"`
	Parts []string `json:"parts"`
}

func User(text string) Message  { return Message{Role: RoleUser, Parts: []string{text}} }
func Model(text string) Message { return Message{Role: RoleModel, Parts: []string{text}} }

// Text joins all parts.
func (m Message) Text() string { return strings.Join(m.Parts, "") }

// UnmarshalJSON accepts parts either as plain strings or as {"text": "..."}
// objects, which is what browser clients built against the backend SDK send.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Parts = make([]string, 0, len(raw.Parts))
	for i, p := range raw.Parts {
		p = bytes.TrimSpace(p)
		if len(p) > 0 && p[0] == '{' {
			var obj struct {
				Text *string `json:"text"`
			}
			if err := json.Unmarshal(p, &obj); err != nil {
				return fmt.Errorf("parts[%d]: %w", i, err)
			}
			if obj.Text == nil {
				return fmt.Errorf("parts[%d]: object part without text", i)
			}
			m.Parts = append(m.Parts, *obj.Text)
			continue
		}
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			return fmt.Errorf("parts[%d]: %w", i, err)
		}
		m.Parts = append(m.Parts, s)
	}
	return nil
}

// ResponseFormat asks the backend for structured output.
// Type is "text", "json" or "json_schema".
type ResponseFormat struct {
	Type       string
	JSONSchema map[string]any
}

// Request is one conversational turn: a system instruction, prior history and
// the new user message.
type Request struct {
	Provider          string
	Model             string
	SystemInstruction string
	History           []Message
	Message           string

	Temperature    *float64
	MaxTokens      *int
	ResponseFormat *ResponseFormat
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Message: "model is required"}
	}
	if r.Message == "" {
		return &ConfigurationError{Message: "message is required"}
	}
	return nil
}

type Usage struct {
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	ReasoningTokens *int
}

// FinishReason is the normalized stop reason plus the provider's raw value.
type FinishReason struct {
	Reason string
	Raw    string
}

type Response struct {
	Provider string
	Model    string
	Text     string
	Finish   FinishReason
	Usage    Usage
}

// ProviderAdapter issues one turn against a concrete backend.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// NormalizeFinishReason maps provider stop reasons onto
// stop | length | content_filter | other.
func NormalizeFinishReason(provider string, raw string) FinishReason {
	_ = provider
	r := strings.ToUpper(strings.TrimSpace(raw))
	out := FinishReason{Raw: raw}
	switch r {
	case "", "STOP", "FINISH_REASON_STOP":
		out.Reason = "stop"
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		out.Reason = "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII",
		"FINISH_REASON_SAFETY", "FINISH_REASON_RECITATION":
		out.Reason = "content_filter"
	default:
		out.Reason = "other"
	}
	return out
}
