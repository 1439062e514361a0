package interpret

import "github.com/danshapiro/gamecrew/internal/roles"

// FallbackThought is reported when the model's text could not be decoded.
const FallbackThought = "Error parsing response"

// FallbackRole handles every unroutable state.
const FallbackRole = roles.Producer

type Result struct {
	Thought     string
	Content     string
	NextRole    roles.Role
	CodeSnippet *string

	// Fallback is set when the raw text failed strict decoding.
	Fallback bool
	// Reason explains the fallback.
	Reason string
	// Coerced is set when the proposed successor was unknown.
	Coerced bool
	// Proposed is the successor name as the model wrote it.
	Proposed string
}

// Interpret maps raw model text to a Result. It is total and pure.
func Interpret(raw string) Result {
	var res Result
	switch o := Decode(raw).(type) {
	case Conforming:
		res = Result{
			Thought:  o.Reply.Thought,
			Content:  o.Reply.Content,
			Proposed: o.Reply.NextAgent,
		}
		next, ok := roles.ParseNext(o.Reply.NextAgent)
		if !ok {
			next = FallbackRole
			res.Coerced = true
		}
		res.NextRole = next
	case Fallback:
		res = Result{
			Thought:  FallbackThought,
			Content:  o.Raw,
			NextRole: FallbackRole,
			Fallback: true,
			Reason:   o.Reason,
		}
	}
	res.CodeSnippet = ExtractCode(res.Content)
	return res
}
