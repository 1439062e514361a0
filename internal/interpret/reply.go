// Package interpret turns raw model text into a structured turn result.
//
// Every role answers with the same JSON object, so one schema covers all of
// them. Text that does not conform is never an error: it becomes a fallback
// result routed to the Producer.
package interpret

import (
	"bytes"
	"encoding/json"
	"sync"

	jsonschemagen "github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Reply is the object every role is instructed to answer with.
type Reply struct {
	Thought   string `json:"thought" jsonschema:"description=Internal reasoning for this turn"`
	Content   string `json:"content" jsonschema:"description=The role's output for the team"`
	NextAgent string `json:"next_agent" jsonschema:"description=Name of the role that acts next or FINISH"`
}

const replySchemaURL = "reply.json"

var replySchemaJSON = sync.OnceValues(func() ([]byte, error) {
	r := &jsonschemagen.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	b, err := json.Marshal(r.Reflect(&Reply{}))
	if err != nil {
		return nil, errors.Wrap(err, "marshal reply schema")
	}
	return b, nil
})

var compiledReplySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := replySchemaJSON()
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(replySchemaURL, bytes.NewReader(b)); err != nil {
		return nil, errors.Wrap(err, "add reply schema")
	}
	s, err := c.Compile(replySchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile reply schema")
	}
	return s, nil
})

// ReplySchema returns a fresh copy of the reply JSON Schema, suitable for a
// backend's structured-output setting.
func ReplySchema() (map[string]any, error) {
	b, err := replySchemaJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode reply schema")
	}
	return out, nil
}
