package interpret

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Outcome is either Conforming or Fallback.
type Outcome interface {
	isOutcome()
}

// Conforming holds a reply that passed strict decoding.
type Conforming struct {
	Reply Reply
}

// Fallback holds text that could not be decoded, kept byte for byte.
type Fallback struct {
	Raw    string
	Reason string
}

func (Conforming) isOutcome() {}
func (Fallback) isOutcome()   {}

// Decode strictly decodes raw as a single reply object. It never fails; text
// that does not conform yields a Fallback.
func Decode(raw string) Outcome {
	reply, err := decodeStrict(raw)
	if err != nil {
		return Fallback{Raw: raw, Reason: err.Error()}
	}
	return Conforming{Reply: reply}
}

func decodeStrict(raw string) (Reply, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Reply{}, errors.Wrap(err, "decode reply")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Reply{}, errors.New("trailing data after reply object")
	}

	schema, err := compiledReplySchema()
	if err != nil {
		return Reply{}, err
	}
	if err := schema.Validate(v); err != nil {
		return Reply{}, errors.Wrap(err, "reply does not match schema")
	}

	// The schema guarantees an object with three string fields.
	obj := v.(map[string]any)
	return Reply{
		Thought:   obj["thought"].(string),
		Content:   obj["content"].(string),
		NextAgent: obj["next_agent"].(string),
	}, nil
}
