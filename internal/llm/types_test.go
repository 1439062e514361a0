package llm

import (
	"encoding/json"
	"testing"
)

func TestMessage_UnmarshalParts(t *testing.T) {
	var hist []Message
	err := json.Unmarshal([]byte(`[
  {"role":"user","parts":["make a snake game"]},
  {"role":"model","parts":[{"text":"{\"thought\":\"t\"}"}, "tail"]}
]`), &hist)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("len: %d", len(hist))
	}
	if hist[0].Role != RoleUser || hist[0].Text() != "make a snake game" {
		t.Fatalf("hist[0]: %+v", hist[0])
	}
	if hist[1].Role != RoleModel || len(hist[1].Parts) != 2 || hist[1].Parts[0] != `{"thought":"t"}` {
		t.Fatalf("hist[1]: %+v", hist[1])
	}
}

func TestMessage_UnmarshalRejectsBadParts(t *testing.T) {
	for _, in := range []string{
		`{"role":"user","parts":[42]}`,
		`{"role":"user","parts":[{"inline_data":{}}]}`,
	} {
		var m Message
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestMessage_MarshalShape(t *testing.T) {
	b, err := json.Marshal(User("hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"role":"user","parts":["hi"]}` {
		t.Fatalf("got %s", b)
	}
}

func TestRequest_Validate(t *testing.T) {
	if err := (Request{Model: "m", Message: "hi"}).Validate(); err != nil {
		t.Fatalf("valid request: %v", err)
	}
	if err := (Request{Message: "hi"}).Validate(); err == nil {
		t.Fatalf("missing model should fail")
	}
	if err := (Request{Model: "m"}).Validate(); err == nil {
		t.Fatalf("empty message should fail")
	}
	// History alternation is not checked locally.
	req := Request{Model: "m", Message: "hi", History: []Message{User("a"), User("b")}}
	if err := req.Validate(); err != nil {
		t.Fatalf("history is passed through: %v", err)
	}
}
