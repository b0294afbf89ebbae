package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Lllllllleong/resumeparser/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

type fakeStream struct {
	fragments []Fragment
	failAt    int
	err       error
	pos       int
}

func (s *fakeStream) Next() (Fragment, error) {
	if s.err != nil && s.pos == s.failAt {
		return Fragment{}, s.err
	}
	if s.pos >= len(s.fragments) {
		return Fragment{}, iterator.Done
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

type fakeRuntime struct {
	stream *fakeStream
	err    error
	inputs []InvokeInput
}

func (r *fakeRuntime) InvokeAgent(_ context.Context, in InvokeInput) (Stream, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return nil, r.err
	}
	return r.stream, nil
}

func content(s string) Fragment { return Fragment{Content: s, HasContent: true} }

func newTestClient(t *testing.T, rt Runtime) *Client {
	t.Helper()
	c, err := NewClient(rt, "gemini-1.5-pro", "002", nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestInvokeStructuredReply(t *testing.T) {
	rt := &fakeRuntime{stream: &fakeStream{fragments: []Fragment{
		content(`{"name":"Jane Doe",`),
		{},
		{Content: "ignored", HasContent: false},
		content(`"email":"jane@x.com"}`),
	}}}
	c := newTestClient(t, rt)

	reply, err := c.Invoke(context.Background(), "Jane Doe, jane@x.com")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !reply.Resume.IsStructured() {
		t.Fatalf("expected structured resume, got %+v", reply.Resume.Text)
	}
	if got := string(reply.Resume.Fields); got != `{"name":"Jane Doe","email":"jane@x.com"}` {
		t.Errorf("Fields = %s", got)
	}

	if len(rt.inputs) != 1 {
		t.Fatalf("runtime called %d times, want 1", len(rt.inputs))
	}
	in := rt.inputs[0]
	if in.AgentID != "gemini-1.5-pro" || in.AliasID != "002" {
		t.Errorf("agent = %q/%q", in.AgentID, in.AliasID)
	}
	if in.InputText != "Jane Doe, jane@x.com" {
		t.Errorf("InputText = %q", in.InputText)
	}
	if in.SessionID != reply.SessionID {
		t.Errorf("SessionID sent %q, reply %q", in.SessionID, reply.SessionID)
	}
	if _, err := uuid.Parse(reply.SessionID); err != nil {
		t.Errorf("SessionID %q is not a UUID: %v", reply.SessionID, err)
	}
}

func TestInvokeTextFallback(t *testing.T) {
	rt := &fakeRuntime{stream: &fakeStream{fragments: []Fragment{
		content("Name: Jane Doe\n"),
		content("Email: jane@x.com"),
	}}}
	reply, err := newTestClient(t, rt).Invoke(context.Background(), "resume")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if reply.Resume.IsStructured() {
		t.Fatal("expected text fallback")
	}
	got, err := json.Marshal(reply.Resume)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"parsed_text":"Name: Jane Doe\nEmail: jane@x.com","status":"parsed_as_text"}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestInvokeSessionsAreUnique(t *testing.T) {
	rt := &fakeRuntime{stream: &fakeStream{}}
	c := newTestClient(t, rt)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rt.stream.pos = 0
		reply, err := c.Invoke(context.Background(), "text")
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if seen[reply.SessionID] {
			t.Fatalf("session ID %q reused", reply.SessionID)
		}
		seen[reply.SessionID] = true
	}
}

func TestInvokeFailures(t *testing.T) {
	transportErr := errors.New("connection refused")
	streamErr := errors.New("stream reset")

	tests := []struct {
		name    string
		runtime *fakeRuntime
		wantErr error
	}{
		{
			name:    "runtime rejects the request",
			runtime: &fakeRuntime{err: transportErr},
			wantErr: transportErr,
		},
		{
			name: "stream breaks midway",
			runtime: &fakeRuntime{stream: &fakeStream{
				fragments: []Fragment{content(`{"name":`), content(`"x"}`)},
				failAt:    1,
				err:       streamErr,
			}},
			wantErr: streamErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.runtime).Invoke(context.Background(), "text")
			var invErr *InvocationError
			if !errors.As(err, &invErr) {
				t.Fatalf("Invoke() error = %v, want *InvocationError", err)
			}
			if invErr.SessionID == "" {
				t.Error("InvocationError has no session ID")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Invoke() error = %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseResume(t *testing.T) {
	tests := []struct {
		name       string
		combined   string
		wantFields string
	}{
		{name: "object", combined: `{"name":"Jane"}`, wantFields: `{"name":"Jane"}`},
		{name: "object with surrounding whitespace", combined: "\n  {\"name\":\"Jane\"}\n", wantFields: `{"name":"Jane"}`},
		{name: "fenced json is not unwrapped", combined: "```json\n{\"name\":\"Jane\"}\n```"},
		{name: "bare fence is not unwrapped", combined: "```\n{\"a\":1}\n```"},
		{name: "NaN is not json", combined: `{"score":NaN}`},
		{name: "prose", combined: "I could not find a resume."},
		{name: "array is not a key-value document", combined: `[{"name":"Jane"}]`},
		{name: "number", combined: `42`},
		{name: "truncated object", combined: `{"name":"Ja`},
		{name: "empty", combined: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResume(tt.combined)
			if tt.wantFields == "" {
				want := models.NewTextResume(tt.combined)
				if got.IsStructured() || got.Text == nil || *got.Text != *want.Text {
					t.Errorf("ParseResume(%q) = %+v, want text fallback", tt.combined, got)
				}
				return
			}
			if !got.IsStructured() || string(got.Fields) != tt.wantFields {
				t.Errorf("ParseResume(%q) fields = %s, want %s", tt.combined, got.Fields, tt.wantFields)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil, "agent", "alias", nil); err == nil {
		t.Error("expected error for nil runtime")
	}
	if _, err := NewClient(&fakeRuntime{}, "", "alias", nil); err == nil {
		t.Error("expected error for empty agent ID")
	}
}

func TestFencedReplyFallsBackToText(t *testing.T) {
	combined := "```json\n{\"name\":\"Jane\"}\n```"
	rt := &fakeRuntime{stream: &fakeStream{fragments: []Fragment{content(combined)}}}
	reply, err := newTestClient(t, rt).Invoke(context.Background(), "resume")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	got, err := json.Marshal(reply.Resume)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want, _ := json.Marshal(map[string]string{"parsed_text": combined, "status": "parsed_as_text"})
	if string(got) != string(want) {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}
