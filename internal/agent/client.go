// Package agent sends resume text to a hosted extraction agent and turns its
// streamed reply into a structured resume.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/resumeparser/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Fragment is one unit of a streamed completion. HasContent is false for
// fragments that carry no payload (metadata, trace or empty chunks).
type Fragment struct {
	Content    string
	HasContent bool
}

// Stream yields completion fragments in arrival order. Next returns
// iterator.Done once the stream is exhausted.
type Stream interface {
	Next() (Fragment, error)
}

// InvokeInput is a single request to the remote agent.
type InvokeInput struct {
	AgentID   string
	AliasID   string
	SessionID string
	InputText string
}

// Runtime is the transport to a hosted agent.
type Runtime interface {
	InvokeAgent(ctx context.Context, in InvokeInput) (Stream, error)
}

// InvocationError wraps any transport or protocol failure talking to the agent.
type InvocationError struct {
	SessionID string
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent call failed (session %s): %v", e.SessionID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Client invokes a fixed agent identity and alias.
type Client struct {
	runtime      Runtime
	agentID      string
	aliasID      string
	newSessionID func() string
	log          *slog.Logger
}

// NewClient returns a Client bound to the given agent and alias.
func NewClient(runtime Runtime, agentID, aliasID string, log *slog.Logger) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("agent runtime must be provided")
	}
	if agentID == "" {
		return nil, errors.New("agent ID must be provided")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		runtime:      runtime,
		agentID:      agentID,
		aliasID:      aliasID,
		newSessionID: uuid.NewString,
		log:          log,
	}, nil
}

// Reply is the outcome of one agent invocation.
type Reply struct {
	SessionID string
	Resume    models.StructuredResume
}

// Invoke sends text as a single input on a fresh session, drains the whole
// completion stream and parses the combined content. A reply that is not a
// JSON object is not an error; it comes back as a text fallback.
func (c *Client) Invoke(ctx context.Context, text string) (*Reply, error) {
	sessionID := c.newSessionID()
	logCtx := c.log.With("sessionId", sessionID, "agentId", c.agentID, "agentAliasId", c.aliasID)

	stream, err := c.runtime.InvokeAgent(ctx, InvokeInput{
		AgentID:   c.agentID,
		AliasID:   c.aliasID,
		SessionID: sessionID,
		InputText: text,
	})
	if err != nil {
		return nil, &InvocationError{SessionID: sessionID, Err: err}
	}

	combined, fragments, err := drain(stream)
	if err != nil {
		return nil, &InvocationError{SessionID: sessionID, Err: err}
	}
	logCtx.Info("Agent completion received.", "fragments", fragments, "length", len(combined))

	resume := ParseResume(combined)
	if !resume.IsStructured() {
		logCtx.Warn("Agent reply is not a JSON object; saving as text.")
	}
	return &Reply{SessionID: sessionID, Resume: resume}, nil
}

// drain concatenates the content of every fragment that has some.
func drain(stream Stream) (string, int, error) {
	var sb strings.Builder
	var n int
	for {
		frag, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			return sb.String(), n, nil
		}
		if err != nil {
			return "", n, fmt.Errorf("failed reading completion stream: %w", err)
		}
		if !frag.HasContent {
			continue
		}
		sb.WriteString(frag.Content)
		n++
	}
}

// ParseResume returns combined as-is when it is a JSON object, otherwise the
// text fallback wrapping combined unchanged.
func ParseResume(combined string) models.StructuredResume {
	if obj, ok := jsonObject(combined); ok {
		return models.StructuredResume{Fields: obj}
	}
	return models.NewTextResume(combined)
}

func jsonObject(s string) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
