// Package a2a builds the JSON-RPC 2.0 task envelopes exchanged with chat agents.
package a2a

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmfshirokan/PriceCompare/internal/model"
)

const Version = "2.0"

// JSON-RPC error codes. The -320xx range is application specific.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInvalidQuery   = -32001
	CodeUnavailable    = -32002
)

const MethodSend = "message/send"

type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type Message struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	TaskID    string `json:"taskId,omitempty"`
}

// Text joins the message's text parts.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Kind == "text" || p.Kind == "" {
			texts = append(texts, p.Text)
		}
	}

	return strings.TrimSpace(strings.Join(texts, " "))
}

type Status struct {
	State     string  `json:"state"`
	Timestamp string  `json:"timestamp"`
	Message   Message `json:"message"`
}

type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name"`
	Parts      []Part `json:"parts"`
}

type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    Status     `json:"status"`
	Artifacts []Artifact `json:"artifacts"`
	History   []Message  `json:"history"`
	Kind      string     `json:"kind"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *Task           `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type SendParams struct {
	Message Message `json:"message"`
}

// BuildTask wraps a finished comparison in a completed task. id is the
// caller's request id; a fresh one is generated when it is empty.
func BuildTask(id json.RawMessage, cmp model.Comparison, now time.Time) Response {
	taskID := uuid.NewString()
	if len(id) == 0 || string(id) == "null" {
		id = quote(taskID)
	}

	text := cmp.Summary()
	agent := Message{
		Kind:      "message",
		Role:      "agent",
		Parts:     []Part{{Kind: "text", Text: text}},
		MessageID: uuid.NewString(),
		TaskID:    taskID,
	}
	user := Message{
		Kind:      "message",
		Role:      "user",
		Parts:     []Part{{Kind: "text", Text: "Check " + cmp.Asset + " price " + cmp.Date}},
		MessageID: uuid.NewString(),
		TaskID:    taskID,
	}

	data, _ := json.Marshal(cmp)

	return Response{
		JSONRPC: Version,
		ID:      id,
		Result: &Task{
			ID:        taskID,
			ContextID: "crypto-" + strings.ToLower(cmp.Asset),
			Status: Status{
				State:     "completed",
				Timestamp: now.UTC().Format(time.RFC3339Nano),
				Message:   agent,
			},
			Artifacts: []Artifact{{
				ArtifactID: uuid.NewString(),
				Name:       "comparison_data",
				Parts:      []Part{{Kind: "text", Text: string(data)}},
			}},
			History: []Message{user, agent},
			Kind:    "task",
		},
	}
}

func BuildError(id json.RawMessage, code int, message string) Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	return Response{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

// ErrorCode maps a comparison failure to a JSON-RPC code.
func ErrorCode(err error) int {
	if model.IsUserError(err) {
		return CodeInvalidQuery
	}

	return CodeUnavailable
}

func quote(s string) json.RawMessage {
	data, _ := json.Marshal(s)

	return data
}
