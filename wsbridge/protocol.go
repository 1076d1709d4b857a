package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope on the wire
type MessageType string

const (
	// Requests from a gateway client
	TypeGetConfig MessageType = "get_config"
	TypeRunQuery  MessageType = "run_query"
	TypeGetRuns   MessageType = "get_runs"
	TypeGetRun    MessageType = "get_run"
	TypeGetEvents MessageType = "get_events"

	// Responses
	TypeGetConfigResult MessageType = "get_config_result"
	TypeRunQueryAck     MessageType = "run_query_ack"
	TypeGetRunsResult   MessageType = "get_runs_result"
	TypeGetRunResult    MessageType = "get_run_result"
	TypeGetEventsResult MessageType = "get_events_result"
	TypeError           MessageType = "error"

	// Server-initiated events
	TypeRunEvent    MessageType = "run_event"
	TypeRunComplete MessageType = "run_complete"
)

// Envelope is the wire format for every message in both directions
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewRequest builds a request envelope with a fresh request ID
func NewRequest(msgType MessageType, payload any) (*Envelope, error) {
	return newEnvelope(msgType, uuid.New().String(), payload)
}

// NewResponse builds a response envelope tied to the originating request
func NewResponse(requestID string, msgType MessageType, payload any) (*Envelope, error) {
	return newEnvelope(msgType, requestID, payload)
}

// NewEvent builds a one-way event envelope
func NewEvent(msgType MessageType, payload any) (*Envelope, error) {
	return newEnvelope(msgType, "", payload)
}

// NewError builds an error response envelope
func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

func newEnvelope(msgType MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: msgType, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodePayload unmarshals an envelope's payload into v
func DecodePayload(env *Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	return json.Unmarshal(env.Payload, v)
}

// ErrorPayload carries a failed request's error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunQueryPayload asks the gateway to start a coordination run
type RunQueryPayload struct {
	Query         string `json:"query"`
	PlannerModel  string `json:"plannerModel,omitempty"`
	ExecutorModel string `json:"executorModel,omitempty"`
}

// RunQueryAckPayload acknowledges a run request
type RunQueryAckPayload struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"runId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RunEventPayload carries one streamed run event
type RunEventPayload struct {
	RunID     string `json:"runId"`
	EventType string `json:"eventType"`
	Data      any    `json:"data,omitempty"`
}

// RunCompletePayload signals the end of a run
type RunCompletePayload struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GetRunsPayload requests the run history
type GetRunsPayload struct {
	Limit int `json:"limit,omitempty"`
}

// GetRunsResultPayload lists stored runs
type GetRunsResultPayload struct {
	Runs []RunInfo `json:"runs"`
}

// RunInfo describes one stored run
type RunInfo struct {
	ID         string  `json:"id"`
	Query      string  `json:"query"`
	Status     string  `json:"status"`
	Answer     *string `json:"answer,omitempty"`
	StartedAt  string  `json:"startedAt"`
	FinishedAt *string `json:"finishedAt,omitempty"`
}

// GetRunPayload requests one run's task hierarchy
type GetRunPayload struct {
	RunID string `json:"runId"`
}

// GetRunResultPayload returns a run's tasks and subtasks
type GetRunResultPayload struct {
	Tasks []TaskInfo `json:"tasks"`
}

// TaskInfo describes one task and its subtasks
type TaskInfo struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Subtasks    []SubtaskInfo `json:"subtasks"`
}

// SubtaskInfo describes one dispatched subtask
type SubtaskInfo struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	Clusters      string  `json:"clusters"`
	Status        string  `json:"status"`
	ResultSummary *string `json:"resultSummary,omitempty"`
}

// GetEventsPayload requests a run's event log
type GetEventsPayload struct {
	RunID string `json:"runId"`
}

// GetEventsResultPayload returns the stored event log
type GetEventsResultPayload struct {
	Events []EventInfo `json:"events"`
}

// EventInfo is one stored run event
type EventInfo struct {
	ID        string `json:"id"`
	RunID     string `json:"runId"`
	EventType string `json:"eventType"`
	DataJSON  string `json:"dataJson"`
	CreatedAt string `json:"createdAt"`
}

// GetConfigResultPayload returns the instance configuration
type GetConfigResultPayload struct {
	Config InstanceInfo `json:"config"`
}
