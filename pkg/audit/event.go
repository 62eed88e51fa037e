package audit

import (
	"time"
)

// EventType distinguishes the boundary an event marks.
type EventType string

const (
	EventStart     EventType = "START"
	EventFinish    EventType = "FINISH"
	EventException EventType = "EXCEPTION"
)

// Well-known event names.
const (
	EventRequest        = "REQUEST"
	EventAuthentication = "AUTHENTICATION"
)

// Error codes attached to exception events.
const (
	ErrorCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrorCodeRequest        = "REQUEST_ERROR"
)

// Event is a single audit record. It lives only until it reaches a Sink.
type Event struct {
	Name         string        `json:"event_name"`
	Type         EventType     `json:"event_type"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`
	Params       Params        `json:"params"`
	RequestID    string        `json:"request_id,omitempty"`
	ClientName   string        `json:"client_name,omitempty"`
	ServiceName  string        `json:"service_name,omitempty"`
	ServiceUUID  string        `json:"service_uuid,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}
