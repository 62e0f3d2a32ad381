package metrics

import (
	"encoding/json"
	"fmt"
	"time"
)

// FailureKind classifies why a request failed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTimeout
	FailureNetwork
	FailureHTTP
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network"
	case FailureHTTP:
		return "http"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *FailureKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*k = FailureNone
	case "timeout":
		*k = FailureTimeout
	case "network":
		*k = FailureNetwork
	case "http":
		*k = FailureHTTP
	default:
		return fmt.Errorf("unknown failure kind %q", text)
	}
	return nil
}

// Outcome is the immutable result of one dispatched request.
type Outcome struct {
	RequestID   int64
	Success     bool
	Latency     time.Duration
	Status      int    // 0 when no response was received
	Error       string // empty on success
	Kind        FailureKind
	Detail      string // server-supplied message, if any
	CompletedAt time.Time
}

type outcomeJSON struct {
	RequestID    int64       `json:"requestId"`
	Success      bool        `json:"success"`
	ResponseTime float64     `json:"responseTime"`
	Status       int         `json:"status"`
	Error        *string     `json:"error"`
	Kind         FailureKind `json:"kind,omitempty"`
	Detail       string      `json:"detail,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// MarshalJSON writes the outcome with its latency in milliseconds and a null
// error on success.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		RequestID:    o.RequestID,
		Success:      o.Success,
		ResponseTime: durationMs(o.Latency),
		Status:       o.Status,
		Kind:         o.Kind,
		Detail:       o.Detail,
		Timestamp:    o.CompletedAt,
	}
	if o.Error != "" {
		e := o.Error
		out.Error = &e
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var in outcomeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*o = Outcome{
		RequestID:   in.RequestID,
		Success:     in.Success,
		Latency:     time.Duration(in.ResponseTime * float64(time.Millisecond)),
		Status:      in.Status,
		Kind:        in.Kind,
		Detail:      in.Detail,
		CompletedAt: in.Timestamp,
	}
	if in.Error != nil {
		o.Error = *in.Error
	}
	return nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
