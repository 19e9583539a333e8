// Package nats message types for controller communication.
//
// Defines the message envelope and payload structures exchanged between the
// controller and node agents via NATS.
package nats

import "encoding/json"

// MessageEnvelope wraps all NATS messages with type information.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// HookRequestMessage asks the node to run a hook class for a job.
type HookRequestMessage struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	JobID   uint64 `json:"jobId,omitempty"`
	JobUser string `json:"jobUser,omitempty"`
}

// HookResultMessage reports the outcome of a hook run.
type HookResultMessage struct {
	RequestID  string `json:"requestId,omitempty"`
	Class      string `json:"class"`
	JobID      uint64 `json:"jobId,omitempty"`
	Status     int    `json:"status"`
	ExitCode   int    `json:"exitCode"`
	Signal     int    `json:"signal"`
	DurationMs int64  `json:"durationMs"`
	ExecutedAt string `json:"executedAt"`
	Error      string `json:"error,omitempty"`
}

// HeartbeatMessage is published for presence detection.
type HeartbeatMessage struct {
	Online    bool   `json:"online"`
	Version   string `json:"version,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NodeStateMessage carries a node capacity snapshot alongside heartbeats.
type NodeStateMessage struct {
	Timestamp   string  `json:"timestamp"`
	Hostname    string  `json:"hostname"`
	CPUs        int     `json:"cpus"`
	MemoryTotal uint64  `json:"memoryTotal"`
	MemoryUsed  uint64  `json:"memoryUsed"`
	MemoryPct   float64 `json:"memoryPct"`
	Load1       float64 `json:"load1"`
	Load5       float64 `json:"load5"`
	Load15      float64 `json:"load15"`
	Uptime      uint64  `json:"uptime"`
}
