// Package nats publisher handles outgoing messages from the agent to the
// controller.
//
// Hook results use JetStream so the controller never loses an outcome that
// decides whether a job may start. Heartbeats and node state use core NATS;
// they are ephemeral and superseded by the next tick.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/nodeinfo"
)

// Publisher handles publishing messages to NATS.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// PublishResult publishes a hook execution result.
func (p *Publisher) PublishResult(result *hooks.Result) error {
	subject := fmt.Sprintf("hookd.results.%s", p.client.NodeName())

	msg := MessageEnvelope{
		Type:      "hook_result",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload := HookResultMessage{
		RequestID:  result.RequestID,
		Class:      result.Class,
		JobID:      result.JobID,
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		Signal:     result.Signal,
		DurationMs: result.DurationMs,
		ExecutedAt: result.ExecutedAt.UTC().Format(time.RFC3339),
		Error:      result.Error,
	}

	payloadBytes, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publishJetStream(subject, msg)
}

// PublishHeartbeat publishes a heartbeat for presence detection.
// Uses core NATS (not JetStream) for ephemeral presence.
func (p *Publisher) PublishHeartbeat(version, platform string) error {
	subject := fmt.Sprintf("hookd.status.%s", p.client.NodeName())

	msg := MessageEnvelope{
		Type:      "heartbeat",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload := HeartbeatMessage{
		Online:    true,
		Version:   version,
		Platform:  platform,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publish(subject, msg)
}

// PublishNodeState publishes a node capacity snapshot.
// Uses core NATS (not JetStream) for high-frequency state.
func (p *Publisher) PublishNodeState(snap *nodeinfo.Snapshot) error {
	subject := fmt.Sprintf("hookd.state.%s", p.client.NodeName())

	msg := MessageEnvelope{
		Type:      "node_state",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload := NodeStateMessage{
		Timestamp:   snap.Timestamp.UTC().Format(time.RFC3339),
		Hostname:    snap.Hostname,
		CPUs:        snap.CPUs,
		MemoryTotal: snap.MemoryTotal,
		MemoryUsed:  snap.MemoryUsed,
		MemoryPct:   snap.MemoryPct,
		Load1:       snap.Load1,
		Load5:       snap.Load5,
		Load15:      snap.Load15,
		Uptime:      snap.Uptime,
	}

	payloadBytes, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publish(subject, msg)
}

// publish sends a message via core NATS (fire-and-forget).
func (p *Publisher) publish(subject string, msg MessageEnvelope) error {
	nc := p.client.Connection()
	if nc == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.logger.Debug("Published message",
		slog.String("subject", subject),
		slog.String("type", msg.Type),
	)

	return nil
}

// publishJetStream sends a message via JetStream for durability.
func (p *Publisher) publishJetStream(subject string, msg MessageEnvelope) error {
	js := p.client.JetStream()
	if js == nil {
		return fmt.Errorf("jetstream not available")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ack, err := js.Publish(context.Background(), subject, data)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.logger.Debug("Published message to JetStream",
		slog.String("subject", subject),
		slog.String("type", msg.Type),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}

// Flush flushes the NATS connection to ensure all pending messages are sent.
func (p *Publisher) Flush() error {
	nc := p.client.Connection()
	if nc == nil {
		return fmt.Errorf("not connected")
	}
	return nc.Flush()
}

// IsConnected returns whether the publisher can send messages.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}
