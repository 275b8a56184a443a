package websocket

import "time"

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDecision represents one guard decision
	EventTypeDecision EventType = "decision"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DecisionEvent carries the audit-safe view of one inspection: rule ids,
// counts and scores only, never matched or sanitized text.
type DecisionEvent struct {
	RequestID     string   `json:"request_id"`
	PolicyID      string   `json:"policy_id"`
	TenantID      string   `json:"tenant_id,omitempty"`
	Blocked       bool     `json:"blocked"`
	RiskScore     int      `json:"risk_score"`
	RuleIDs       []string `json:"rule_ids"`
	TotalFindings int      `json:"total_findings"`
	Anomalies     []string `json:"anomalies,omitempty"`
	ProcessingMS  float64  `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalBlocked     int64  `json:"total_blocked"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
