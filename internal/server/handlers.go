package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brnakin/llm-egress-guard/internal/audit"
	"github.com/brnakin/llm-egress-guard/internal/export"
	"github.com/brnakin/llm-egress-guard/internal/guard"
	"github.com/brnakin/llm-egress-guard/internal/websocket"
)

// GuardRequest is the inspection request body.
type GuardRequest struct {
	Text     string `json:"text"`
	PolicyID string `json:"policy_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// GuardResponse wraps the pipeline result for the wire.
type GuardResponse struct {
	guard.Result
	RequestID string  `json:"request_id"`
	LatencyMS float64 `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleGuard runs one inspection.
func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	log := s.logger.WithRequestID(requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Limits.MaxBodyBytes)

	var req GuardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Limits.RequestTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.guard.Inspect(ctx, req.Text, req.PolicyID, req.TenantID)
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		// Fail-closed: the result already carries the generic block.
		log.Error("Inspection failed closed", zap.Error(err))
	}

	s.logger.LogDecision(requestID, result.PolicyID, result.Blocked, result.RiskScore, len(result.Findings), latency)
	s.publish(requestID, req.TenantID, &result, latency)

	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, GuardResponse{Result: result, RequestID: requestID, LatencyMS: latency})
}

// publish fans the audit-safe decision view out to the optional
// collaborators. All of it is best-effort; inspection latency never waits on
// Postgres or Redis.
func (s *Server) publish(requestID, tenantID string, result *guard.Result, latencyMS float64) {
	ruleIDs := make([]string, 0, len(result.Findings))
	hashes := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		ruleIDs = append(ruleIDs, f.RuleID)
		hashes = append(hashes, f.SnippetHash)
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeDecision,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.DecisionEvent{
				RequestID:     requestID,
				PolicyID:      result.PolicyID,
				TenantID:      tenantID,
				Blocked:       result.Blocked,
				RiskScore:     result.RiskScore,
				RuleIDs:       ruleIDs,
				TotalFindings: len(result.Findings),
				Anomalies:     result.Anomalies,
				ProcessingMS:  latencyMS,
			},
		})
	}

	if s.spool != nil {
		s.spool.Enqueue(export.Event{
			RequestID:  requestID,
			PolicyID:   result.PolicyID,
			TenantID:   tenantID,
			Blocked:    result.Blocked,
			RiskScore:  result.RiskScore,
			RuleIDs:    ruleIDs,
			Anomalies:  result.Anomalies,
			OccurredAt: time.Now(),
		})
	}

	if s.auditor != nil {
		record := &audit.Record{
			RequestID:     requestID,
			PolicyID:      result.PolicyID,
			TenantID:      tenantID,
			Blocked:       result.Blocked,
			RiskScore:     result.RiskScore,
			RuleIDs:       ruleIDs,
			SnippetHashes: hashes,
			Anomalies:     result.Anomalies,
			LatencyMS:     latencyMS,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.auditor.Insert(ctx, record); err != nil {
				s.logger.Error("Audit insert failed", zap.Error(err))
			}
		}()
	}
}

// statsResponse is the operator view of recent decisions. Records carry rule
// ids and hashes only, like everything downstream of the pipeline.
type statsResponse struct {
	Window        string         `json:"window"`
	Decisions     *audit.Stats   `json:"decisions"`
	RecentBlocked []audit.Record `json:"recent_blocked"`
	QueueDepth    *int64         `json:"queue_depth,omitempty"`
}

// handleStats reports aggregate decision counts, the latest blocked
// decisions and the SIEM backlog.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit store not configured"})
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid window"})
			return
		}
		window = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.auditor.StatsSince(ctx, time.Now().Add(-window))
	if err != nil {
		s.logger.Error("Stats query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "stats unavailable"})
		return
	}
	recent, err := s.auditor.RecentBlocked(ctx, 20)
	if err != nil {
		s.logger.Error("Blocked-decision query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "stats unavailable"})
		return
	}

	resp := statsResponse{
		Window:        window.String(),
		Decisions:     stats,
		RecentBlocked: recent,
	}
	if s.spool != nil {
		if depth, err := s.spool.QueueDepth(ctx); err == nil {
			resp.QueueDepth = &depth
		} else {
			s.logger.Error("Queue depth query failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":           "llm-egress-guard",
		"version":        "0.1.0",
		"rate_limit":     s.config.Limits.RateLimit.Enabled,
		"max_body_bytes": s.config.Limits.MaxBodyBytes,
		"audit_enabled":  s.auditor != nil,
		"export_enabled": s.spool != nil,
		"websocket":      s.wsHub != nil && s.config.WebSocket.Enabled,
		"classifier":     s.config.Classifier.Enabled,
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
