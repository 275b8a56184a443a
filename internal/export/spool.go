// Package export spools sanitized decision events onto a Redis list for
// downstream SIEM connectors to drain. Events are batched in memory and
// flushed on a timer or when the batch fills; a dead Redis drops events
// rather than stalling inspections.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Config contains spool configuration.
type Config struct {
	RedisURL      string        `yaml:"redis_url" mapstructure:"redis_url"`
	Queue         string        `yaml:"queue" mapstructure:"queue"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// Event is the SIEM-facing view of one decision.
type Event struct {
	RequestID  string    `json:"request_id"`
	PolicyID   string    `json:"policy_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Blocked    bool      `json:"blocked"`
	RiskScore  int       `json:"risk_score"`
	RuleIDs    []string  `json:"rule_ids"`
	Anomalies  []string  `json:"anomalies,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Spool batches decision events onto a Redis list.
type Spool struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	mu      sync.Mutex
	pending []Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSpool connects to Redis and starts the flush loop.
func NewSpool(config *Config, logger *zap.Logger) (*Spool, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if config.Queue == "" {
		config.Queue = "guard:decisions"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}

	s := &Spool{
		client: client,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()

	logger.Info("SIEM spool initialized",
		zap.String("queue", config.Queue),
		zap.Int("batch_size", config.BatchSize),
		zap.Duration("flush_interval", config.FlushInterval))
	return s, nil
}

// Enqueue adds an event to the pending batch. It never blocks the caller;
// a full batch triggers an asynchronous flush.
func (s *Spool) Enqueue(event Event) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	full := len(s.pending) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		go s.flush()
	}
}

func (s *Spool) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *Spool) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	payloads := make([]interface{}, 0, len(batch))
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("Failed to marshal SIEM event", zap.Error(err))
			continue
		}
		payloads = append(payloads, data)
	}
	if len(payloads) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.LPush(ctx, s.config.Queue, payloads...).Err(); err != nil {
		s.logger.Error("Failed to push SIEM batch, dropping events",
			zap.Error(err),
			zap.Int("dropped", len(payloads)))
		return
	}
	s.logger.Debug("SIEM batch flushed",
		zap.String("queue", s.config.Queue),
		zap.Int("events", len(payloads)))
}

// QueueDepth reports how many events are waiting in Redis.
func (s *Spool) QueueDepth(ctx context.Context) (int64, error) {
	depth, err := s.client.LLen(ctx, s.config.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("querying queue depth: %w", err)
	}
	return depth, nil
}

// Close flushes pending events and releases the Redis connection.
func (s *Spool) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.client.Close()
}
