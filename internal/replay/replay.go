// Package replay runs a labeled corpus of texts through the guard pipeline
// and compares outcomes against expectations. Regression datasets ship as
// CSV, Parquet or newline-delimited JSON.
package replay

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brnakin/llm-egress-guard/internal/guard"
	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/segmentio/parquet-go"
)

// Record is one corpus sample: the text and the expected decision.
type Record struct {
	Name          string `json:"name" parquet:"name"`
	Text          string `json:"text" parquet:"text"`
	ExpectBlocked bool   `json:"expect_blocked" parquet:"expect_blocked"`
	// Comma-separated in CSV, slice-ish string in parquet/json for schema
	// simplicity.
	ExpectRules string `json:"expect_rules" parquet:"expect_rules"`
}

// Mismatch is one sample whose outcome diverged from its expectation.
type Mismatch struct {
	Name          string
	ExpectBlocked bool
	GotBlocked    bool
	MissingRules  []string
	GotRules      []string
}

// Result summarizes a corpus run.
type Result struct {
	Total      int
	Passed     int
	Mismatches []Mismatch
	Duration   time.Duration
}

// Runner replays corpus files through a guard.
type Runner struct {
	guard    *guard.Guard
	policyID string
	logger   *logger.Logger
}

// NewRunner creates a Runner evaluating against the named policy.
func NewRunner(g *guard.Guard, policyID string, log *logger.Logger) *Runner {
	return &Runner{guard: g, policyID: policyID, logger: log.WithComponent("replay")}
}

// ProcessFile replays one corpus file, dispatching on its extension.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*Result, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Replaying corpus",
		zap.String("file", path),
		zap.Int("samples", len(records)))

	start := time.Now()
	result := &Result{Total: len(records)}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if mismatch := r.runSample(ctx, &records[i]); mismatch != nil {
			result.Mismatches = append(result.Mismatches, *mismatch)
		} else {
			result.Passed++
		}
	}
	result.Duration = time.Since(start)

	r.logger.Info("Corpus replay completed",
		zap.Int("total", result.Total),
		zap.Int("passed", result.Passed),
		zap.Int("mismatches", len(result.Mismatches)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (r *Runner) runSample(ctx context.Context, record *Record) *Mismatch {
	outcome, err := r.guard.Inspect(ctx, record.Text, r.policyID, "")
	if err != nil {
		return &Mismatch{Name: record.Name, ExpectBlocked: record.ExpectBlocked, GotBlocked: true}
	}

	got := make(map[string]struct{}, len(outcome.Findings))
	var gotRules []string
	for _, f := range outcome.Findings {
		if _, dup := got[f.RuleID]; dup {
			continue
		}
		got[f.RuleID] = struct{}{}
		gotRules = append(gotRules, f.RuleID)
	}
	sort.Strings(gotRules)

	var missing []string
	for _, want := range splitRules(record.ExpectRules) {
		if _, ok := got[want]; !ok {
			missing = append(missing, want)
		}
	}

	if outcome.Blocked == record.ExpectBlocked && len(missing) == 0 {
		return nil
	}
	return &Mismatch{
		Name:          record.Name,
		ExpectBlocked: record.ExpectBlocked,
		GotBlocked:    outcome.Blocked,
		MissingRules:  missing,
		GotRules:      gotRules,
	}
}

func splitRules(rules string) []string {
	if rules == "" {
		return nil
	}
	parts := strings.Split(rules, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func readRecords(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".parquet":
		return readParquet(path)
	case ".json", ".jsonl", ".ndjson":
		return readJSON(path)
	}
	return nil, fmt.Errorf("unsupported corpus format: %s", path)
}

// readCSV expects columns name, text, expect_blocked, expect_rules.
func readCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV corpus: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 4

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		records = append(records, Record{
			Name:          strings.TrimSpace(row[0]),
			Text:          row[1],
			ExpectBlocked: row[2] == "1" || strings.EqualFold(row[2], "true"),
			ExpectRules:   row[3],
		})
	}
	return records, nil
}

func readParquet(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet corpus: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var records []Record
	for {
		var record Record
		err := reader.Read(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// readJSON expects one JSON object per line.
func readJSON(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON corpus: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var records []Record
	for {
		var record Record
		err := decoder.Decode(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
