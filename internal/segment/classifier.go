package segment

import (
	"context"
	"errors"
	"strings"
)

// Classification labels returned by explain-only classifiers.
const (
	LabelEducational = "educational"
	LabelCommand     = "command"
)

// Prediction is a classifier verdict for one code segment.
type Prediction struct {
	Label      string
	Confidence float64
}

// Classifier corroborates or overrides the heuristic explain-only signal.
// Implementations must answer within the caller's context deadline; any
// error means "no opinion" and the heuristic stands. Classifier output is
// never authoritative for a block decision.
type Classifier interface {
	Classify(ctx context.Context, segmentText, contextText string) (Prediction, error)
}

// ErrClassifierDisabled is returned by NoopClassifier.
var ErrClassifierDisabled = errors.New("classifier disabled")

// NoopClassifier is the default: it never has an opinion, so the keyword
// heuristic always decides.
type NoopClassifier struct{}

// Classify always reports the classifier as disabled.
func (NoopClassifier) Classify(ctx context.Context, segmentText, contextText string) (Prediction, error) {
	return Prediction{}, ErrClassifierDisabled
}

// KeywordClassifier scores a segment by counting imperative-shell cues in
// the code against educational cues in the surrounding prose. It is a
// deterministic stand-in for an external statistical model and is wired
// through the same interface.
type KeywordClassifier struct{}

var commandCues = []string{
	"sudo ", "curl ", "wget ", "| sh", "| bash", "rm -rf", "chmod +x",
	"powershell", "invoke-", "&&", ">/dev/null",
}

var proseCues = []string{
	"example", "tutorial", "demonstrates", "never run", "do not run",
	"for learning", "explanation", "warning",
}

// Classify weighs command cues in the segment against prose cues around it.
func (KeywordClassifier) Classify(ctx context.Context, segmentText, contextText string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	code := strings.ToLower(segmentText)
	prose := strings.ToLower(contextText)

	commandScore := 0
	for _, cue := range commandCues {
		if strings.Contains(code, cue) {
			commandScore++
		}
	}
	proseScore := 0
	for _, cue := range proseCues {
		if strings.Contains(prose, cue) {
			proseScore++
		}
	}

	total := commandScore + proseScore
	if total == 0 {
		return Prediction{Label: LabelEducational, Confidence: 0}, nil
	}
	if proseScore >= commandScore {
		return Prediction{
			Label:      LabelEducational,
			Confidence: float64(proseScore) / float64(total),
		}, nil
	}
	return Prediction{
		Label:      LabelCommand,
		Confidence: float64(commandScore) / float64(total),
	}, nil
}
