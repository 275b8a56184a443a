// Package segment splits normalized text into offset-tagged regions by
// lightweight structural scanning: fenced code blocks, inline code spans,
// markdown links and bare URLs. No full markdown AST is built. Concatenating
// the segments in order reproduces the input exactly, which downstream
// span-based replacement depends on.
package segment

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/brnakin/llm-egress-guard/internal/logger"
	"go.uber.org/zap"
)

var (
	fencedCodePattern = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```")
	inlineCodePattern = regexp.MustCompile("`([^`\n]+)`")
	markdownLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	// Bare URLs; group 2 carries the URL, group 1 keeps the boundary
	// character out of the match since RE2 has no lookbehind.
	rawURLPattern = regexp.MustCompile("(^|[^\\w`])(https?://[^\\s\\]\\)>\"'`]+)")
)

// Educational-context keywords. A code block surrounded by these is likely
// being explained, not issued.
var educationalKeywords = []string{
	"warning", "dangerous", "unsafe", "caution",
	"example", "tutorial", "demonstrates", "never", "avoid",
	"do not run", "don't", "do not", "malicious", "attack", "exploit",
	"insecure", "vulnerable", "bad practice", "anti-pattern", "antipattern",
	"what not to do", "for educational", "for learning",
	"here's how", "here is how", "shows how", "learn", "explain",
}

// Segmenter parses normalized text into segments and classifies code
// segments as explain-only. The classifier hook is optional; the keyword
// heuristic decides when the hook is absent or fails.
type Segmenter struct {
	contextWindow int
	classifier    Classifier
	timeout       time.Duration
	minConfidence float64
	logger        *logger.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithClassifier attaches an explain-only classifier consulted after the
// heuristic. Calls are bounded by timeout; any error or confidence below
// minConfidence falls back to the heuristic result.
func WithClassifier(c Classifier, timeout time.Duration, minConfidence float64) Option {
	return func(s *Segmenter) {
		s.classifier = c
		s.timeout = timeout
		s.minConfidence = minConfidence
	}
}

// WithContextWindow overrides the surrounding-text window used for the
// explain-only heuristic.
func WithContextWindow(chars int) Option {
	return func(s *Segmenter) {
		if chars > 0 {
			s.contextWindow = chars
		}
	}
}

// New creates a Segmenter.
func New(log *logger.Logger, opts ...Option) *Segmenter {
	s := &Segmenter{
		contextWindow: 200,
		classifier:    NoopClassifier{},
		timeout:       50 * time.Millisecond,
		minConfidence: 0.6,
		logger:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type span struct {
	start, end int
	seg        Segment
}

// Parse segments the normalized text. The returned segments are ordered by
// start offset and partition the whole text.
func (s *Segmenter) Parse(ctx context.Context, text string) *ParsedContent {
	parsed := &ParsedContent{Text: text}
	if text == "" {
		return parsed
	}

	var specials []span

	fenced := fencedCodePattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range fenced {
		specials = append(specials, span{
			start: m[0],
			end:   m[1],
			seg: Segment{
				Kind:     KindCode,
				Content:  text[m[4]:m[5]],
				Start:    m[0],
				End:      m[1],
				Language: text[m[2]:m[3]],
				Fenced:   true,
			},
		})
	}

	inFenced := func(pos int) bool {
		for _, m := range fenced {
			if m[0] <= pos && pos < m[1] {
				return true
			}
		}
		return false
	}

	inline := inlineCodePattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range inline {
		if inFenced(m[0]) {
			continue
		}
		specials = append(specials, span{
			start: m[0],
			end:   m[1],
			seg: Segment{
				Kind:    KindCode,
				Content: text[m[2]:m[3]],
				Start:   m[0],
				End:     m[1],
			},
		})
	}

	inCode := func(pos int) bool {
		if inFenced(pos) {
			return true
		}
		for _, m := range inline {
			if m[0] <= pos && pos < m[1] {
				return true
			}
		}
		return false
	}

	links := markdownLink.FindAllStringSubmatchIndex(text, -1)
	for _, m := range links {
		if inCode(m[0]) {
			continue
		}
		specials = append(specials, span{
			start: m[0],
			end:   m[1],
			seg: Segment{
				Kind:     KindLink,
				Content:  text[m[0]:m[1]],
				Start:    m[0],
				End:      m[1],
				LinkText: text[m[2]:m[3]],
				URL:      text[m[4]:m[5]],
			},
		})
	}

	inLink := func(pos int) bool {
		for _, m := range links {
			if m[0] <= pos && pos < m[1] {
				return true
			}
		}
		return false
	}

	for _, m := range rawURLPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[4], m[5]
		if inCode(start) || inLink(start) {
			continue
		}
		specials = append(specials, span{
			start: start,
			end:   end,
			seg: Segment{
				Kind:    KindLink,
				Content: text[start:end],
				Start:   start,
				End:     end,
				URL:     text[start:end],
			},
		})
	}

	parsed.Segments = assemble(text, specials)

	for i := range parsed.Segments {
		seg := &parsed.Segments[i]
		if seg.Kind == KindCode {
			seg.ExplainOnly = s.detectExplainOnly(ctx, seg, text)
		}
	}

	return parsed
}

// assemble sorts the special spans, drops overlaps, and fills every gap with
// a text segment so the result partitions the input.
func assemble(text string, specials []span) []Segment {
	// Insertion sort keeps this dependency-free for the short lists seen
	// in practice.
	for i := 1; i < len(specials); i++ {
		for j := i; j > 0 && specials[j].start < specials[j-1].start; j-- {
			specials[j], specials[j-1] = specials[j-1], specials[j]
		}
	}

	var segments []Segment
	cursor := 0
	for _, sp := range specials {
		if sp.start < cursor {
			continue
		}
		if sp.start > cursor {
			segments = append(segments, Segment{
				Kind:    KindText,
				Content: text[cursor:sp.start],
				Start:   cursor,
				End:     sp.start,
			})
		}
		segments = append(segments, sp.seg)
		cursor = sp.end
	}
	if cursor < len(text) {
		segments = append(segments, Segment{
			Kind:    KindText,
			Content: text[cursor:],
			Start:   cursor,
			End:     len(text),
		})
	}
	return segments
}

// detectExplainOnly classifies a code segment as educational context. The
// keyword heuristic over the surrounding window decides; the classifier
// hook may confirm or override when it answers confidently in time.
func (s *Segmenter) detectExplainOnly(ctx context.Context, seg *Segment, text string) bool {
	surrounding := surroundingText(text, seg.Start, seg.End, s.contextWindow)
	heuristic := hasEducationalKeywords(surrounding)

	if _, ok := s.classifier.(NoopClassifier); ok || s.classifier == nil {
		return heuristic
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pred, err := s.classifier.Classify(callCtx, seg.Content, surrounding)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("Classifier unavailable, using heuristic", zap.Error(err))
		}
		return heuristic
	}
	if pred.Confidence < s.minConfidence {
		return heuristic
	}
	switch pred.Label {
	case LabelEducational:
		return true
	case LabelCommand:
		return false
	}
	return heuristic
}

func surroundingText(text string, start, end, window int) string {
	before := start - window
	if before < 0 {
		before = 0
	}
	after := end + window
	if after > len(text) {
		after = len(text)
	}
	return text[before:start] + " " + text[end:after]
}

func hasEducationalKeywords(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range educationalKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
