package segment

// Kind classifies a region of the normalized text.
type Kind string

const (
	KindText Kind = "text"
	KindCode Kind = "code"
	KindLink Kind = "link"
)

// Segment is an offset-tagged region of the normalized text. Start and End
// are byte offsets; segments partition the text with no gaps or overlaps.
type Segment struct {
	Kind        Kind   `json:"kind"`
	Content     string `json:"content"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Language    string `json:"language,omitempty"`  // code segments
	Fenced      bool   `json:"fenced,omitempty"`    // code segments
	URL         string `json:"url,omitempty"`       // link segments
	LinkText    string `json:"link_text,omitempty"` // markdown links
	ExplainOnly bool   `json:"explain_only,omitempty"`
}

// ParsedContent holds the normalized text and its segments in start order.
type ParsedContent struct {
	Text     string
	Segments []Segment
}

// SegmentAt returns the segment containing the given byte offset, or nil.
func (p *ParsedContent) SegmentAt(offset int) *Segment {
	for i := range p.Segments {
		s := &p.Segments[i]
		if s.Start <= offset && offset < s.End {
			return s
		}
	}
	return nil
}

// ContextFor returns the segment kind and explain-only flag for a finding
// span. A span whose start falls in no segment (empty text) defaults to
// plain text context.
func (p *ParsedContent) ContextFor(start, end int) (Kind, bool) {
	seg := p.SegmentAt(start)
	if seg == nil {
		for i := range p.Segments {
			s := &p.Segments[i]
			if s.Start < end && s.End > start {
				seg = s
				break
			}
		}
	}
	if seg == nil {
		return KindText, false
	}
	return seg.Kind, seg.ExplainOnly
}

// HasExplainOnly reports whether any code segment was classified as
// educational context.
func (p *ParsedContent) HasExplainOnly() bool {
	for i := range p.Segments {
		if p.Segments[i].ExplainOnly {
			return true
		}
	}
	return false
}
