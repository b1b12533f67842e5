package answer

import (
	"strings"
)

// Segment kinds produced by the stream parser, mapping one-to-one onto the
// event types answer text is emitted as.
type SegmentKind int

const (
	// SegmentAnswer is spoken answer text: emitted as answer_chunk and
	// forwarded to synthesis.
	SegmentAnswer SegmentKind = iota

	// SegmentThinking is model reasoning: emitted as thinking, never spoken.
	SegmentThinking

	// SegmentFormatted is display-formatted answer text: emitted as
	// formatted_answer, never spoken.
	SegmentFormatted

	segmentKinds
)

// Segment is one span of classified text from the generation stream.
type Segment struct {
	Kind SegmentKind
	Text string
}

const (
	tagSectionA    = "<sectionA>"
	tagSectionAEnd = "</sectionA>"
	tagThinking    = "<thinking>"
	tagThinkingEnd = "</thinking>"
	tagSectionB    = "<sectionB>"
	tagSectionBEnd = "</sectionB>"

	// sessionEndMarker signals the assistant considers the conversation
	// finished. Stripped from output, surfaced via SessionEnd.
	sessionEndMarker = "{#NXENDX#}"

	// metaPrefix opens a document-reference marker, closed by "]".
	metaPrefix = "[meta:docs"

	// detectWindow is how much leading text may arrive before an untagged
	// stream is treated as plain.
	detectWindow = 20

	// maxTagLen bounds how long an unterminated "<" run can hold up the
	// stream before it is passed through as literal text.
	maxTagLen = len(tagThinkingEnd) + 1

	// maxMetaLen bounds an unterminated meta marker the same way.
	maxMetaLen = 512
)

type parseState int

const (
	stateDetecting parseState = iota
	statePlain
	stateOutside
	stateInA
	stateInThinking
	stateInB
)

// StreamParser incrementally classifies LLM output. In sectioned mode it
// drives a tag state machine over the <sectionA>/<thinking>/<sectionB>
// envelope; in plain mode every fragment is answer text. Either way the
// session-end marker and document-reference markers are stripped out and
// surfaced through [StreamParser.SessionEnd] and [StreamParser.DocIDs].
//
// The input may be truncated at any byte, so this is deliberately not an XML
// parse: tags and markers split across fragments are buffered until they can
// be classified, and anything that stops looking like markup is passed
// through as text. Not safe for concurrent use; feed it from one goroutine.
type StreamParser struct {
	state parseState
	buf   string

	// held keeps per-kind text that might be the start of a marker.
	held [segmentKinds]string

	docIDs     []string
	seenDocs   map[string]bool
	sessionEnd bool
}

// NewStreamParser returns a parser. With sectioned=true the parser expects
// the envelope but falls back to plain mode when the stream opens without it.
func NewStreamParser(sectioned bool) *StreamParser {
	st := statePlain
	if sectioned {
		st = stateDetecting
	}
	return &StreamParser{state: st, seenDocs: make(map[string]bool)}
}

// Feed consumes one stream fragment and returns the segments that became
// unambiguous. Segments preserve input order.
func (p *StreamParser) Feed(fragment string) []Segment {
	p.buf += fragment
	return p.drain(false)
}

// Finish flushes everything still buffered, treating partial tags and
// markers as literal text. Call exactly once, after the last Feed.
func (p *StreamParser) Finish() []Segment {
	segs := p.drain(true)
	for kind := SegmentKind(0); kind < segmentKinds; kind++ {
		if p.held[kind] != "" {
			segs = appendSegment(segs, kind, p.held[kind])
			p.held[kind] = ""
		}
	}
	return segs
}

// DocIDs returns the document ids collected from meta markers, in first-seen
// order.
func (p *StreamParser) DocIDs() []string {
	return p.docIDs
}

// SessionEnd reports whether the stream carried the session-end marker.
func (p *StreamParser) SessionEnd() bool {
	return p.sessionEnd
}

func (p *StreamParser) drain(final bool) []Segment {
	var segs []Segment
	for {
		switch p.state {
		case stateDetecting:
			if i := strings.Index(p.buf, tagSectionA); i >= 0 {
				// Leading text before the envelope is preamble, dropped.
				p.buf = p.buf[i+len(tagSectionA):]
				p.state = stateInA
				continue
			}
			if final || len(p.buf) >= detectWindow+len(tagSectionA) {
				p.state = statePlain
				continue
			}
			return segs

		case statePlain:
			segs = p.emit(segs, SegmentAnswer, p.buf, final)
			p.buf = ""
			return segs

		default:
			var more bool
			segs, more = p.scanEnvelope(segs, final)
			if !more {
				return segs
			}
		}
	}
}

// scanEnvelope consumes buffered text in an envelope state. Returns more=true
// when a state change warrants another drain pass.
func (p *StreamParser) scanEnvelope(segs []Segment, final bool) ([]Segment, bool) {
	for {
		i := strings.IndexByte(p.buf, '<')
		if i < 0 {
			segs = p.emit(segs, p.kind(), p.buf, final)
			p.buf = ""
			return segs, false
		}

		segs = p.emit(segs, p.kind(), p.buf[:i], final)
		p.buf = p.buf[i:]

		j := strings.IndexByte(p.buf, '>')
		if j < 0 {
			if !final && len(p.buf) <= maxTagLen {
				// Possibly a tag split across fragments.
				return segs, false
			}
			segs = p.emit(segs, p.kind(), "<", final)
			p.buf = p.buf[1:]
			continue
		}

		tag := p.buf[:j+1]
		if next, ok := transition(tag); ok {
			p.state = next
			p.buf = p.buf[j+1:]
			return segs, true
		}
		segs = p.emit(segs, p.kind(), tag, final)
		p.buf = p.buf[j+1:]
	}
}

// kind maps the current envelope state to a segment kind. Outside text has
// no kind; emit discards it via the ok flag below.
func (p *StreamParser) kind() SegmentKind {
	switch p.state {
	case stateInThinking:
		return SegmentThinking
	case stateInB:
		return SegmentFormatted
	default:
		return SegmentAnswer
	}
}

// emit routes text through the marker scanner for its kind and appends the
// cleaned result. Text in the Outside state is dropped entirely.
func (p *StreamParser) emit(segs []Segment, kind SegmentKind, text string, final bool) []Segment {
	if p.state == stateOutside {
		// Still scan for markers, which the model may place between sections.
		p.scanMarkers(kind, text, final)
		return segs
	}
	cleaned := p.scanMarkers(kind, text, final)
	return appendSegment(segs, kind, cleaned)
}

func appendSegment(segs []Segment, kind SegmentKind, text string) []Segment {
	if text == "" {
		return segs
	}
	if n := len(segs); n > 0 && segs[n-1].Kind == kind {
		segs[n-1].Text += text
		return segs
	}
	return append(segs, Segment{Kind: kind, Text: text})
}

// scanMarkers strips complete markers from text, holding back a suffix that
// might be the start of one. With final=true nothing is held back.
func (p *StreamParser) scanMarkers(kind SegmentKind, text string, final bool) string {
	s := p.held[kind] + text
	p.held[kind] = ""

	var out strings.Builder
	for {
		ie := strings.Index(s, sessionEndMarker)
		im := strings.Index(s, metaPrefix)

		if ie >= 0 && (im < 0 || ie < im) {
			out.WriteString(s[:ie])
			p.sessionEnd = true
			s = s[ie+len(sessionEndMarker):]
			continue
		}

		if im >= 0 {
			end := strings.IndexByte(s[im:], ']')
			switch {
			case end >= 0:
				out.WriteString(s[:im])
				p.recordDocs(s[im+len(metaPrefix) : im+end])
				s = s[im+end+1:]
				continue
			case !final && len(s)-im <= maxMetaLen:
				out.WriteString(s[:im])
				p.held[kind] = s[im:]
				return out.String()
			default:
				// Unterminated and over budget: literal text after all.
				out.WriteString(s[:im+len(metaPrefix)])
				s = s[im+len(metaPrefix):]
				continue
			}
		}

		hold := 0
		if !final {
			hold = partialMarkerSuffix(s)
		}
		out.WriteString(s[:len(s)-hold])
		p.held[kind] = s[len(s)-hold:]
		return out.String()
	}
}

// recordDocs parses the body of a meta marker: ids separated by commas or
// whitespace.
func (p *StreamParser) recordDocs(raw string) {
	for _, id := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		if !p.seenDocs[id] {
			p.seenDocs[id] = true
			p.docIDs = append(p.docIDs, id)
		}
	}
}

// partialMarkerSuffix returns the length of the longest suffix of s that is
// a proper prefix of any marker.
func partialMarkerSuffix(s string) int {
	best := 0
	for _, marker := range [...]string{sessionEndMarker, metaPrefix} {
		limit := len(marker) - 1
		if limit > len(s) {
			limit = len(s)
		}
		for n := limit; n > best; n-- {
			if strings.HasPrefix(marker, s[len(s)-n:]) {
				best = n
				break
			}
		}
	}
	return best
}

// transition maps an envelope tag to the state it enters. Unknown tags are
// not transitions.
func transition(tag string) (parseState, bool) {
	switch tag {
	case tagSectionA, tagThinkingEnd:
		return stateInA, true
	case tagSectionAEnd, tagSectionBEnd:
		return stateOutside, true
	case tagThinking:
		return stateInThinking, true
	case tagSectionB:
		return stateInB, true
	default:
		return 0, false
	}
}
