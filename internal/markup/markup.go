// Package markup parses the in-band synthesis directives embedded in request
// text: <alpha=F> sets the speed factor for the following text, and
// <sil=Nms> or <sil=N.Ns> inserts a fixed-duration pause. Parsing is a small
// state machine over the raw bytes so malformed directives can be reported
// with their exact byte offset; nothing is ever silently dropped.
package markup

import (
	"math"
	"strconv"
	"strings"

	"github.com/hawkaii/fastspeech/internal/core"
)

// Directive tag names.
const (
	tagAlpha   = "alpha"
	tagSilence = "sil"
)

// maxSilenceMillis bounds one silence directive to a minute. Durations beyond
// it are rejected as malformed, never clamped, so the sample count derived
// from a marker always fits comfortably in an int.
const maxSilenceMillis = 60_000

// Segment is a run of text spoken at a single speed factor. Segments partition
// the input exactly, excluding the directive tokens themselves, and Order is
// strictly increasing.
type Segment struct {
	Text  string
	Alpha float64
	Order int
}

// SilenceMarker is a pause between two segments. AfterSegment is the order of
// the segment the pause follows, or -1 for a pause before the first segment.
// Zero-duration markers are preserved but produce no audible gap.
type SilenceMarker struct {
	DurationMillis int
	AfterSegment   int
}

type parser struct {
	input    string
	pos      int
	alpha    float64
	segments []Segment
	markers  []SilenceMarker
	// start of the pending text run
	runStart int
}

// Parse tokenizes raw request text into ordered segments and silence markers.
// defaultAlpha is the speed factor in effect before the first alpha directive;
// callers pass 1.0 unless the request overrides it.
func Parse(input string, defaultAlpha float64) ([]Segment, []SilenceMarker, error) {
	p := &parser{
		input:    input,
		pos:      0,
		alpha:    defaultAlpha,
		segments: nil,
		markers:  nil,
		runStart: 0,
	}

	err := p.run()
	if err != nil {
		return nil, nil, err
	}

	return p.segments, p.markers, nil
}

func (p *parser) run() error {
	for p.pos < len(p.input) {
		if p.input[p.pos] != '<' {
			p.pos++

			continue
		}

		p.flushRun()

		err := p.parseDirective()
		if err != nil {
			return err
		}

		p.runStart = p.pos
	}

	p.flushRun()

	return nil
}

// flushRun closes the pending text run as a segment. Runs left empty by
// adjacent directives produce no segment; the chunker would yield zero chunks
// for them anyway.
func (p *parser) flushRun() {
	if p.pos == p.runStart {
		return
	}

	p.segments = append(p.segments, Segment{
		Text:  p.input[p.runStart:p.pos],
		Alpha: p.alpha,
		Order: len(p.segments),
	})
}

// parseDirective consumes one <name=value> token starting at the current '<'.
func (p *parser) parseDirective() error {
	start := p.pos
	p.pos++ // consume '<'

	name, err := p.scanTagName(start)
	if err != nil {
		return err
	}

	value, err := p.scanTagValue(start)
	if err != nil {
		return err
	}

	token := p.input[start:p.pos]

	switch name {
	case tagAlpha:
		return p.applyAlpha(token, start, value)
	case tagSilence:
		return p.applySilence(token, start, value)
	default:
		return &core.MarkupError{
			Token:  token,
			Offset: start,
			Reason: "unknown directive " + strconv.Quote(name),
		}
	}
}

// scanTagName reads up to the '=' separator.
func (p *parser) scanTagName(start int) (string, error) {
	nameStart := p.pos

	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '=' {
			name := p.input[nameStart:p.pos]
			p.pos++ // consume '='

			return name, nil
		}

		if !isTagNameByte(c) {
			return "", &core.MarkupError{
				Token:  p.input[start:p.pos],
				Offset: start,
				Reason: "directive name must be followed by '='",
			}
		}

		p.pos++
	}

	return "", p.unterminated(start)
}

// scanTagValue reads up to the closing '>'.
func (p *parser) scanTagValue(start int) (string, error) {
	valueStart := p.pos

	for p.pos < len(p.input) {
		if p.input[p.pos] == '>' {
			value := p.input[valueStart:p.pos]
			p.pos++ // consume '>'

			return value, nil
		}

		if p.input[p.pos] == '<' {
			return "", p.unterminated(start)
		}

		p.pos++
	}

	return "", p.unterminated(start)
}

func (p *parser) unterminated(start int) error {
	return &core.MarkupError{
		Token:  p.input[start:p.pos],
		Offset: start,
		Reason: "unterminated directive",
	}
}

// applyAlpha sets the active speed factor for all following text.
func (p *parser) applyAlpha(token string, offset int, value string) error {
	factor, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return &core.MarkupError{
			Token:  token,
			Offset: offset,
			Reason: "alpha value must be a positive number",
		}
	}

	p.alpha = factor

	return nil
}

// applySilence records a pause after the most recently emitted segment.
// Adjacent silence directives do not merge; each keeps its own marker.
func (p *parser) applySilence(token string, offset int, value string) error {
	millis, ok := parseSilenceDuration(value)
	if !ok {
		return &core.MarkupError{
			Token:  token,
			Offset: offset,
			Reason: "silence duration must be a finite <N>ms or <N.N>s value of at most 60s",
		}
	}

	p.markers = append(p.markers, SilenceMarker{
		DurationMillis: millis,
		AfterSegment:   len(p.segments) - 1,
	})

	return nil
}

// parseSilenceDuration normalizes "500ms" or "0.5s" forms to integer
// milliseconds. Seconds values are rounded to the nearest millisecond.
func parseSilenceDuration(value string) (int, bool) {
	switch {
	case strings.HasSuffix(value, "ms"):
		digits := strings.TrimSuffix(value, "ms")

		millis, err := strconv.Atoi(digits)
		if err != nil || millis < 0 || millis > maxSilenceMillis ||
			strings.HasPrefix(digits, "+") {
			return 0, false
		}

		return millis, true
	case strings.HasSuffix(value, "s"):
		digits := strings.TrimSuffix(value, "s")

		seconds, err := strconv.ParseFloat(digits, 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) ||
			seconds < 0 || strings.HasPrefix(digits, "+") {
			return 0, false
		}

		millis := int(math.Round(seconds * 1000))
		if millis > maxSilenceMillis {
			return 0, false
		}

		return millis, true
	default:
		return 0, false
	}
}

func isTagNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
