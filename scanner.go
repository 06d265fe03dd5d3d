package pemfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

var (
	beginPrefix = []byte("-----BEGIN ")
	endPrefix   = []byte("-----END ")
	dashes      = []byte("-----")
	procType    = []byte("Proc-Type:")
)

// DefaultMaxSectionSize bounds the base64 body of a single section unless
// Options says otherwise.
const DefaultMaxSectionSize = 16 << 20

// Room on top of the section bound for a line carrying markers or
// whitespace.
const lineSlack = 4096

// State is the position of a Scanner in its state machine.
type State int

const (
	// StateScanning looks for the next BEGIN marker.
	StateScanning State = iota
	// StateInSection accumulates body lines until the matching END marker.
	StateInSection
	// StateDone means the stream is exhausted; Next returns io.EOF.
	StateDone
	// StateErrored holds the last error. Strict scanners stay here.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateInSection:
		return "in-section"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Policy decides what a Scanner does after a section error.
type Policy int

const (
	// Strict makes the first error final: every later Next returns it.
	Strict Policy = iota
	// Lenient reports each section error once and resumes at the next
	// BEGIN marker on the following call.
	Lenient
)

func (p Policy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParsePolicy converts "strict" or "lenient" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "strict", "":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown policy %q (use strict or lenient)", s)
	}
}

// Options configures a Scanner.
type Options struct {
	Policy Policy
	// MaxSectionSize bounds the whitespace-stripped base64 body of one
	// section. Zero means DefaultMaxSectionSize.
	MaxSectionSize int
	// Buffer, when non-nil, is used for section bodies instead of a
	// scanner-allocated one. Its capacity is reused across sections, so a
	// buffer of MaxSectionSize capacity means the scanner never grows it.
	Buffer []byte
}

// DefaultOptions returns strict scanning with the default size bound.
func DefaultOptions() Options {
	return Options{Policy: Strict, MaxSectionSize: DefaultMaxSectionSize}
}

func (o Options) maxSectionSize() int {
	if o.MaxSectionSize <= 0 {
		return DefaultMaxSectionSize
	}
	return o.MaxSectionSize
}

// lineSource yields lines without their terminators.
type lineSource interface {
	next() ([]byte, bool)
	err() error
}

type readerLines struct {
	sc *bufio.Scanner
}

func (r *readerLines) next() ([]byte, bool) {
	if !r.sc.Scan() {
		return nil, false
	}
	return r.sc.Bytes(), true
}

func (r *readerLines) err() error { return r.sc.Err() }

type sliceLines struct {
	rest []byte
}

func (s *sliceLines) next() ([]byte, bool) {
	if len(s.rest) == 0 {
		return nil, false
	}
	advance, line, _ := splitLines(s.rest, true)
	s.rest = s.rest[advance:]
	return line, true
}

func (s *sliceLines) err() error { return nil }

// splitLines is a bufio.SplitFunc that ends lines at "\n", "\r\n" or a
// bare "\r".
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			switch {
			case i+1 < len(data) && data[i+1] == '\n':
				return i + 2, data[:i], nil
			case i+1 == len(data) && !atEOF:
				// a "\n" may follow in the next read
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Scanner pulls PEM sections out of a line stream one at a time. The zero
// value is not usable; construct with NewScanner, NewScannerOptions or
// NewBytesScanner. A Scanner is not safe for concurrent use.
type Scanner struct {
	src    lineSource
	policy Policy
	max    int

	state State
	err   error
	line  int

	label string
	end   []byte
	body  []byte

	// BEGIN line that interrupted an open section, re-read on resume.
	replay    []byte
	hasReplay bool
	fatal     bool
}

// NewScanner returns a strict Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return NewScannerOptions(r, DefaultOptions())
}

// NewScannerOptions returns a Scanner reading from r configured by opts.
func NewScannerOptions(r io.Reader, opts Options) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Split(splitLines)
	sc.Buffer(make([]byte, 0, 4096), opts.maxSectionSize()+lineSlack)
	return newScanner(&readerLines{sc: sc}, opts)
}

// NewBytesScanner returns a Scanner over data. Lines are sliced out of data
// directly, so no line buffer is allocated.
func NewBytesScanner(data []byte, opts Options) *Scanner {
	return newScanner(&sliceLines{rest: data}, opts)
}

func newScanner(src lineSource, opts Options) *Scanner {
	return &Scanner{
		src:    src,
		policy: opts.Policy,
		max:    opts.maxSectionSize(),
		body:   opts.Buffer[:0],
	}
}

// Buffer replaces the body buffer with buf and, if max is positive, the
// section size bound. A body already being accumulated is carried over.
// The line buffer of a reader-backed scanner only follows a new bound if
// Buffer is called before the first call to Next.
func (s *Scanner) Buffer(buf []byte, max int) {
	s.body = append(buf[:0], s.body...)
	if max > 0 {
		s.max = max
	}
	if r, ok := s.src.(*readerLines); ok && s.line == 0 {
		r.sc.Buffer(make([]byte, 0, 4096), s.max+lineSlack)
	}
}

// State returns the scanner's current state.
func (s *Scanner) State() State { return s.state }

// Line returns the number of lines consumed so far.
func (s *Scanner) Line() int { return s.line }

// Next advances to the next well-formed section and returns it. At the end
// of the stream it returns io.EOF. Section problems are returned as
// *SectionError values wrapping one of the package sentinel errors.
//
// The returned Item's Bytes alias the scanner's body buffer and are only
// valid until the next call to Next; use Item.Clone to keep them.
func (s *Scanner) Next() (Item, error) {
	switch s.state {
	case StateDone:
		return Item{}, io.EOF
	case StateErrored:
		if s.policy == Strict || s.fatal {
			return Item{}, s.err
		}
		s.state = StateScanning
		s.err = nil
	}

	for {
		line, ok := s.readLine()
		if !ok {
			return s.finish()
		}
		line = trimRight(line)

		if s.state == StateScanning {
			if !bytes.HasPrefix(line, beginPrefix) {
				continue
			}
			if err := s.open(line); err != nil {
				return Item{}, s.fail(err)
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, beginPrefix):
			s.replay = append(s.replay[:0], line...)
			s.hasReplay = true
			return Item{}, s.fail(&SectionError{Line: s.line, Label: s.label, Err: ErrUnterminatedSection})
		case bytes.HasPrefix(line, endPrefix):
			if !bytes.Equal(line, s.end) {
				return Item{}, s.fail(&SectionError{
					Line:     s.line,
					Label:    s.label,
					EndLabel: endLabel(line),
					Err:      ErrMismatchedEndLabel,
				})
			}
			return s.close()
		case bytes.HasPrefix(line, procType):
			return Item{}, s.fail(&SectionError{Line: s.line, Label: s.label, Err: ErrEncryptedSection})
		default:
			if err := s.appendBody(line); err != nil {
				return Item{}, s.fail(&SectionError{Line: s.line, Label: s.label, Err: err})
			}
		}
	}
}

func (s *Scanner) readLine() ([]byte, bool) {
	if s.hasReplay {
		s.hasReplay = false
		return s.replay, true
	}
	line, ok := s.src.next()
	if ok {
		s.line++
	}
	return line, ok
}

func (s *Scanner) open(line []byte) error {
	label, ok := parseBegin(line)
	if !ok {
		return &SectionError{Line: s.line, Err: ErrMalformedBeginMarker}
	}
	s.label = string(label)
	s.end = append(s.end[:0], endPrefix...)
	s.end = append(s.end, label...)
	s.end = append(s.end, dashes...)
	s.body = s.body[:0]
	s.state = StateInSection
	return nil
}

func (s *Scanner) appendBody(line []byte) error {
	for _, c := range line {
		switch c {
		case ' ', '\t', '\r', '\v', '\f':
			continue
		}
		if len(s.body) >= s.max {
			return ErrSectionTooLarge
		}
		s.body = append(s.body, c)
	}
	return nil
}

func (s *Scanner) close() (Item, error) {
	der, err := DecodeInPlace(s.body)
	if err != nil {
		return Item{}, s.fail(&SectionError{Line: s.line, Label: s.label, Err: err})
	}
	item := Item{Kind: Classify(s.label), Label: s.label, Bytes: der}
	s.label = ""
	s.state = StateScanning
	return item, nil
}

func (s *Scanner) finish() (Item, error) {
	if err := s.src.err(); err != nil {
		s.fatal = true
		return Item{}, s.fail(fmt.Errorf("reading line %d: %w", s.line+1, err))
	}
	if s.state == StateInSection {
		return Item{}, s.fail(&SectionError{Line: s.line, Label: s.label, Err: ErrUnterminatedSection})
	}
	s.state = StateDone
	return Item{}, io.EOF
}

func (s *Scanner) fail(err error) error {
	s.state = StateErrored
	s.err = err
	s.label = ""
	s.body = s.body[:0]
	return err
}

// parseBegin extracts the label from a trimmed "-----BEGIN <label>-----"
// line. The trailer must be exactly five dashes and the label non-empty.
func parseBegin(line []byte) ([]byte, bool) {
	rest := line[len(beginPrefix):]
	n := 0
	for n < len(rest) && rest[len(rest)-1-n] == '-' {
		n++
	}
	if n != len(dashes) || len(rest) == n {
		return nil, false
	}
	return rest[:len(rest)-n], true
}

func endLabel(line []byte) string {
	rest := line[len(endPrefix):]
	return string(bytes.TrimSuffix(rest, dashes))
}

func trimRight(line []byte) []byte {
	for len(line) > 0 {
		switch line[len(line)-1] {
		case ' ', '\t', '\r', '\n':
			line = line[:len(line)-1]
		default:
			return line
		}
	}
	return line
}
