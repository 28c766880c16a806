package datalink

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Publisher forwards decoded text somewhere outside the process.
type Publisher interface {
	Publish(session string, payload []byte) error
}

// Sink collects what an RX session decodes. Bytes are copied to Output as
// they arrive, complete lines are kept in a bounded history and every batch
// goes to the Publisher.
type Sink struct {
	Output    io.Writer
	Publisher Publisher
	History   int

	mu        sync.Mutex
	session   string
	line      []byte
	lines     []string
	Bytes     int
	Lines     int
	Batches   int
	Failures  int
	LastBatch time.Time
}

func NewSink(output io.Writer, history int) *Sink {
	return &Sink{Output: output, History: max(1, history)}
}

// SetSession tags published batches with the RX session ID.
func (s *Sink) SetSession(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// Deliver takes one batch of decoded bytes; it does not keep b.
func (s *Sink) Deliver(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bytes += len(b)
	s.Batches++
	s.LastBatch = time.Now()
	batch := b

	if s.Output != nil {
		if _, err := s.Output.Write(b); err != nil {
			log.Warnf("Could not write decoded bytes: %v", err)
		}
	}
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			s.line = append(s.line, b...)
			break
		}
		s.line = append(s.line, b[:i]...)
		s.push()
		b = b[i+1:]
	}
	if s.Publisher != nil {
		if err := s.Publisher.Publish(s.session, batch); err != nil {
			s.Failures++
			log.Warnf("Could not publish decoded bytes: %v", err)
		}
	}
}

func (s *Sink) push() {
	s.lines = append(s.lines, string(bytes.TrimRight(s.line, "\r")))
	if over := len(s.lines) - s.History; over > 0 {
		s.lines = append(s.lines[:0], s.lines[over:]...)
	}
	s.line = s.line[:0]
	s.Lines++
}

// Flush ends the current line, if any.
func (s *Sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.line) > 0 {
		s.push()
	}
}

// Recent returns the kept lines followed by the line still being received.
func (s *Sink) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.lines...)
	if len(s.line) > 0 {
		out = append(out, string(s.line))
	}
	return out
}

// Counters returns the byte, line and batch counts.
func (s *Sink) Counters() (n, lines, batches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Bytes, s.Lines, s.Batches
}
