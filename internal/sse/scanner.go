// Package sse provides minimal server-sent-events plumbing: a pull-based
// scanner over an upstream response body and a writer for the client-facing
// event stream. Keeping both pull-based means a slow client naturally
// throttles upstream reads.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one server-sent event. Name is the value of the preceding
// `event:` line, empty when the upstream only sends `data:` lines.
type Event struct {
	Name string
	Data []byte
}

// Scanner reads SSE events from an upstream body one at a time. The next
// upstream read happens only when Next is called, so consumption is paced
// by the caller.
type Scanner struct {
	sc      *bufio.Scanner
	current Event
	err     error
}

// NewScanner creates a scanner over the upstream body.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	// Tool-call argument payloads can be large.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	return &Scanner{sc: sc}
}

// Next advances to the next event. It returns false at end of stream or on
// a read error; check Err afterwards.
//
// The space after the field colon is optional, and consecutive data lines
// are joined with a newline before the event is dispatched on the blank
// separator line.
func (s *Scanner) Next() bool {
	var eventName string
	var data []byte
	haveData := false

	for s.sc.Scan() {
		line := s.sc.Text()
		if line == "" {
			if haveData {
				s.current = Event{Name: eventName, Data: data}
				return true
			}
			eventName = ""
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventName = value
		case "data":
			if haveData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			haveData = true
		}
	}

	// Streams that end without a trailing blank line still deliver the
	// final event.
	if haveData && s.sc.Err() == nil {
		s.current = Event{Name: eventName, Data: data}
		return true
	}

	s.err = s.sc.Err()
	return false
}

// Event returns the current event. Valid until the next call to Next.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first read error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

// doneMarker is the terminal sentinel payload of the client protocol.
var doneMarker = []byte("[DONE]")

// IsDone reports whether a data payload is the terminal sentinel.
func IsDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), doneMarker)
}
