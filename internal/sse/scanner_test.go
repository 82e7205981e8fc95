package sse

import (
	"strings"
	"testing"
)

func TestScannerParsesEvents(t *testing.T) {
	input := "event: message_start\ndata: {\"a\":1}\n\n" +
		"data: {\"b\":2}\n\n" +
		": a comment line\n\n" +
		"data: [DONE]\n\n"

	sc := NewScanner(strings.NewReader(input))

	if !sc.Next() {
		t.Fatal("expected first event")
	}
	ev := sc.Event()
	if ev.Name != "message_start" {
		t.Errorf("expected event name message_start, got %q", ev.Name)
	}
	if string(ev.Data) != `{"a":1}` {
		t.Errorf("unexpected data %q", ev.Data)
	}

	if !sc.Next() {
		t.Fatal("expected second event")
	}
	ev = sc.Event()
	if ev.Name != "" {
		t.Errorf("expected no event name, got %q", ev.Name)
	}
	if string(ev.Data) != `{"b":2}` {
		t.Errorf("unexpected data %q", ev.Data)
	}

	if !sc.Next() {
		t.Fatal("expected sentinel event")
	}
	if !IsDone(sc.Event().Data) {
		t.Errorf("expected [DONE], got %q", sc.Event().Data)
	}

	if sc.Next() {
		t.Error("expected end of stream")
	}
	if err := sc.Err(); err != nil {
		t.Errorf("unexpected scanner error: %v", err)
	}
}

func TestScannerAcceptsCompactFields(t *testing.T) {
	input := "event:delta\ndata:{\"a\":1}\n\n"

	sc := NewScanner(strings.NewReader(input))
	if !sc.Next() {
		t.Fatal("expected an event")
	}
	ev := sc.Event()
	if ev.Name != "delta" {
		t.Errorf("expected event name delta, got %q", ev.Name)
	}
	if string(ev.Data) != `{"a":1}` {
		t.Errorf("unexpected data %q", ev.Data)
	}
}

func TestScannerCoalescesMultiLineData(t *testing.T) {
	input := "data: first\ndata: second\n\ndata: next\n\n"

	sc := NewScanner(strings.NewReader(input))
	if !sc.Next() {
		t.Fatal("expected first event")
	}
	if string(sc.Event().Data) != "first\nsecond" {
		t.Errorf("data lines must join with a newline, got %q", sc.Event().Data)
	}

	if !sc.Next() {
		t.Fatal("expected second event")
	}
	if string(sc.Event().Data) != "next" {
		t.Errorf("unexpected data %q", sc.Event().Data)
	}
}

func TestScannerFlushesFinalEventAtEOF(t *testing.T) {
	sc := NewScanner(strings.NewReader("data: tail"))
	if !sc.Next() {
		t.Fatal("expected the unterminated final event")
	}
	if string(sc.Event().Data) != "tail" {
		t.Errorf("unexpected data %q", sc.Event().Data)
	}
	if sc.Next() {
		t.Error("expected end of stream")
	}
}

func TestScannerSkipsBlankStream(t *testing.T) {
	sc := NewScanner(strings.NewReader("\n\n\n"))
	if sc.Next() {
		t.Error("expected no events in blank stream")
	}
}
