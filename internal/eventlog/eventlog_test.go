package eventlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSlogSink_DropsInfoByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sink := NewSlogSink(logger, false)
	sink.Log("pass started", Info)
	sink.Log("central path not accessible", Warning)

	out := buf.String()
	if strings.Contains(out, "pass started") {
		t.Errorf("info event should be dropped, got %q", out)
	}
	if !strings.Contains(out, "central path not accessible") || !strings.Contains(out, "level=WARN") {
		t.Errorf("warning event missing from output: %q", out)
	}
}

func TestSlogSink_LogInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sink := NewSlogSink(logger, true)
	sink.Log("pass started", Info)
	sink.Log("pass failed", Error)

	out := buf.String()
	if !strings.Contains(out, "pass started") {
		t.Errorf("info event missing: %q", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("error level missing: %q", out)
	}
}

type panicHandler struct{ slog.Handler }

func (panicHandler) Handle(context.Context, slog.Record) error { panic("boom") }

func TestSlogSink_NeverPanics(t *testing.T) {
	logger := slog.New(panicHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)})
	sink := NewSlogSink(logger, true)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("sink panicked: %v", r)
		}
	}()
	sink.Log("anything", Error)
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Log("copy skipped", Warning)
		}()
	}
	wg.Wait()

	if got := r.Count(Warning); got != 50 {
		t.Errorf("Count(Warning) = %d, want 50", got)
	}
	if !r.Contains(Warning, "skipped") {
		t.Error("Contains should find the recorded warning")
	}
	if r.Contains(Error, "skipped") {
		t.Error("Contains should respect severity")
	}
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Multi{a, nil, b, Discard}.Log("hello", Info)

	if len(a.Entries()) != 1 || len(b.Entries()) != 1 {
		t.Errorf("expected each recorder to get one entry, got %d and %d", len(a.Entries()), len(b.Entries()))
	}
}

func TestParseSeverity(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{in: "info", want: Info},
		{in: "Information", want: Info},
		{in: "WARN", want: Warning},
		{in: "warning", want: Warning},
		{in: "error", want: Error},
		{in: "fatal", wantErr: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSeverity(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
