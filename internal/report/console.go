package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var statusColors = map[OutcomeStatus]*color.Color{
	StatusSucceeded: color.New(color.FgGreen),
	StatusExhausted: color.New(color.FgYellow),
	StatusFatal:     color.New(color.FgRed),
	StatusSkipped:   color.New(color.FgHiBlack),
}

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	outcomes        []TargetOutcome // For JSON array output
	allowedStatuses map[string]bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			// Normalize to uppercase for case-insensitive comparison.
			// Status values are "SUCCEEDED", "EXHAUSTED", "FATAL", "SKIPPED".
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	// Apply filtering if configured
	if len(s.allowedStatuses) > 0 {
		if o, ok := v.(TargetOutcome); ok {
			if !s.allowedStatuses[string(o.Status)] {
				return nil
			}
		}
	}

	switch s.format {
	case "json":
		o, ok := v.(TargetOutcome)
		if !ok {
			// Ignore non-outcome events in JSON console mode.
			return nil
		}
		s.outcomes = append(s.outcomes, o)
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case TargetOutcome:
			e := eventFromOutcome(t)
			if err := encoder.Encode(e); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	case "text":
		o, ok := v.(TargetOutcome)
		if !ok {
			// Ignore events in text mode.
			return nil
		}
		label := string(o.Status)
		if c, ok := statusColors[o.Status]; ok {
			label = c.Sprint(label)
		}
		line := fmt.Sprintf("[%s] %s (attempts: %d)", label, o.Target(), o.Attempts)
		if o.LastError != "" {
			line += " - " + o.LastError
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.outcomes); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
