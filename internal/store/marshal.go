package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/epsync/internal/ledger"
)

// marshalJSON encodes v with HTML escaping disabled so stored text matches
// what the CLI prints.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalSummary(s ledger.Summary) (string, error) {
	data, err := marshalJSON(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return data, nil
}

func unmarshalSummary(data string) (*ledger.Summary, error) {
	if data == "" {
		return nil, nil
	}
	var s ledger.Summary
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

func marshalDetails(d map[string]string) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	data, err := marshalJSON(d)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return data, nil
}

func unmarshalDetails(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var d map[string]string
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
