package fault

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrCapture       = errors.New("capture error")
	ErrPrecondition  = errors.New("pipeline precondition failed")
	ErrExternalTool  = errors.New("external tool error")
)

// DiagnosticLimit bounds how much external tool output is carried in an error.
const DiagnosticLimit = 2048

// Wrap builds an error tagged with marker so callers can classify it with
// errors.Is. op names the component, message adds detail.
func Wrap(marker error, op, message string, err error) error {
	detail := buildDetail(op, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Truncate trims s to at most limit bytes, marking the cut. The cut never
// splits a UTF-8 sequence.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

func buildDetail(op, message string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
