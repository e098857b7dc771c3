// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdziat/simple-job-pool/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobNameLength is the maximum length in bytes for job names
	MaxJobNameLength = 255

	// MaxRetries is the hard limit for the per-job retry budget
	MaxRetries = 100

	// MaxConcurrency is the hard limit for worker concurrency
	MaxConcurrency = 1000

	// MaxFailureReasonLength is the maximum length for stored failure reasons
	MaxFailureReasonLength = 4096
)

// ValidateJobName validates a caller supplied job name. Names are opaque
// labels, so only emptiness, length, encoding and control characters are checked.
func ValidateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return core.ErrInvalidJobName
	}
	if len(name) > MaxJobNameLength {
		return core.ErrJobNameTooLong
	}
	if !utf8.ValidString(name) {
		return core.ErrInvalidJobName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return core.ErrInvalidJobName
		}
	}
	return nil
}

// SanitizeFailureReason truncates and strips control characters from a
// failure reason before it is stored on a job.
func SanitizeFailureReason(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxFailureReasonLength {
		runes := []rune(result)
		result = string(runes[:MaxFailureReasonLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures the retry budget is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
