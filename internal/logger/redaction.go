package logger

import (
	"io"
	"regexp"
	"sync"
)

// Redactor redacts sensitive information from logs
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
}

// minSecretLen keeps short values like "1" or "us" from being redacted
// everywhere
const minSecretLen = 6

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Credential variables such as ACME_TOKEN=... or GITHUB_API_KEY: ...
			regexp.MustCompile(`[A-Z][A-Z0-9_]*_(?:TOKEN|API_KEY|SECRET|PASSWORD)["\s:=]+[^\s"]+`),

			// Passwords
			regexp.MustCompile(`(?i)password["\s:=]+[^\s",}]+`),

			// Auth tokens
			regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`),

			// AWS keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

			// Generic secrets
			regexp.MustCompile(`(?i)secret["\s:=]+[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, re)
	r.mu.Unlock()
	return nil
}

// AddValue redacts a literal value wherever it appears
func (r *Redactor) AddValue(value string) {
	if len(value) < minSecretLen {
		return
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, regexp.MustCompile(regexp.QuoteMeta(value)))
	r.mu.Unlock()
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat the shorter
// redacted write as a short write
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
