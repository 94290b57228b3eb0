package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	maxURLLength     = 4096
	maxContentLength = 32 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// Validate checks that a record has an absolute http(s) URL and non-empty
// content. Failures are routine skips, not build errors.
func Validate(rec Record) error {
	errs := make(map[string]string)

	rawURL := strings.TrimSpace(rec.URL)
	if rawURL == "" {
		errs["url"] = "url is required"
	} else if len(rawURL) > maxURLLength {
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	} else if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs["url"] = "url must be an absolute http(s) url"
	}
	if len(strings.TrimSpace(string(rec.Content))) == 0 {
		errs["content"] = "content is required and must not be empty"
	} else if len(rec.Content) > maxContentLength {
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
