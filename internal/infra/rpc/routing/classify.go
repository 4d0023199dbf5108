// Package routing decides how RPC failures are handled.
//
// This package contains:
//   - Classify: maps a provider error to an ErrorKind
//   - Backoff: jittered exponential delays between retries
//   - Fallback: runs an attempt against endpoints in order
package routing

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind determines how the fetch loop recovers from an error.
type ErrorKind int

const (
	// KindTransient covers timeouts, resets and anything unrecognised.
	KindTransient ErrorKind = iota
	// KindRangeTooLarge means the provider refused the block range.
	KindRangeTooLarge
	// KindRateLimited means the provider is throttling this client.
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindRangeTooLarge:
		return "range_too_large"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Classifier maps an error to its recovery class.
type Classifier func(err error) ErrorKind

var rangePhrases = []string{
	"block range",
	"range too large",
	"max range",
	"query returned more than",
	"log response size exceeded",
}

var ratePhrases = []string{
	"429",
	"rate limit",
	"too many request",
	"throttl",
	"backoff",
	"capacity",
	"request limit",
	"quota",
	"blocked (403)",
}

// Classify is the default Classifier. It matches the text of the
// innermost error, as reported by the endpoint, against the phrases used
// by the major public RPC providers. Context added by callers while
// wrapping (method names, block bounds) is never matched.
func Classify(err error) ErrorKind {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(rootCause(err).Error())

	if containsAny(msg, rangePhrases) ||
		(strings.Contains(msg, "exceed") && strings.Contains(msg, "block")) ||
		(strings.Contains(msg, "eth_getlogs") && strings.Contains(msg, "limit")) {
		return KindRangeTooLarge
	}

	if containsAny(msg, ratePhrases) {
		return KindRateLimited
	}

	return KindTransient
}

// WithPhrases extends base so that errors containing any of the extra
// phrases map to kind. Matching is case-insensitive.
func WithPhrases(base Classifier, kind ErrorKind, phrases ...string) Classifier {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return func(err error) ErrorKind {
		if err != nil && containsAny(strings.ToLower(err.Error()), lowered) {
			return kind
		}
		return base(err)
	}
}

// rootCause follows single-error wrapping down to the innermost error.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
