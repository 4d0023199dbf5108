package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorKind
	}{
		{errors.New("rpc error -32000: block range is too wide"), KindRangeTooLarge},
		{errors.New("Range too large, max 2000"), KindRangeTooLarge},
		{errors.New("exceed maximum block range: 10000"), KindRangeTooLarge},
		{errors.New("max range: 5000"), KindRangeTooLarge},
		{errors.New("query returned more than 10000 results"), KindRangeTooLarge},
		{errors.New("Log response size exceeded"), KindRangeTooLarge},
		{errors.New("eth_getLogs is limited to a 1000 range"), KindRangeTooLarge},
		{errors.New("rate limited (429), retry after: 1"), KindRateLimited},
		{errors.New("project rate limit exceeded"), KindRateLimited},
		{errors.New("Too Many Requests"), KindRateLimited},
		{errors.New("request throttled"), KindRateLimited},
		{errors.New("please backoff"), KindRateLimited},
		{errors.New("over capacity"), KindRateLimited},
		{errors.New("rpc error -32005: daily request limit reached"), KindRateLimited},
		{errors.New("monthly quota exhausted"), KindRateLimited},
		{errors.New("ip blocked (403)"), KindRateLimited},
		{fmt.Errorf("eth_getLogs [100, 599]: %w", errors.New("rate limited (429), retry after: ")), KindRateLimited},
		{fmt.Errorf("eth_getLogs [100, 599]: %w", errors.New("rpc error -32005: request rate limit exceeded")), KindRateLimited},
		{fmt.Errorf("eth_getLogs [100, 599]: %w", errors.New("rpc error -32005: daily request limit reached")), KindRateLimited},
		{fmt.Errorf("eth_getLogs [14290000, 14290499]: %w", errors.New("rpc error -32000: block range too large")), KindRangeTooLarge},
		{fmt.Errorf("eth_getLogs [14290000, 14290499]: %w", errors.New("connection reset by peer")), KindTransient},
		{errors.New("connection reset by peer"), KindTransient},
		{errors.New("500 Internal Server Error"), KindTransient},
		{fmt.Errorf("eth_getLogs: %w", context.DeadlineExceeded), KindTransient},
		{nil, KindTransient},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expect {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestWithPhrases(t *testing.T) {
	c := WithPhrases(Classify, KindRangeTooLarge, "Result Window Is Too Large")

	if got := c(errors.New("result window is too large")); got != KindRangeTooLarge {
		t.Errorf("extra phrase: got %v", got)
	}
	if got := c(errors.New("429")); got != KindRateLimited {
		t.Errorf("base fallthrough: got %v", got)
	}
}
