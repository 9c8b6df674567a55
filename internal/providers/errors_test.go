package providers

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota: you exceeded your current quota": ErrorQuota,
		"billing hard limit reached":                          ErrorQuota,
		"429 too many requests":                               ErrorRate,
		"rate_limit_exceeded on tokens per minute":            ErrorRate,
		"context_length_exceeded, reduce the length":          ErrorContext,
		"prompt too long for model":                           ErrorContext,
		"dial tcp: i/o timeout":                               ErrorTransient,
		"503 service unavailable":                             ErrorTransient,
		"invalid api key":                                     ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
	if got := ClassifyError(nil); got != "" {
		t.Fatalf("nil error should classify empty, got %s", got)
	}
}

func TestClassifyErrorWrappedMessages(t *testing.T) {
	// The word "generate" in our own wrapping must not read as a rate error,
	// and a cancelled deadline is a transient failure, not a prompt-size one.
	wrapped := fmt.Errorf("groq generate error 500: %s", "internal server error")
	if got := ClassifyError(wrapped); got != ErrorPermanent {
		t.Fatalf("wrapped 500 should be permanent, got %s", got)
	}
	ctxErr := errors.New("groq generate request failed: context deadline exceeded")
	if got := ClassifyError(ctxErr); got != ErrorTransient {
		t.Fatalf("deadline should be transient, got %s", got)
	}
}
