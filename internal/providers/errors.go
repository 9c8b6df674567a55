package providers

import "strings"

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// classRules maps substrings of provider error bodies to failure classes.
// The markers follow what Groq and OpenAI actually put on the wire. Order
// matters: quota errors often mention rate limits too, and Go's own
// "context deadline exceeded" must land in transient before the prompt-size
// markers are consulted.
var classRules = []struct {
	class   ErrorType
	markers []string
}{
	{ErrorQuota, []string{"insufficient_quota", "quota", "billing", "credit"}},
	{ErrorRate, []string{"rate_limit", "rate limit", "too many requests", "429"}},
	{ErrorTransient, []string{"timeout", "timed out", "deadline", "temporarily", "unavailable", "connection refused", "connection reset", "502", "503", "504"}},
	{ErrorContext, []string{"context_length", "context length", "maximum context", "too long", "reduce the length"}},
}

// ClassifyError buckets a provider error so the workflow retry logic can
// decide between cooling a key down, failing over, and giving up.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	for _, rule := range classRules {
		for _, m := range rule.markers {
			if strings.Contains(e, m) {
				return rule.class
			}
		}
	}
	return ErrorPermanent
}
