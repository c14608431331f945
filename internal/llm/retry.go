package llm

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var retryKeywords = []string{"429", "rate", "quota", "resource", "exhausted", "limit"}

// IsRetryable reports whether err signals rate, quota or resource
// exhaustion on the engine side.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, k := range retryKeywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}
