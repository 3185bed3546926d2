package client

import (
	"net/http"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

type ApiConnectionDetails struct {
	JobStateUrl string
	Timeout     time.Duration
	// Requests that fail to reach the server, or get 503 back, are retried this many times.
	// Only reads and idempotent writes are retried.
	RetryAttempts uint
}

type ConnectionDetails func() *ApiConnectionDetails

// CreateApiConnection returns a client for the server at config.JobStateUrl.
// A url without a scheme is taken to be plain http.
func CreateApiConnection(config *ApiConnectionDetails) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := config.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &Client{
		baseUrl:  baseUrl(config.JobStateUrl),
		http:     &http.Client{Timeout: timeout},
		attempts: attempts,
	}
}

func baseUrl(url string) string {
	url = strings.TrimRight(url, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	return url + "/api/v1"
}
