package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a whole request including the body read.
const DefaultTimeout = 5 * time.Minute

const UserAgent = "weatherlog/1.0"

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
