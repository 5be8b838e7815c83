package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for calls to sibling services (accounts
// sync). Syncs are small JSON payloads, so the timeout is short.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
