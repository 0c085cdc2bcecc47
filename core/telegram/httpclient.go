package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/orderbot/core/telegram/netutil"
)

const (
	defaultClientTimeout = 30 * time.Second
	defaultDialTimeout   = 5 * time.Second
	dialRetries          = 2
	dialRetryBackoff     = 500 * time.Millisecond
)

// BuildHTTPClient returns the client used for Bot API calls. timeout bounds
// one call; zero selects defaultClientTimeout.
func BuildHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   defaultDialTimeout,
				ResponseHeaderTimeout: 10 * time.Second,
			},
			maxRetries: dialRetries,
			backoff:    dialRetryBackoff,
		},
	}
}

// retryTransport repeats a request only when it failed before a connection
// existed. Anything that may have reached Telegram is returned as is, so a
// message is never sent twice from here.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 1; attempt <= t.maxRetries && err != nil && netutil.IsDialError(err); attempt++ {
		if !t.wait(req, attempt) {
			return nil, req.Context().Err()
		}
		retry, ok := rewind(req)
		if !ok {
			break
		}
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}

// wait sleeps for the linear backoff of attempt. It is false when the
// request context ended first.
func (t *retryTransport) wait(req *http.Request, attempt int) bool {
	delay := t.backoff * time.Duration(attempt)
	if delay <= 0 {
		return req.Context().Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}

// rewind clones req with a fresh body. Requests whose body cannot be
// replayed are not retried.
func rewind(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}
