package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/orderbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// failure is what the retry loop needs to know about one failed call.
type failure struct {
	kind      string
	retryable bool
}

func describe(err error) failure {
	switch {
	case err == nil:
		return failure{}
	case errors.Is(err, context.Canceled):
		return failure{kind: "cancelled"}
	case errors.Is(err, errAttemptTimeout), errors.Is(err, context.DeadlineExceeded):
		return failure{kind: "timeout", retryable: true}
	}

	if status := apiStatus(err); status >= http.StatusBadRequest {
		f := failure{kind: "http_4xx"}
		switch {
		case status == http.StatusTooManyRequests:
			f.kind, f.retryable = "flood", true
		case status >= http.StatusInternalServerError:
			f.kind, f.retryable = "http_5xx", true
		}
		return f
	}
	return failure{kind: networkKind(err), retryable: netutil.ShouldRetry(err)}
}

// Classify reports whether err is worth retrying together with a short
// error kind for logs and metrics.
func Classify(err error) (retryable bool, kind string) {
	f := describe(err)
	return f.retryable, f.kind
}

// isPermanent is true for errors that no amount of retrying will fix.
func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	f := describe(err)
	return !f.retryable && f.kind != "cancelled"
}

func floodWait(err error) time.Duration {
	var flood tele.FloodError
	if !errors.As(err, &flood) || flood.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(flood.RetryAfter) * time.Second
}

// networkKind names transport failures. errors.As already walks through
// *url.Error wrappers.
func networkKind(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return "dial"
		case "read", "write":
			return "io"
		}
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return "tls"
	}
	return "unknown"
}

// apiStatus extracts the Bot API status code. telebot folds unknown API
// errors into messages ending in "(code)".
func apiStatus(err error) int {
	var (
		flood  tele.FloodError
		group  tele.GroupError
		apiErr *tele.Error
	)
	switch {
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return apiErr.Code
	}

	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}
