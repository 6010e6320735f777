package dispatch

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/retry"
)

// Classifier maps invocation errors to a Status
type Classifier struct {
	PermissionSignals []string
	NetworkSignals    []string
	permissionCodes   *regexp.Regexp
	networkCodes      *regexp.Regexp
}

// DefaultClassifier returns a classifier with the built-in signals
func DefaultClassifier() *Classifier {
	return &Classifier{
		PermissionSignals: []string{
			"permissiondenied",
			"permission denied",
			"permission_denied",
			"forbidden",
			"access denied",
			"unauthenticated",
			"iam_permission_denied",
		},
		NetworkSignals: []string{
			"broken pipe",
			"timed out",
			"deadline exceeded",
			"no such host",
			"unreachable",
			"unexpected eof",
			"transport is closing",
			"unavailable",
			"bad gateway",
		},
		permissionCodes: regexp.MustCompile(`\b(401|403)\b`),
		networkCodes:    regexp.MustCompile(`\b(429|502|503|504)\b`),
	}
}

// Classify returns the status for err and the signal that decided it
func (c *Classifier) Classify(err error) (Status, string) {
	if err == nil {
		return StatusOk, ""
	}

	// gRPC status codes are authoritative when present
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return StatusPermissionDenied, st.Code().String()
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return StatusNetworkError, st.Code().String()
		}
	}

	text := strings.ToLower(err.Error())
	if m := c.permissionCodes.FindString(text); m != "" {
		return StatusPermissionDenied, m
	}
	for _, signal := range c.PermissionSignals {
		if strings.Contains(text, signal) {
			return StatusPermissionDenied, signal
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return StatusNetworkError, "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return StatusNetworkError, "network error"
	}
	if errors.Is(err, net.ErrClosed) {
		return StatusNetworkError, "connection closed"
	}
	if retry.IsRetriableError(err) {
		return StatusNetworkError, firstMatch(text, retrySignals)
	}
	if m := c.networkCodes.FindString(text); m != "" {
		return StatusNetworkError, m
	}
	for _, signal := range c.NetworkSignals {
		if strings.Contains(text, signal) {
			return StatusNetworkError, signal
		}
	}
	if text == "eof" || strings.HasSuffix(text, ": eof") {
		return StatusNetworkError, "eof"
	}

	return StatusUnknown, ""
}

var retrySignals = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"network is unreachable",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"context deadline exceeded",
}

func firstMatch(text string, signals []string) string {
	for _, s := range signals {
		if strings.Contains(text, s) {
			return s
		}
	}
	return "transient failure"
}
