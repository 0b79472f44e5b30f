package chain

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Sentinel errors surfaced to callers. Underpriced and already-known
// rejections are handled inside the client and never escape.
var (
	// ErrNodeUnreachable means the BFA node could not be contacted or
	// did not answer in time.
	ErrNodeUnreachable = errors.New("chain: bfa node unreachable")

	// ErrTxNotFound means the node has no transaction for the given
	// reference.
	ErrTxNotFound = errors.New("chain: transaction not found")

	// ErrSubmitFailed means the node rejected the transaction and the
	// rejection was not recoverable, or fee-bump retries ran out.
	ErrSubmitFailed = errors.New("chain: transaction submission failed")
)

// sendErrorKind classifies a SendTransaction rejection.
type sendErrorKind int

const (
	sendErrorFatal sendErrorKind = iota
	sendErrorUnderpriced
	sendErrorAlreadyKnown
	sendErrorUnreachable
)

// Geth-family nodes report these rejections as error strings, not
// typed errors, so classification is textual. The BFA runs a geth fork.
var underpricedMarkers = []string{
	"underpriced",
	"transaction underpriced",
	"replacement transaction underpriced",
}

var alreadyKnownMarkers = []string{
	"already known",
	"alreadyknown",
	"known transaction",
}

func classifySendError(err error) sendErrorKind {
	if err == nil {
		return sendErrorFatal
	}
	if isUnreachable(err) {
		return sendErrorUnreachable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range alreadyKnownMarkers {
		if strings.Contains(msg, marker) {
			return sendErrorAlreadyKnown
		}
	}
	for _, marker := range underpricedMarkers {
		if strings.Contains(msg, marker) {
			return sendErrorUnderpriced
		}
	}
	return sendErrorFatal
}

// isUnreachable reports whether err means the node could not be
// reached, as opposed to the node rejecting the request.
func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof")
}
