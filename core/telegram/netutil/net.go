// Package netutil classifies transport errors from calls to the Telegram API.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"
)

// Kind names the class of a network failure for logs and retry decisions.
type Kind string

const (
	KindNone    Kind = ""
	KindTimeout Kind = "timeout"
	KindDNS     Kind = "dns"
	KindDial    Kind = "dial"
	KindReset   Kind = "reset"
	KindTLS     Kind = "tls"
	KindOther   Kind = "unknown"
)

// Classify reports which kind of network failure err wraps. HTTP level
// failures are not network failures and come back as KindOther.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindReset
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return KindTLS
	}
	return KindOther
}

// ShouldRetry reports whether a request that failed with err is worth
// sending again: timeouts, failed dials and errors flagged temporary.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindDial:
		return true
	case KindNone:
		return false
	}
	var temp interface{ Temporary() bool }
	return errors.As(err, &temp) && temp.Temporary()
}
