package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Category groups transport failures by what went wrong
type Category int

const (
	CategoryOther Category = iota
	CategoryConnect
	CategoryTLS
	CategoryTimeout
	CategoryProtocol
	CategoryCancelled
)

func (c Category) String() string {
	switch c {
	case CategoryConnect:
		return "connect"
	case CategoryTLS:
		return "tls"
	case CategoryTimeout:
		return "timeout"
	case CategoryProtocol:
		return "protocol"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// TransportError is a failed exchange. It is recorded as a failed outcome
// and never retried.
type TransportError struct {
	Category Category
	Err      error
}

// NewTransportError classifies err
func NewTransportError(err error) *TransportError {
	return &TransportError{Category: Classify(err), Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Category, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Explain returns an actionable message for the user
func (e *TransportError) Explain() string {
	return Explain(e.Err)
}

// Classify maps an error from net/http or the WebSocket dialer to a Category
func Classify(err error) Category {
	if err == nil {
		return CategoryOther
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
		recordErr        tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) {
		return CategoryTLS
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || (errors.As(err, &opErr) && opErr.Op == "dial") {
		return CategoryConnect
	}

	return classifyString(err.Error())
}

func classifyString(errStr string) Category {
	errLower := strings.ToLower(errStr)
	switch {
	case strings.Contains(errLower, "context canceled"):
		return CategoryCancelled
	case strings.Contains(errLower, "deadline exceeded"),
		strings.Contains(errLower, "timeout"),
		strings.Contains(errLower, "timed out"):
		return CategoryTimeout
	case strings.Contains(errLower, "tls"),
		strings.Contains(errLower, "x509"),
		strings.Contains(errLower, "certificate"):
		return CategoryTLS
	case strings.Contains(errLower, "connection refused"),
		strings.Contains(errLower, "no such host"),
		strings.Contains(errLower, "network is unreachable"),
		strings.Contains(errLower, "no route to host"),
		strings.Contains(errLower, "proxy"):
		return CategoryConnect
	case strings.Contains(errLower, "malformed http"),
		strings.Contains(errLower, "eof"),
		strings.Contains(errLower, "connection reset"),
		strings.Contains(errLower, "bad handshake"),
		strings.Contains(errLower, "redirect"):
		return CategoryProtocol
	}
	return CategoryOther
}

// Explain analyzes an error from a request and provides an actionable,
// user-friendly message based on the error type.
func Explain(err error) string {
	if err == nil {
		return ""
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "Request timeout - check URL and try increasing request_timeout (default: 30s)"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "Connection timeout - server took too long to respond, try increasing request_timeout"
		}
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			switch errno {
			case syscall.ECONNREFUSED:
				return "Connection refused - check if server is running and port is correct"
			case syscall.ECONNRESET:
				return "Connection reset by server - server may have crashed or network issue occurred"
			case syscall.ENETUNREACH:
				return "Network unreachable - check network connection and firewall settings"
			case syscall.EHOSTUNREACH:
				return "Host unreachable - check if server is online and accessible"
			}
		}
	}

	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return "TLS certificate signed by unknown authority - add a CA file or disable verification (insecure)"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout - check URL and try increasing request_timeout (default: 30s)"
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}

	return explainString(err.Error())
}

func explainString(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "context canceled"):
		return "Request cancelled"
	case strings.Contains(errLower, "deadline exceeded"):
		return "Request timeout - check URL and try increasing request_timeout (default: 30s)"
	// proxy errors often contain "connection refused" as well
	case strings.Contains(errLower, "proxy"):
		return "Proxy connection failed - verify HTTP_PROXY/HTTPS_PROXY settings"
	case strings.Contains(errLower, "no such host"), strings.Contains(errLower, "dial tcp: lookup"):
		return "DNS resolution failed - verify hostname is correct and network is available"
	case strings.Contains(errLower, "connection refused"):
		return "Connection refused - check if server is running and port is correct"
	case strings.Contains(errLower, "connection reset"):
		return "Connection reset by server - server may have crashed or network issue occurred"
	case strings.Contains(errLower, "network is unreachable"), strings.Contains(errLower, "no route to host"):
		return "Network unreachable - check network connection and firewall settings"
	case strings.Contains(errLower, "tls"), strings.Contains(errLower, "x509"), strings.Contains(errLower, "certificate"):
		return explainTLS(errStr)
	case strings.Contains(errLower, "stopped after") && strings.Contains(errLower, "redirect"):
		return "Too many redirects - check server configuration or URL"
	case strings.Contains(errLower, "unsupported protocol"):
		return "Invalid URL - verify the URL format and protocol (http/https)"
	case strings.Contains(errLower, "eof"):
		return "Connection closed unexpectedly - server may have terminated the connection prematurely"
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "timed out"):
		return "Connection timeout - server took too long to respond, try increasing request_timeout"
	case strings.Contains(errLower, "malformed http"):
		return "Malformed HTTP response - check the server speaks HTTP on this port"
	}
	return "Request failed: " + errStr
}

// explainTLS provides specific guidance for TLS certificate errors
func explainTLS(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "unknown authority"), strings.Contains(errLower, "not trusted"):
		return "TLS certificate verification failed - certificate is not trusted. Add a CA file or disable verification (insecure)"
	case strings.Contains(errLower, "expired"):
		return "TLS certificate has expired - contact server administrator or disable verification (insecure)"
	case strings.Contains(errLower, "is valid for"), strings.Contains(errLower, "doesn't match"):
		return "TLS hostname mismatch - certificate doesn't match the requested hostname"
	case strings.Contains(errLower, "handshake"):
		return "TLS handshake failed - check TLS version compatibility and cipher suites"
	case strings.Contains(errLower, "bad certificate"):
		return "TLS bad certificate - client certificate may be invalid or not accepted by server"
	case strings.Contains(errLower, "certificate required"):
		return "TLS client certificate required - configure certFile and keyFile on the template"
	}
	return "TLS error - check certificate configuration and TLS settings: " + errStr
}
