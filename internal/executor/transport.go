package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/types"
)

// DefaultTimeout is the per-request timeout when none is configured
const DefaultTimeout = 30 * time.Second

// Transport sends a compiled request and returns the raw response record.
// Implementations must be safe for concurrent use.
type Transport interface {
	Do(ctx context.Context, req *compiler.CompiledRequest) (*types.ResponseRecord, error)
}

// TransportOptions configures the shared HTTP client
type TransportOptions struct {
	Timeout time.Duration
	TLS     *types.TLSConfig
	// MaxConnsPerHost bounds open sockets per host; 0 means unlimited
	MaxConnsPerHost int
}

// HTTPTransport sends requests over one pooled net/http client
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with optional TLS/mTLS configuration
func NewHTTPTransport(opts TransportOptions) (*HTTPTransport, error) {
	client, err := NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{client: client}, nil
}

// NewHTTPClient creates an HTTP client tuned for many concurrent requests to the same host
func NewHTTPClient(opts TransportOptions) (*http.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        0,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	if opts.TLS != nil {
		tlsCfg, err := BuildTLSConfig(opts.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}, nil
}

// Client returns the underlying client, shared with file and script helpers
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Do performs the exchange. Failures are returned as *TransportError.
func (t *HTTPTransport) Do(ctx context.Context, req *compiler.CompiledRequest) (*types.ResponseRecord, error) {
	httpReq, err := req.NewHTTPRequest(ctx)
	if err != nil {
		return nil, &TransportError{Category: CategoryProtocol, Err: err}
	}

	startTime := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, NewTransportError(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	duration := time.Since(startTime)
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("failed to read response body: %w", err))
	}

	return &types.ResponseRecord{
		Status:       resp.StatusCode,
		StatusText:   strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
		Proto:        resp.Proto,
		Headers:      types.HeaderPairs(resp.Header),
		Body:         bodyBytes,
		Duration:     duration,
		RequestSize:  req.Size(),
		ResponseSize: int64(len(bodyBytes)),
	}, nil
}

// BuildTLSConfig creates a TLS configuration with optional client certificate and CA
func BuildTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
	}

	// Load client certificate if provided (for mTLS)
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	// Load CA certificate if provided (for server verification)
	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	return config, nil
}

// FormatDuration formats a duration as milliseconds or seconds
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// FormatSize formats byte size to human-readable string
func FormatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.2fKB", float64(bytes)/1024.0)
	}
	return fmt.Sprintf("%.2fMB", float64(bytes)/(1024.0*1024.0))
}
