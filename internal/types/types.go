package types

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Method is the request method of a template. WS marks a WebSocket template.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
	MethodWS      Method = "WS"
)

// Methods lists every supported method in display order
var Methods = []Method{
	MethodGet, MethodPost, MethodPut, MethodDelete, MethodHead,
	MethodOptions, MethodConnect, MethodTrace, MethodPatch, MethodWS,
}

// ParseMethod converts a case-insensitive method name into a Method
func ParseMethod(s string) (Method, error) {
	candidate := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range Methods {
		if m == candidate {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported method: %q", s)
}

// IsWebSocket returns true for the streaming WS method
func (m Method) IsWebSocket() bool {
	return m == MethodWS
}

// BodyTab selects how the request body is built
type BodyTab string

const (
	BodyTabRaw      BodyTab = "raw"
	BodyTabForm     BodyTab = "form"
	BodyTabFormData BodyTab = "form-data"
)

// RawBodyKind describes the content of a raw body
type RawBodyKind string

const (
	RawText       RawBodyKind = "text"
	RawJSON       RawBodyKind = "json"
	RawForm       RawBodyKind = "form"
	RawXML        RawBodyKind = "xml"
	RawBinaryFile RawBodyKind = "binary"
)

// DefaultContentType returns the Content-Type applied when the user did not set one
func (k RawBodyKind) DefaultContentType() string {
	switch k {
	case RawText:
		return "text/plain"
	case RawForm:
		return "application/x-www-form-urlencoded"
	case RawXML:
		return "text/xml"
	case RawBinaryFile:
		return "application/octet-stream"
	default:
		return "application/json"
	}
}

// ResponseTab selects which part of a response a viewer shows
type ResponseTab string

const (
	ResponseTabBody    ResponseTab = "body"
	ResponseTabHeaders ResponseTab = "headers"
)

// Pair is an ordered key/value entry used for query, headers and form fields
type Pair struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Active returns true when the pair should be sent
func (p Pair) Active() bool {
	return p.Key != "" && !p.Disabled
}

// Variable is a named value available to {{name}} placeholders
type Variable struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// ScriptConfig holds the optional pre-request and post-response scripts
type ScriptConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Pre     string `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post    string `json:"post,omitempty" yaml:"post,omitempty"`
}

// OAuthConfig configures an OAuth 2.0 client credentials token for a template
type OAuthConfig struct {
	TokenURL     string   `json:"tokenUrl" yaml:"tokenUrl"`
	ClientID     string   `json:"clientId" yaml:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// TLSConfig contains TLS/mTLS settings for outbound connections
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// RequestTemplate is a request definition with unresolved {{var}} placeholders
type RequestTemplate struct {
	Name         string            `json:"name" yaml:"name"`
	Method       Method            `json:"method" yaml:"method"`
	URL          string            `json:"url" yaml:"url"`
	Query        []Pair            `json:"query,omitempty" yaml:"query,omitempty"`
	Headers      []Pair            `json:"headers,omitempty" yaml:"headers,omitempty"`
	BodyTab      BodyTab           `json:"bodyTab,omitempty" yaml:"bodyTab,omitempty"`
	BodyRaw      string            `json:"bodyRaw,omitempty" yaml:"bodyRaw,omitempty"`
	BodyRawKind  RawBodyKind       `json:"bodyRawKind,omitempty" yaml:"bodyRawKind,omitempty"`
	BodyForm     []Pair            `json:"bodyForm,omitempty" yaml:"bodyForm,omitempty"`
	BodyFormData []Pair            `json:"bodyFormData,omitempty" yaml:"bodyFormData,omitempty"`
	Scripts      ScriptConfig      `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Extract      map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"` // variable name -> JMESPath
	OAuth        *OAuthConfig      `json:"oauth,omitempty" yaml:"oauth,omitempty"`
	TLS          *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Clone returns a deep copy so callers can edit it without touching the original
func (t *RequestTemplate) Clone() *RequestTemplate {
	c := *t
	c.Query = clonePairs(t.Query)
	c.Headers = clonePairs(t.Headers)
	c.BodyForm = clonePairs(t.BodyForm)
	c.BodyFormData = clonePairs(t.BodyFormData)
	if t.Extract != nil {
		c.Extract = make(map[string]string, len(t.Extract))
		for k, v := range t.Extract {
			c.Extract[k] = v
		}
	}
	if t.OAuth != nil {
		o := *t.OAuth
		o.Scopes = append([]string(nil), t.OAuth.Scopes...)
		c.OAuth = &o
	}
	if t.TLS != nil {
		tls := *t.TLS
		c.TLS = &tls
	}
	return &c
}

// EffectiveBodyTab returns the body tab, defaulting to raw
func (t *RequestTemplate) EffectiveBodyTab() BodyTab {
	if t.BodyTab == "" {
		return BodyTabRaw
	}
	return t.BodyTab
}

// EffectiveRawKind returns the raw body kind, defaulting to JSON
func (t *RequestTemplate) EffectiveRawKind() RawBodyKind {
	if t.BodyRawKind == "" {
		return RawJSON
	}
	return t.BodyRawKind
}

func clonePairs(in []Pair) []Pair {
	if in == nil {
		return nil
	}
	out := make([]Pair, len(in))
	copy(out, in)
	return out
}

// Group is a named collection of templates inside a project
type Group struct {
	Name      string            `json:"name" yaml:"name"`
	Templates []RequestTemplate `json:"templates" yaml:"templates"`
}

// Project is the persisted unit: variables plus grouped templates
type Project struct {
	Name      string     `json:"name" yaml:"name"`
	Variables []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Groups    []Group    `json:"groups" yaml:"groups"`
}

// ResponseRecord is the outcome of one HTTP exchange
type ResponseRecord struct {
	Status       int           `json:"status"`
	StatusText   string        `json:"statusText"`
	Proto        string        `json:"proto"`
	Headers      []Pair        `json:"headers"`
	Body         []byte        `json:"-"`
	Duration     time.Duration `json:"duration"`
	RequestSize  int64         `json:"requestSize"`
	ResponseSize int64         `json:"responseSize"`

	// Variables contributed by post-response scripts and extraction rules
	Variables map[string]string `json:"variables,omitempty"`
	// Non-fatal messages from scripts and extraction
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// DurationMs returns the wall-clock duration in milliseconds
func (r *ResponseRecord) DurationMs() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// IsSuccess returns true if status code is 2xx
func (r *ResponseRecord) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Header returns the first header value matching key (case-insensitive)
func (r *ResponseRecord) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// HeaderPairs flattens an http.Header into pairs sorted by key
func HeaderPairs(h http.Header) []Pair {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]Pair, 0, len(keys))
	for _, key := range keys {
		for _, v := range h[key] {
			pairs = append(pairs, Pair{Key: key, Value: v})
		}
	}
	return pairs
}

// Outcome is one delivered result of a dispatched request: a response or an error
type Outcome struct {
	Seq       int
	Timestamp time.Time
	Record    *ResponseRecord
	Err       error
	// Diagnostics from the pre-request hook, present even when the request failed
	Diagnostics []string
}

// Failed returns true when the outcome counts as a failure
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Record == nil || !o.Record.IsSuccess()
}
