package compiler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

const contentTypeHeader = "Content-Type"

// Part summarizes one multipart section of a compiled form-data body
type Part struct {
	Field    string
	FileName string // empty for text fields
	Size     int
}

// CompiledRequest is a template after variable substitution, ready for transport.
// It must not be modified once handed to a transport.
type CompiledRequest struct {
	Method      string
	URL         string // includes the resolved query
	Query       []types.Pair
	Headers     []types.Pair
	Body        []byte
	ContentType string
	Parts       []Part
}

// Header returns the first header value matching key (case-insensitive)
func (c *CompiledRequest) Header(key string) string {
	for _, h := range c.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Size returns the number of body bytes sent on the wire
func (c *CompiledRequest) Size() int64 {
	return int64(len(c.Body))
}

// WithHeader returns a copy with key set when it is absent. The receiver is untouched.
func (c *CompiledRequest) WithHeader(key, value string) *CompiledRequest {
	if c.Header(key) != "" {
		return c
	}
	clone := *c
	clone.Headers = append(append([]types.Pair(nil), c.Headers...), types.Pair{Key: key, Value: value})
	return &clone
}

// NewHTTPRequest builds a fresh *http.Request. Each call gets its own body reader.
func (c *CompiledRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(c.Body) > 0 {
		body = bytes.NewReader(c.Body)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method, c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for _, h := range c.Headers {
		req.Header.Add(h.Key, h.Value)
	}
	return req, nil
}

// Compiler turns templates into CompiledRequests
type Compiler struct {
	files *FileLoader
}

// New creates a compiler. client is used for file references with an
// http(s) scheme; nil uses a default client.
func New(client *http.Client) *Compiler {
	return &Compiler{files: NewFileLoader(client)}
}

// Files exposes the loader used for binary bodies and attachments
func (c *Compiler) Files() *FileLoader {
	return c.files
}

// Compile resolves variables in tmpl and builds the outbound request
func (c *Compiler) Compile(ctx context.Context, tmpl *types.RequestTemplate, vars []types.Variable) (*CompiledRequest, error) {
	method := string(tmpl.Method)
	if method == "" {
		method = string(types.MethodGet)
	}

	req := &CompiledRequest{
		Method:  method,
		Query:   resolvePairs(tmpl.Query, vars),
		Headers: resolvePairs(tmpl.Headers, vars),
	}

	u, err := BuildURL(parser.Resolve(tmpl.URL, vars), req.Query, tmpl.Method.IsWebSocket())
	if err != nil {
		return nil, err
	}
	req.URL = u

	switch tmpl.EffectiveBodyTab() {
	case types.BodyTabForm:
		form := resolvePairs(tmpl.BodyForm, vars)
		req.Body = []byte(encodePairs(form))
		req.setContentType("application/x-www-form-urlencoded", true)

	case types.BodyTabFormData:
		body, contentType, parts, err := c.buildMultipart(ctx, resolvePairs(tmpl.BodyFormData, vars))
		if err != nil {
			return nil, err
		}
		req.Body = body
		req.Parts = parts
		req.setContentType(contentType, true)

	default:
		if tmpl.BodyRaw == "" {
			break
		}
		kind := tmpl.EffectiveRawKind()
		if kind == types.RawBinaryFile {
			data, err := c.files.Load(ctx, strings.TrimSpace(parser.Resolve(tmpl.BodyRaw, vars)))
			if err != nil {
				return nil, err
			}
			req.Body = data
		} else {
			req.Body = []byte(parser.Resolve(tmpl.BodyRaw, vars))
		}
		req.setContentType(kind.DefaultContentType(), false)
	}

	req.ContentType = req.Header(contentTypeHeader)
	return req, nil
}

// setContentType applies a Content-Type. Without force an existing user value wins.
func (c *CompiledRequest) setContentType(value string, force bool) {
	if c.Header(contentTypeHeader) != "" {
		if !force {
			return
		}
		kept := c.Headers[:0:0]
		for _, h := range c.Headers {
			if !strings.EqualFold(h.Key, contentTypeHeader) {
				kept = append(kept, h)
			}
		}
		c.Headers = kept
	}
	c.Headers = append(c.Headers, types.Pair{Key: contentTypeHeader, Value: value})
}

// BuildURL validates raw and appends the query pairs in order
func BuildURL(raw string, query []types.Pair, websocket bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &CompileError{Kind: ErrInvalidURL, Target: raw, Err: err}
	}

	allowed := map[string]bool{"http": true, "https": true}
	if websocket {
		allowed["ws"] = true
		allowed["wss"] = true
	}
	if !allowed[strings.ToLower(u.Scheme)] {
		return "", &CompileError{Kind: ErrInvalidURL, Target: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &CompileError{Kind: ErrInvalidURL, Target: raw, Err: fmt.Errorf("missing host")}
	}

	if len(query) > 0 {
		encoded := encodePairs(query)
		if u.RawQuery == "" {
			u.RawQuery = encoded
		} else {
			u.RawQuery = u.RawQuery + "&" + encoded
		}
	}
	return u.String(), nil
}

// resolvePairs resolves the active pairs and drops disabled or key-less ones
func resolvePairs(pairs []types.Pair, vars []types.Variable) []types.Pair {
	out := make([]types.Pair, 0, len(pairs))
	for _, p := range pairs {
		if !p.Active() {
			continue
		}
		out = append(out, types.Pair{Key: p.Key, Value: parser.Resolve(p.Value, vars)})
	}
	return out
}

// encodePairs URL-encodes pairs keeping their order
func encodePairs(pairs []types.Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
