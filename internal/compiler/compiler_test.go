package compiler

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/studiowebux/restbench/internal/types"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

// TestCompile_RawContentType checks the default Content-Type per raw kind
func TestCompile_RawContentType(t *testing.T) {
	tests := []struct {
		name    string
		kind    types.RawBodyKind
		headers []types.Pair
		want    string
	}{
		{"json default", types.RawJSON, nil, "application/json"},
		{"empty kind is json", "", nil, "application/json"},
		{"text default", types.RawText, nil, "text/plain"},
		{"xml default", types.RawXML, nil, "text/xml"},
		{"raw form default", types.RawForm, nil, "application/x-www-form-urlencoded"},
		{"explicit kept", types.RawJSON, []types.Pair{{Key: "Content-Type", Value: "text/csv"}}, "text/csv"},
		{"explicit case-insensitive", types.RawJSON, []types.Pair{{Key: "content-type", Value: "text/csv"}}, "text/csv"},
		{"disabled explicit ignored", types.RawJSON, []types.Pair{{Key: "Content-Type", Value: "text/csv", Disabled: true}}, "application/json"},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &types.RequestTemplate{
				Method:      types.MethodPost,
				URL:         "https://example.com/items",
				Headers:     tt.headers,
				BodyRaw:     `{"a":1}`,
				BodyRawKind: tt.kind,
			}
			req, err := c.Compile(context.Background(), tmpl, nil)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if req.ContentType != tt.want {
				t.Errorf("Expected Content-Type %q, got: %q", tt.want, req.ContentType)
			}

			count := 0
			for _, h := range req.Headers {
				if strings.EqualFold(h.Key, "Content-Type") {
					count++
				}
			}
			if count != 1 {
				t.Errorf("Expected exactly one Content-Type header, got: %d", count)
			}
		})
	}
}

func TestCompile_EmptyRawBodySetsNoContentType(t *testing.T) {
	req, err := New(nil).Compile(context.Background(), &types.RequestTemplate{URL: "http://example.com"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Expected default method GET, got: %s", req.Method)
	}
	if req.ContentType != "" || len(req.Body) != 0 {
		t.Errorf("Expected no body and no Content-Type, got %q / %q", req.ContentType, req.Body)
	}
}

func TestCompile_ResolvesVariables(t *testing.T) {
	vars := []types.Variable{
		{Key: "base", Value: "https://api.example.com", Enabled: true},
		{Key: "token", Value: "abc", Enabled: true},
		{Key: "term", Value: "a b", Enabled: true},
	}
	tmpl := &types.RequestTemplate{
		Method: types.MethodPost,
		URL:    "{{base}}/search?fixed=1",
		Query: []types.Pair{
			{Key: "q", Value: "{{term}}"},
			{Key: "skip", Value: "x", Disabled: true},
			{Key: "", Value: "no key"},
			{Key: "page", Value: "2"},
		},
		Headers: []types.Pair{{Key: "Authorization", Value: "Bearer {{token}}"}},
		BodyRaw: `{"token":"{{token}}"}`,
	}

	req, err := New(nil).Compile(context.Background(), tmpl, vars)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if want := "https://api.example.com/search?fixed=1&q=a+b&page=2"; req.URL != want {
		t.Errorf("Expected URL %q, got: %q", want, req.URL)
	}
	if got := req.Header("authorization"); got != "Bearer abc" {
		t.Errorf("Expected resolved header, got: %q", got)
	}
	if string(req.Body) != `{"token":"abc"}` {
		t.Errorf("Expected resolved body, got: %s", req.Body)
	}
	if len(req.Query) != 2 {
		t.Errorf("Expected 2 active query pairs, got: %d", len(req.Query))
	}
}

func TestCompile_FormForcesContentType(t *testing.T) {
	tmpl := &types.RequestTemplate{
		Method:   types.MethodPost,
		URL:      "http://example.com/login",
		Headers:  []types.Pair{{Key: "Content-Type", Value: "application/json"}},
		BodyTab:  types.BodyTabForm,
		BodyForm: []types.Pair{{Key: "user", Value: "{{name}}"}, {Key: "pass", Value: "p&w"}},
	}
	vars := []types.Variable{{Key: "name", Value: "alice", Enabled: true}}

	req, err := New(nil).Compile(context.Background(), tmpl, vars)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if req.ContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Expected forced form Content-Type, got: %q", req.ContentType)
	}
	if string(req.Body) != "user=alice&pass=p%26w" {
		t.Errorf("Unexpected form body: %s", req.Body)
	}
}

func TestCompile_FormDataFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.jpg", "AAAA")
	b := writeFixture(t, dir, "b.jpg", "BB")

	tmpl := &types.RequestTemplate{
		Method:  types.MethodPost,
		URL:     "http://example.com/upload",
		BodyTab: types.BodyTabFormData,
		BodyFormData: []types.Pair{
			{Key: "title", Value: "holiday"},
			{Key: "photos", Value: "@" + a + " @" + b},
		},
	}

	req, err := New(nil).Compile(context.Background(), tmpl, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var files []Part
	for _, p := range req.Parts {
		if p.FileName != "" {
			files = append(files, p)
		}
	}
	if len(files) != 2 || files[0].FileName != "a.jpg" || files[1].FileName != "b.jpg" {
		t.Fatalf("Expected file parts a.jpg and b.jpg, got: %+v", files)
	}

	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Expected multipart Content-Type, got: %q (%v)", req.ContentType, err)
	}

	reader := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"])
	got := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read part: %v", err)
		}
		data, _ := io.ReadAll(part)
		key := part.FormName()
		if part.FileName() != "" {
			key = part.FileName()
		}
		got[key] = string(data)
	}

	if got["title"] != "holiday" || got["a.jpg"] != "AAAA" || got["b.jpg"] != "BB" {
		t.Errorf("Unexpected multipart contents: %v", got)
	}
}

func TestCompile_BinaryFile(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "payload.bin", "\x00\x01\x02")

	tmpl := &types.RequestTemplate{
		Method:      types.MethodPut,
		URL:         "http://example.com/blob",
		BodyRaw:     "{{file}}",
		BodyRawKind: types.RawBinaryFile,
	}
	vars := []types.Variable{{Key: "file", Value: path, Enabled: true}}

	req, err := New(nil).Compile(context.Background(), tmpl, vars)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !bytes.Equal(req.Body, []byte{0, 1, 2}) {
		t.Errorf("Expected file bytes, got: %v", req.Body)
	}
	if req.ContentType != "application/octet-stream" {
		t.Errorf("Expected octet-stream, got: %q", req.ContentType)
	}
}

func TestCompile_BinaryFileOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote"))
	}))
	defer server.Close()

	c := New(server.Client())
	tmpl := &types.RequestTemplate{
		Method:      types.MethodPost,
		URL:         "http://example.com/blob",
		BodyRaw:     server.URL + "/file.bin",
		BodyRawKind: types.RawBinaryFile,
	}

	req, err := c.Compile(context.Background(), tmpl, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(req.Body) != "remote" {
		t.Errorf("Expected remote bytes, got: %s", req.Body)
	}

	tmpl.BodyRaw = server.URL + "/missing.bin"
	if _, err := c.Compile(context.Background(), tmpl, nil); !IsKind(err, ErrFileNotFound) {
		t.Errorf("Expected FileNotFound for 404, got: %v", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.bin")

	tests := []struct {
		name string
		tmpl *types.RequestTemplate
		kind ErrorKind
	}{
		{
			name: "missing binary file",
			tmpl: &types.RequestTemplate{URL: "http://example.com", BodyRaw: missing, BodyRawKind: types.RawBinaryFile},
			kind: ErrFileNotFound,
		},
		{
			name: "missing attachment",
			tmpl: &types.RequestTemplate{URL: "http://example.com", BodyTab: types.BodyTabFormData,
				BodyFormData: []types.Pair{{Key: "f", Value: "@" + missing}}},
			kind: ErrFileNotFound,
		},
		{
			name: "directory as binary file",
			tmpl: &types.RequestTemplate{URL: "http://example.com", BodyRaw: t.TempDir(), BodyRawKind: types.RawBinaryFile},
			kind: ErrIO,
		},
		{name: "unresolved host", tmpl: &types.RequestTemplate{URL: "{{base}}/users"}, kind: ErrInvalidURL},
		{name: "bad scheme", tmpl: &types.RequestTemplate{URL: "ftp://example.com"}, kind: ErrInvalidURL},
		{name: "ws scheme on http method", tmpl: &types.RequestTemplate{URL: "ws://example.com"}, kind: ErrInvalidURL},
		{name: "missing host", tmpl: &types.RequestTemplate{URL: "http:///path"}, kind: ErrInvalidURL},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(context.Background(), tt.tmpl, nil)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("Expected %s error, got: %v", tt.kind, err)
			}
		})
	}
}

func TestCompile_WebSocketURL(t *testing.T) {
	tmpl := &types.RequestTemplate{Method: types.MethodWS, URL: "wss://example.com/socket",
		Query: []types.Pair{{Key: "room", Value: "1"}}}

	req, err := New(nil).Compile(context.Background(), tmpl, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if req.URL != "wss://example.com/socket?room=1" {
		t.Errorf("Unexpected URL: %s", req.URL)
	}
}

func TestCompiledRequest_WithHeaderCopies(t *testing.T) {
	orig := &CompiledRequest{Method: "GET", URL: "http://example.com", Headers: []types.Pair{{Key: "A", Value: "1"}}}

	updated := orig.WithHeader("Authorization", "Bearer x")
	if len(orig.Headers) != 1 {
		t.Errorf("Expected original headers untouched, got: %v", orig.Headers)
	}
	if updated.Header("Authorization") != "Bearer x" {
		t.Errorf("Expected header on copy, got: %v", updated.Headers)
	}
	if same := orig.WithHeader("a", "2"); same != orig {
		t.Error("Expected existing header to return the receiver")
	}
}

func TestFileRefs(t *testing.T) {
	tests := []struct {
		value string
		want  []string
	}{
		{"plain", nil},
		{"@a.jpg", []string{"a.jpg"}},
		{"@/tmp/a.jpg @/tmp/b.jpg", []string{"/tmp/a.jpg", "/tmp/b.jpg"}},
		{"@ @ x.txt @", []string{"x.txt"}},
	}
	for _, tt := range tests {
		got := FileRefs(tt.value)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("FileRefs(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}

	if name := BaseName("https://cdn.example.com/img/logo.png?v=1"); name != "logo.png" {
		t.Errorf("Expected logo.png, got: %s", name)
	}
	if name := BaseName("/tmp/a.jpg"); name != "a.jpg" {
		t.Errorf("Expected a.jpg, got: %s", name)
	}
}
