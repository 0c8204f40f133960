package script

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/studiowebux/restbench/internal/chain"
)

const randomCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// builtins holds the host functions bound into one runtime
type builtins struct {
	vm      *goja.Runtime
	ctx     context.Context
	files   fixtureRoot
	client  *http.Client
	logger  *slog.Logger
	console *[]string
}

func (b *builtins) register() error {
	fns := map[string]interface{}{
		// hashing
		"md5":         func(s string) string { sum := md5.Sum([]byte(s)); return hex.EncodeToString(sum[:]) },
		"sha256":      func(s string) string { sum := sha256.Sum256([]byte(s)); return hex.EncodeToString(sum[:]) },
		"sha512":      func(s string) string { sum := sha512.Sum512([]byte(s)); return hex.EncodeToString(sum[:]) },
		"hmac_sha256": hmacSHA256,

		// encoding
		"base64_encode": func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) },
		"base64_decode": func(s string) string {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return ""
			}
			return string(data)
		},
		"url_encode": url.QueryEscape,
		"url_decode": func(s string) string {
			out, err := url.QueryUnescape(s)
			if err != nil {
				return ""
			}
			return out
		},
		"hex_encode": func(s string) string { return hex.EncodeToString([]byte(s)) },
		"hex_decode": func(s string) string {
			data, err := hex.DecodeString(s)
			if err != nil {
				return ""
			}
			return string(data)
		},

		// json
		"parse_json":     b.parseJSON,
		"to_json":        b.toJSON,
		"json_stringify": b.jsonStringify,
		"is_valid_json":  func(s string) bool { return json.Valid([]byte(s)) },
		"jmespath":       b.jmespath,

		// utilities
		"console_log":   b.consoleLog,
		"random":        func() int64 { return rand.Int63n(1000000) },
		"random_string": randomString,
		"timestamp":     func() int64 { return time.Now().Unix() },
		"timestamp_ms":  func() int64 { return time.Now().UnixMilli() },
		"uuid":          uuid.NewString,

		// files
		"read_file":        b.readFile,
		"write_file":       b.writeFile,
		"append_file":      b.appendFile,
		"file_exists":      b.fileExists,
		"delete_file":      b.deleteFile,
		"read_file_bytes":  b.readFileBytes,
		"write_file_bytes": b.writeFileBytes,
		"create_dir":       b.createDir,
		"list_files":       b.listFiles,

		// http
		"http_get":       b.httpGet,
		"http_get_bytes": b.httpGetBytes,
		"http_post":      b.httpPost,
		"http_request":   b.httpRequest,
	}

	for name, fn := range fns {
		if err := b.vm.Set(name, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	console := b.vm.NewObject()
	_ = console.Set("log", b.consoleLog)
	return b.vm.Set("console", console)
}

func hmacSHA256(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomString(length int64) string {
	if length <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(int(length))
	for i := int64(0); i < length; i++ {
		sb.WriteByte(randomCharset[rand.Intn(len(randomCharset))])
	}
	return sb.String()
}

func (b *builtins) parseJSON(s string) goja.Value {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return goja.Null()
	}
	return b.vm.ToValue(v)
}

func (b *builtins) toJSON(v goja.Value) string {
	data, err := json.Marshal(exportValue(v))
	if err != nil {
		return ""
	}
	return string(data)
}

func (b *builtins) jsonStringify(v goja.Value) string {
	data, err := json.MarshalIndent(exportValue(v), "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// jmespath(data, expr) searches a JSON string or object
func (b *builtins) jmespath(data goja.Value, expr string) (goja.Value, error) {
	result, err := chain.Search(expr, exportValue(data))
	if err != nil {
		return nil, err
	}
	return b.vm.ToValue(result), nil
}

func (b *builtins) consoleLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		if obj, ok := arg.(*goja.Object); ok {
			data, err := json.Marshal(obj.Export())
			if err == nil {
				parts = append(parts, string(data))
				continue
			}
		}
		parts = append(parts, arg.String())
	}
	line := strings.Join(parts, " ")
	*b.console = append(*b.console, line)
	b.logger.Debug("script console", "message", line)
	return goja.Undefined()
}

func exportValue(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}

// fixtureRoot confines file helpers to one directory
type fixtureRoot string

// resolve maps a script path onto the fixtures directory. Absolute paths are
// accepted only when they already point inside it.
func (r fixtureRoot) resolve(p string) (string, error) {
	if r == "" {
		return "", fmt.Errorf("file access is disabled (no fixtures directory configured)")
	}
	root, err := filepath.Abs(string(r))
	if err != nil {
		return "", err
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the fixtures directory", p)
	}
	return target, nil
}

func (b *builtins) fileFailed(op, path string, err error) {
	b.logger.Warn("script file operation failed", "op", op, "path", path, "error", err)
}

func (b *builtins) readFile(p string) (string, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		b.fileFailed("read_file", p, err)
		return "", nil
	}
	return string(data), nil
}

func (b *builtins) readFileBytes(p string) (string, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		b.fileFailed("read_file_bytes", p, err)
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (b *builtins) writeFile(p, content string) (bool, error) {
	return b.write("write_file", p, []byte(content), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

func (b *builtins) appendFile(p, content string) (bool, error) {
	return b.write("append_file", p, []byte(content), os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func (b *builtins) writeFileBytes(p, encoded string) (bool, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		b.fileFailed("write_file_bytes", p, err)
		return false, nil
	}
	return b.write("write_file_bytes", p, data, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

func (b *builtins) write(op, p string, data []byte, flag int) (bool, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		b.fileFailed(op, p, err)
		return false, nil
	}
	f, err := os.OpenFile(target, flag, 0644)
	if err != nil {
		b.fileFailed(op, p, err)
		return false, nil
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		b.fileFailed(op, p, err)
		return false, nil
	}
	return true, nil
}

func (b *builtins) fileExists(p string) (bool, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	return err == nil, nil
}

func (b *builtins) deleteFile(p string) (bool, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return false, err
	}
	if err := os.Remove(target); err != nil {
		b.fileFailed("delete_file", p, err)
		return false, nil
	}
	return true, nil
}

func (b *builtins) createDir(p string) (bool, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		b.fileFailed("create_dir", p, err)
		return false, nil
	}
	return true, nil
}

// list_files returns entry paths joined onto the directory as given by the script
func (b *builtins) listFiles(p string) ([]string, error) {
	target, err := b.files.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		b.fileFailed("list_files", p, err)
		return []string{}, nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(p, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// httpResult is one outbound call made by an HTTP helper
type httpResult struct {
	status  int
	headers map[string]string
	body    []byte
	err     error
}

func (b *builtins) do(method, target string, body string, headers map[string]string) httpResult {
	var reader io.Reader
	if body != "" && !strings.EqualFold(method, http.MethodGet) {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(b.ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		return httpResult{err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn("script http request failed", "method", method, "url", target, "error", err)
		return httpResult{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	out := httpResult{status: resp.StatusCode, headers: make(map[string]string, len(resp.Header)), body: data, err: err}
	for k := range resp.Header {
		out.headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return out
}

func (b *builtins) httpGet(target string) string {
	return string(b.do(http.MethodGet, target, "", nil).body)
}

func (b *builtins) httpGetBytes(target string) string {
	return base64.StdEncoding.EncodeToString(b.do(http.MethodGet, target, "", nil).body)
}

func (b *builtins) httpPost(target, body string) string {
	return string(b.do(http.MethodPost, target, body, map[string]string{"Content-Type": "application/json"}).body)
}

// http_request(url, method, [body], [headers]) returns {status, headers, body, error?}
func (b *builtins) httpRequest(call goja.FunctionCall) goja.Value {
	target := call.Argument(0).String()
	method := http.MethodGet
	if m := call.Argument(1); !goja.IsUndefined(m) && !goja.IsNull(m) {
		method = m.String()
	}
	body := ""
	if v := call.Argument(2); !goja.IsUndefined(v) && !goja.IsNull(v) {
		body = v.String()
	}
	var headers map[string]string
	if m, ok := exportMap(call.Argument(3)); ok {
		headers = stringsOf(m)
	}

	res := b.do(method, target, body, headers)
	obj := b.vm.NewObject()
	_ = obj.Set("status", res.status)
	_ = obj.Set("headers", stringObject(b.vm, res.headers))
	_ = obj.Set("body", string(res.body))
	if res.err != nil {
		_ = obj.Set("error", res.err.Error())
	}
	return obj
}
