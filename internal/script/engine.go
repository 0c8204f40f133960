package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single script evaluation
const DefaultTimeout = 5 * time.Second

// Options configures the JavaScript sandbox
type Options struct {
	// FixturesDir is the only directory file helpers may touch. Empty disables them.
	FixturesDir string
	Timeout     time.Duration
	// HTTPClient is used by http_get/http_post/http_request
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// JSEngine runs scripts in a fresh goja runtime per evaluation
type JSEngine struct {
	fixturesDir string
	timeout     time.Duration
	client      *http.Client
	logger      *slog.Logger
}

// NewJSEngine creates a JavaScript engine
func NewJSEngine(opts Options) *JSEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &JSEngine{
		fixturesDir: opts.FixturesDir,
		timeout:     opts.Timeout,
		client:      opts.HTTPClient,
		logger:      opts.Logger,
	}
}

// Eval runs src against in. Only request (pre phase) and vars are read back.
func (e *JSEngine) Eval(ctx context.Context, src string, in Context) (*Result, error) {
	vm := goja.New()
	res := &Result{Context: in}

	b := &builtins{
		vm:      vm,
		ctx:     ctx,
		files:   fixtureRoot(e.fixturesDir),
		client:  e.client,
		logger:  e.logger,
		console: &res.Console,
	}
	if err := b.register(); err != nil {
		return nil, &Error{Phase: in.Phase, Err: err}
	}

	request := requestObject(vm, in.Request)
	if err := vm.Set("request", request); err != nil {
		return nil, &Error{Phase: in.Phase, Err: err}
	}
	if err := vm.Set("vars", stringObject(vm, in.Vars)); err != nil {
		return nil, &Error{Phase: in.Phase, Err: err}
	}
	if in.Phase == PhasePost {
		freeze(vm, request)
		if in.Response != nil {
			response := responseObject(vm, *in.Response)
			freeze(vm, response)
			if err := vm.Set("response", response); err != nil {
				return nil, &Error{Phase: in.Phase, Err: err}
			}
		}
		_ = vm.Set("test_passed", true)
		_ = vm.Set("test_message", "")
	}

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt(fmt.Sprintf("script timed out after %s", e.timeout))
	})
	defer timer.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	if _, err := vm.RunString(src); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			err = fmt.Errorf("%v", interrupted.Value())
		}
		return nil, &Error{Phase: in.Phase, Err: err}
	}

	out := in
	out.Vars = exportStrings(vm.Get("vars"), in.Vars)
	if in.Phase == PhasePre {
		out.Request = exportRequest(vm.Get("request"), in.Request)
	} else {
		res.TestPassed = true
		if v := vm.Get("test_passed"); v != nil && !goja.IsUndefined(v) {
			res.TestPassed = v.ToBoolean()
		}
		if v := vm.Get("test_message"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			res.TestMessage = v.String()
		}
	}
	res.Context = out
	return res, nil
}

func stringObject(vm *goja.Runtime, m map[string]string) *goja.Object {
	obj := vm.NewObject()
	for k, v := range m {
		_ = obj.Set(k, v)
	}
	return obj
}

func requestObject(vm *goja.Runtime, r Request) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("url", r.URL)
	_ = obj.Set("method", r.Method)
	_ = obj.Set("headers", stringObject(vm, r.Headers))
	_ = obj.Set("params", stringObject(vm, r.Params))
	_ = obj.Set("body", r.Body)
	return obj
}

func responseObject(vm *goja.Runtime, r Response) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("status", r.Status)
	_ = obj.Set("headers", stringObject(vm, r.Headers))
	_ = obj.Set("body", r.Body)
	_ = obj.Set("duration", r.DurationMs)
	return obj
}

// freeze makes obj and its nested objects read-only. Writes are silently ignored.
func freeze(vm *goja.Runtime, obj *goja.Object) {
	fn, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))
	if !ok {
		return
	}
	for _, key := range obj.Keys() {
		if nested, ok := obj.Get(key).(*goja.Object); ok {
			_, _ = fn(goja.Undefined(), nested)
		}
	}
	_, _ = fn(goja.Undefined(), obj)
}

func exportRequest(v goja.Value, fallback Request) Request {
	m, ok := exportMap(v)
	if !ok {
		return fallback
	}
	out := fallback
	if s, ok := m["url"]; ok {
		out.URL = toString(s)
	}
	if s, ok := m["method"]; ok {
		out.Method = toString(s)
	}
	if s, ok := m["body"]; ok {
		out.Body = toString(s)
	}
	if h, ok := m["headers"].(map[string]interface{}); ok {
		out.Headers = stringsOf(h)
	}
	if p, ok := m["params"].(map[string]interface{}); ok {
		out.Params = stringsOf(p)
	}
	return out
}

func exportStrings(v goja.Value, fallback map[string]string) map[string]string {
	m, ok := exportMap(v)
	if !ok {
		return copyMap(fallback)
	}
	return stringsOf(m)
}

func exportMap(v goja.Value) (map[string]interface{}, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	m, ok := v.Export().(map[string]interface{})
	return m, ok
}

// stringsOf drops null and undefined entries and formats the rest as strings
func stringsOf(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = toString(v)
	}
	return out
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
