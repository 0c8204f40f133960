package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiowebux/restbench/internal/types"
)

// RemoteFileTimeout bounds the download of an http(s) file reference
const RemoteFileTimeout = 30 * time.Second

// FileLoader reads binary bodies and multipart attachments from local disk or
// over HTTP when the reference has a URL scheme
type FileLoader struct {
	client *http.Client
}

// NewFileLoader creates a loader; nil client uses a client with RemoteFileTimeout
func NewFileLoader(client *http.Client) *FileLoader {
	if client == nil {
		client = &http.Client{Timeout: RemoteFileTimeout}
	}
	return &FileLoader{client: client}
}

// IsRemote returns true when ref should be fetched over HTTP
func IsRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// BaseName returns the file name used for a multipart attachment
func BaseName(ref string) string {
	if IsRemote(ref) {
		if u, err := url.Parse(ref); err == nil {
			if name := path.Base(u.Path); name != "/" && name != "." {
				return name
			}
			return u.Host
		}
	}
	return filepath.Base(ref)
}

// Load returns the bytes referenced by ref
func (l *FileLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, &CompileError{Kind: ErrFileNotFound, Target: ref, Err: errors.New("empty file path")}
	}
	if IsRemote(ref) {
		return l.fetch(ctx, ref)
	}

	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CompileError{Kind: ErrFileNotFound, Target: ref, Err: err}
		}
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: err}
	}
	if info.IsDir() {
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: errors.New("is a directory")}
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: err}
	}
	return data, nil
}

func (l *FileLoader) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &CompileError{Kind: ErrInvalidURL, Target: ref, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &CompileError{Kind: ErrFileNotFound, Target: ref, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CompileError{Kind: ErrIO, Target: ref, Err: err}
	}
	return data, nil
}

// FileRefs splits a form-data value into file references.
//
//	name  bar            -> none (text part)
//	file  @a.jpg         -> [a.jpg]
//	files @a.jpg @b.jpg  -> [a.jpg b.jpg]
func FileRefs(value string) []string {
	if !strings.Contains(value, "@") {
		return nil
	}
	var refs []string
	for _, token := range strings.Split(value, "@") {
		if token = strings.TrimSpace(token); token != "" {
			refs = append(refs, token)
		}
	}
	return refs
}

// buildMultipart encodes resolved form-data pairs, expanding @file references
func (c *Compiler) buildMultipart(ctx context.Context, pairs []types.Pair) ([]byte, string, []Part, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	var parts []Part

	for _, p := range pairs {
		refs := FileRefs(p.Value)
		if refs == nil {
			if err := w.WriteField(p.Key, p.Value); err != nil {
				return nil, "", nil, &CompileError{Kind: ErrMultipart, Target: p.Key, Err: err}
			}
			parts = append(parts, Part{Field: p.Key, Size: len(p.Value)})
			continue
		}

		for _, ref := range refs {
			data, err := c.files.Load(ctx, ref)
			if err != nil {
				return nil, "", nil, err
			}
			name := BaseName(ref)
			fw, err := w.CreateFormFile(p.Key, name)
			if err != nil {
				return nil, "", nil, &CompileError{Kind: ErrMultipart, Target: ref, Err: err}
			}
			if _, err := fw.Write(data); err != nil {
				return nil, "", nil, &CompileError{Kind: ErrMultipart, Target: ref, Err: err}
			}
			parts = append(parts, Part{Field: p.Key, FileName: name, Size: len(data)})
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", nil, &CompileError{Kind: ErrMultipart, Target: "form-data", Err: err}
	}
	return buf.Bytes(), w.FormDataContentType(), parts, nil
}
