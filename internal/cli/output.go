package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/studiowebux/restbench/internal/executor"
	"github.com/studiowebux/restbench/internal/types"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatBody = "body"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// result is the serializable view of a response
type result struct {
	Status      int               `json:"status" yaml:"status"`
	StatusText  string            `json:"statusText" yaml:"statusText"`
	DurationMs  float64           `json:"durationMs" yaml:"durationMs"`
	Size        int64             `json:"size" yaml:"size"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        string            `json:"body" yaml:"body"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

func newResult(record *types.ResponseRecord, body string) result {
	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		if _, ok := headers[h.Key]; !ok {
			headers[h.Key] = h.Value
		}
	}
	return result{
		Status:      record.Status,
		StatusText:  record.StatusText,
		DurationMs:  record.DurationMs(),
		Size:        record.ResponseSize,
		Headers:     headers,
		Body:        body,
		Variables:   record.Variables,
		Diagnostics: record.Diagnostics,
	}
}

// formatOutput renders a response. body is the (possibly filtered) body to show.
func formatOutput(record *types.ResponseRecord, body, format string, showFull, color bool) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(newResult(record, body), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case FormatYAML:
		data, err := yaml.Marshal(newResult(record, body))
		if err != nil {
			return "", err
		}
		return string(data), nil

	case FormatBody:
		return body, nil

	case FormatText, "":
		var sb strings.Builder
		status := strings.TrimSpace(fmt.Sprintf("%d %s", record.Status, record.StatusText))
		if color {
			status = statusColor(record.Status) + status + colorReset
		}
		sb.WriteString(status + "\n")
		sb.WriteString(fmt.Sprintf("Duration: %s | Size: %s\n",
			executor.FormatDuration(record.Duration),
			executor.FormatSize(record.ResponseSize)))

		if showFull && len(record.Headers) > 0 {
			sb.WriteString("\nHeaders:\n")
			for _, h := range record.Headers {
				sb.WriteString(fmt.Sprintf("  %s: %s\n", h.Key, h.Value))
			}
		}
		if showFull && len(record.Variables) > 0 {
			sb.WriteString("\nVariables:\n")
			for _, k := range sortedKeys(record.Variables) {
				sb.WriteString(fmt.Sprintf("  %s = %s\n", k, record.Variables[k]))
			}
		}

		if body != "" {
			if showFull {
				sb.WriteString("\nBody:\n")
			} else {
				sb.WriteString("\n")
			}
			if color {
				body = highlight(body, record.Header("Content-Type"))
			}
			sb.WriteString(body)
			if !strings.HasSuffix(body, "\n") {
				sb.WriteString("\n")
			}
		}

		for _, d := range record.Diagnostics {
			line := "warning: " + d
			if color {
				line = colorYellow + line + colorReset
			}
			sb.WriteString(line + "\n")
		}
		return sb.String(), nil

	default:
		return "", fmt.Errorf("unknown output format %q (use text, body, json or yaml)", format)
	}
}

// highlight colors body according to its content type. The body is
// returned unchanged when no lexer applies.
func highlight(body, contentType string) string {
	lexer := lexerFor(contentType, body)
	if lexer == "" {
		return body
	}
	if lexer == "json" {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(body), "", "  "); err == nil {
			body = pretty.String()
		}
	}
	var out strings.Builder
	if err := quick.Highlight(&out, body, lexer, "terminal256", "monokai"); err != nil {
		return body
	}
	return out.String()
}

func lexerFor(contentType, body string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return "json"
	case strings.Contains(ct, "yaml"):
		return "yaml"
	case strings.Contains(ct, "html"):
		return "html"
	case strings.Contains(ct, "xml"):
		return "xml"
	case ct == "" && json.Valid([]byte(body)):
		return "json"
	}
	return ""
}

// ANSI color codes
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
)

func statusColor(status int) string {
	if status >= 200 && status < 300 {
		return colorGreen
	} else if status >= 400 {
		return colorRed
	}
	return colorYellow
}
