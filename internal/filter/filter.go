// Package filter post-processes response bodies for display.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
)

// QueryShellTimeout bounds a $(command) query
const QueryShellTimeout = 30 * time.Second

// Shell command pattern: $(command)
var shellPattern = regexp.MustCompile(`^\$\((.+)\)$`)

// Apply narrows body with the filter expression, then transforms it with the
// query. Both are JMESPath; a query of the form $(command) instead pipes the
// body to a shell command and returns its trimmed stdout.
func Apply(ctx context.Context, body, filter, query string) (string, error) {
	result := body

	if filter != "" {
		filtered, err := applyJMESPath(result, filter)
		if err != nil {
			return "", fmt.Errorf("failed to apply filter: %w", err)
		}
		result = filtered
	}

	if query == "" {
		return result, nil
	}
	if matches := shellPattern.FindStringSubmatch(query); len(matches) > 1 {
		out, err := executeShellCommand(ctx, result, matches[1])
		if err != nil {
			return "", fmt.Errorf("failed to execute query shell command: %w", err)
		}
		return out, nil
	}
	queried, err := applyJMESPath(result, query)
	if err != nil {
		return "", fmt.Errorf("failed to apply query: %w", err)
	}
	return queried, nil
}

func applyJMESPath(jsonStr, expression string) (string, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	jp, err := jmespath.Compile(expression)
	if err != nil {
		return "", fmt.Errorf("invalid JMESPath expression '%s': %w", expression, err)
	}
	result, err := jp.Search(data)
	if err != nil {
		return "", fmt.Errorf("JMESPath search failed: %w", err)
	}
	if result == nil {
		return "null", nil
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output), nil
}

func executeShellCommand(ctx context.Context, body, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := err.Error()
		if stderr.Len() > 0 {
			msg = strings.TrimSpace(stderr.String())
		}
		return "", fmt.Errorf("command '%s' failed: %s", command, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsValidJMESPath reports whether expression compiles
func IsValidJMESPath(expression string) bool {
	_, err := jmespath.Compile(expression)
	return err == nil
}
