package chain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/jmespath/go-jmespath"
	"github.com/studiowebux/restbench/internal/types"
)

// HasExtractions returns true if the template declares extraction rules
func HasExtractions(tmpl *types.RequestTemplate) bool {
	return tmpl != nil && len(tmpl.Extract) > 0
}

// ExtractVariables extracts variables from a response body using the
// template's JMESPath rules. Rules that fail are reported in the error but
// do not prevent the others from being returned.
func ExtractVariables(tmpl *types.RequestTemplate, responseBody []byte) (map[string]string, error) {
	if !HasExtractions(tmpl) {
		return nil, nil
	}

	var jsonData interface{}
	if err := json.Unmarshal(responseBody, &jsonData); err != nil {
		return nil, fmt.Errorf("cannot extract variables: response is not valid JSON")
	}

	names := make([]string, 0, len(tmpl.Extract))
	for name := range tmpl.Extract {
		names = append(names, name)
	}
	sort.Strings(names)

	extracted := make(map[string]string, len(names))
	var firstErr error
	for _, varName := range names {
		value, err := extractOne(varName, tmpl.Extract[varName], jsonData)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		extracted[varName] = value
	}

	return extracted, firstErr
}

func extractOne(varName, jmesPath string, jsonData interface{}) (string, error) {
	result, err := jmespath.Search(jmesPath, jsonData)
	if err != nil {
		return "", fmt.Errorf("failed to extract variable %s using path %s: %w", varName, jmesPath, err)
	}
	if result == nil {
		return "", fmt.Errorf("variable %s: JMESPath %s returned null", varName, jmesPath)
	}

	value, err := Stringify(result)
	if err != nil {
		return "", fmt.Errorf("variable %s: %w", varName, err)
	}
	return value, nil
}

// Search evaluates expr against data. A string argument is parsed as JSON first.
func Search(expr string, data interface{}) (interface{}, error) {
	if s, ok := data.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, fmt.Errorf("input is not valid JSON: %w", err)
		}
		data = parsed
	}
	return jmespath.Search(expr, data)
}

// Stringify converts an extracted value into a variable value.
// Scalars are formatted directly, complex values are JSON encoded.
func Stringify(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	case nil:
		return "", nil
	default:
		jsonBytes, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to convert extracted value to string: %w", err)
		}
		return string(jsonBytes), nil
	}
}
