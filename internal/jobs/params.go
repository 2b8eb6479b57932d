package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeParams decodes a stored parameter payload into a map. Payloads are
// JSON objects, but rows written by older tooling are occasionally
// double-escaped: the column holds a JSON *string* whose content is the
// actual object (`"{\"key\": 1}"`). One level of re-quoting is tolerated.
//
// Empty and "null" payloads decode to an empty map. Anything that is not an
// object after at most one unquoting step is an error.
func DecodeParams(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	params, err := decodeObject(trimmed)
	if err == nil {
		return params, nil
	}

	// Double-escaped case: the payload is a JSON string containing JSON.
	var inner string
	if strErr := json.Unmarshal([]byte(trimmed), &inner); strErr == nil {
		inner = strings.TrimSpace(inner)
		if inner == "" || inner == "null" {
			return map[string]any{}, nil
		}
		params, innerErr := decodeObject(inner)
		if innerErr != nil {
			return nil, fmt.Errorf("failed to decode double-escaped params: %w", innerErr)
		}
		return params, nil
	}

	return nil, fmt.Errorf("failed to decode params: %w", err)
}

func decodeObject(s string) (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// EncodeParams canonicalizes a parameter map back into a JSON object string
// for storage. A nil map encodes as "{}".
func EncodeParams(params map[string]any) (string, error) {
	if params == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	return string(raw), nil
}
