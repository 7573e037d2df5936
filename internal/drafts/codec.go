package drafts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Serialize renders a payload deterministically. encoding/json sorts map
// keys, and nil maps are normalised to empty ones so a hydrated payload and
// a freshly built one compare equal.
func Serialize(p Payload) (string, error) {
	norm := p
	if norm.FormData == nil {
		norm.FormData = map[string]interface{}{}
	}
	if norm.Flags == nil {
		norm.Flags = map[string]bool{}
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	return string(b), nil
}

// IsEmpty reports whether the payload has nothing worth persisting: blank
// strings, zero numbers, false flags.
func IsEmpty(p Payload) bool {
	for _, v := range p.FormData {
		if !isEmptyValue(v) {
			return false
		}
	}
	for _, set := range p.Flags {
		if set {
			return false
		}
	}
	return true
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		return !val
	case int:
		return val == 0
	case int32:
		return val == 0
	case int64:
		return val == 0
	case uint:
		return val == 0
	case uint64:
		return val == 0
	case float32:
		return val == 0
	case float64:
		return val == 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case []string:
		for _, s := range val {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	case []interface{}:
		for _, e := range val {
			if !isEmptyValue(e) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		for _, e := range val {
			if !isEmptyValue(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
