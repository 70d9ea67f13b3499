// Package params decodes JSON-RPC named parameters
package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is wrapped by every parameter error
var ErrInvalid = errors.New("invalid params")

// Map holds the named parameters of one call
type Map map[string]interface{}

// Parse decodes named parameters. Missing params decode to an empty map.
func Parse(raw json.RawMessage) (Map, error) {
	m := Map{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return m, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: expected an object of named parameters", ErrInvalid)
	}
	return m, nil
}

// String returns a string param, or "" when absent
func (m Map) String(key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalid, key)
	}
	return s, nil
}

// RequireString returns a non-blank string param
func (m Map) RequireString(key string) (string, error) {
	s, err := m.String(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: missing required parameter: %s", ErrInvalid, key)
	}
	return s, nil
}

// Int64 returns an integer param and whether it was present
func (m Map) Int64(key string) (int64, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}

	var (
		n   int64
		err error
	)
	switch val := v.(type) {
	case json.Number:
		n, err = val.Int64()
	case string:
		n, err = strconv.ParseInt(val, 10, 64)
	default:
		err = errors.New("not a number")
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalid, key)
	}
	return n, true, nil
}

// RequireInt64 returns an integer param that must be present
func (m Map) RequireInt64(key string) (int64, error) {
	n, ok, err := m.Int64(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing required parameter: %s", ErrInvalid, key)
	}
	return n, nil
}

// Int returns an integer param, or def when absent
func (m Map) Int(key string, def int) (int, error) {
	n, ok, err := m.Int64(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return int(n), nil
}

// Strings returns a list of strings param, or nil when absent
func (m Map) Strings(key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalid, key)
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalid, key)
		}
		out[i] = s
	}
	return out, nil
}
