package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

// Bind converts a raw params payload into one typed value per Param.
//
// An object binds by name, an array binds by position, and an absent or null
// payload binds as if it were an empty object. Members or elements beyond the
// declared parameters are ignored. A parameter that is missing or given as
// null falls back to its default (optional) or fails with a *BindingError
// (required).
func Bind(raw json.RawMessage, params []Param) ([]reflect.Value, error) {
	lookup, err := newParamSource(raw)
	if err != nil {
		return nil, err
	}

	args := make([]reflect.Value, len(params))
	for i, p := range params {
		value, ok := lookup(i, p.Name)
		if ok && !isNull(value) {
			v := reflect.New(p.Type)
			if err := json.Unmarshal(value, v.Interface()); err != nil {
				return nil, &BindingError{Param: p.Name, Type: p.Type, Err: err}
			}
			args[i] = v.Elem()
			continue
		}

		if !p.Optional {
			return nil, &BindingError{Param: p.Name, Type: p.Type, Err: errMissingParam}
		}
		v, err := p.defaultValue()
		if err != nil {
			return nil, &BindingError{Param: p.Name, Type: p.Type, Err: err}
		}
		args[i] = v
	}
	return args, nil
}

// newParamSource returns a function that finds the raw value for the i'th
// parameter, named name, in the params payload.
func newParamSource(raw json.RawMessage) (func(i int, name string) (json.RawMessage, bool), error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return func(int, string) (json.RawMessage, bool) { return nil, false }, nil
	}

	switch trimmed[0] {
	case '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &named); err != nil {
			return nil, &BindingError{Err: err}
		}
		return func(_ int, name string) (json.RawMessage, bool) {
			v, ok := named[name]
			return v, ok
		}, nil
	case '[':
		var positional []json.RawMessage
		if err := json.Unmarshal(trimmed, &positional); err != nil {
			return nil, &BindingError{Err: err}
		}
		return func(i int, _ string) (json.RawMessage, bool) {
			if i >= len(positional) {
				return nil, false
			}
			return positional[i], true
		}, nil
	}
	return nil, &BindingError{Err: errors.New("params must be an object or an array")}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
