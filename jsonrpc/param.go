package jsonrpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Param describes one formal parameter of a method. Order matters: the i'th
// Param binds the i'th element of a positional params array.
//
// Type may be left nil on concrete methods; it is then taken from the
// handler's signature when the registry is built.
type Param struct {
	Name     string
	Type     reflect.Type
	Optional bool
	// Default is used when an optional parameter is absent. It is only
	// meaningful when HasDefault is set.
	Default    any
	HasDefault bool

	defaultJSON []byte
}

// Required describes a parameter that must be present in every call.
func Required(name string) Param {
	return Param{Name: name}
}

// Optional describes a parameter that binds to its type's zero value when absent.
func Optional(name string) Param {
	return Param{Name: name, Optional: true}
}

// Default describes an optional parameter that binds to value when absent.
func Default(name string, value any) Param {
	return Param{Name: name, Optional: true, Default: value, HasDefault: true}
}

// Of returns a copy of p with its declared type set to t.
func (p Param) Of(t reflect.Type) Param {
	p.Type = t
	return p
}

// prepareDefault checks p's default against p.Type and records its JSON
// form. Each call then binds a fresh copy, so handlers that mutate a slice,
// map or pointer default never see another call's changes.
func (p *Param) prepareDefault() error {
	p.defaultJSON = nil
	if !p.HasDefault || p.Default == nil {
		return nil
	}
	v := reflect.ValueOf(p.Default)
	switch {
	case v.Type().AssignableTo(p.Type):
	case isNumeric(v.Kind()) && isNumeric(p.Type.Kind()):
		v = v.Convert(p.Type)
	default:
		return fmt.Errorf("default %v (%s) is not assignable to %s", p.Default, v.Type(), p.Type)
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return fmt.Errorf("default %v: %w", p.Default, err)
	}
	if err := json.Unmarshal(data, reflect.New(p.Type).Interface()); err != nil {
		return fmt.Errorf("default %v does not decode as %s: %w", p.Default, p.Type, err)
	}
	p.defaultJSON = data
	return nil
}

// defaultValue returns a new value bound to p when it is absent from a call.
func (p Param) defaultValue() (reflect.Value, error) {
	if p.HasDefault && p.Default != nil && p.defaultJSON == nil {
		// Not registered through Build.
		if err := p.prepareDefault(); err != nil {
			return reflect.Value{}, err
		}
	}
	v := reflect.New(p.Type)
	if p.defaultJSON != nil {
		if err := json.Unmarshal(p.defaultJSON, v.Interface()); err != nil {
			return reflect.Value{}, err
		}
	}
	return v.Elem(), nil
}

// paramsFromStruct derives the parameter list of a struct-packed handler.
// Each exported field is one parameter:
//
//	type ScaleParams struct {
//	    Value  float64 `json:"value"`
//	    Factor float64 `json:"factor" rpc:"optional" default:"2"`
//	}
//
// The name comes from the json tag (falling back to the field name), and a
// default is parsed as a JSON literal of the field's type.
func paramsFromStruct(t reflect.Type) ([]Param, []int, error) {
	var params []Param
	var fields []int
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		p := Param{Name: name, Type: field.Type}
		for _, opt := range strings.Split(field.Tag.Get("rpc"), ",") {
			if strings.TrimSpace(opt) == "optional" {
				p.Optional = true
			}
		}
		if def, ok := field.Tag.Lookup("default"); ok {
			v := reflect.New(field.Type)
			if err := json.Unmarshal([]byte(def), v.Interface()); err != nil {
				return nil, nil, fmt.Errorf("field %s: invalid default %q: %w", field.Name, def, err)
			}
			p.Optional = true
			p.HasDefault = true
			p.Default = v.Elem().Interface()
		}
		params = append(params, p)
		fields = append(fields, i)
	}
	return params, fields, nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
