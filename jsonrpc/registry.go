package jsonrpc

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// Type describes the callable surface of a concrete service type. Methods
// are declared on the type itself; methods reached through Embeds are
// inherited, the way Go promotes methods of embedded fields.
type Type struct {
	Name    string
	Methods []Method
	Embeds  []*Type
}

// Signature is a method declared by an Interface.
type Signature struct {
	Name   string
	Params []Param
}

// Sig describes an interface method and the names of its parameters.
func Sig(name string, params ...Param) Signature {
	return Signature{Name: name, Params: params}
}

// Interface is a published contract implemented by a service. When a
// concrete method matches an interface method, the interface's parameter
// list is what callers bind against.
type Interface struct {
	Name    string
	Methods []Signature
	err     error
}

// InterfaceOf describes the Go interface I. Parameter types are taken from
// I's method set (ignoring a leading context.Context); names, optionality and
// defaults come from sigs. A signature with no params for a method taking a
// single params struct derives them from the struct's fields.
func InterfaceOf[I any](sigs ...Signature) Interface {
	it := reflect.TypeFor[I]()
	iface := Interface{Name: it.String()}
	if it.Kind() != reflect.Interface {
		iface.err = fmt.Errorf("%s is not an interface type", it)
		return iface
	}
	for _, sig := range sigs {
		m, ok := it.MethodByName(sig.Name)
		if !ok {
			iface.err = fmt.Errorf("%s has no method %s", it, sig.Name)
			return iface
		}
		var in []reflect.Type
		for i := 0; i < m.Type.NumIn(); i++ {
			if i == 0 && m.Type.In(0) == contextType {
				continue
			}
			in = append(in, m.Type.In(i))
		}
		if len(sig.Params) == 0 && len(in) == 1 && in[0].Kind() == reflect.Struct {
			params, _, err := paramsFromStruct(in[0])
			if err != nil {
				iface.err = fmt.Errorf("%s.%s: %w", it, sig.Name, err)
				return iface
			}
			iface.Methods = append(iface.Methods, Signature{Name: sig.Name, Params: params})
			continue
		}
		if len(in) != len(sig.Params) {
			iface.err = fmt.Errorf("%s.%s takes %d parameters, %d named", it, sig.Name, len(in), len(sig.Params))
			return iface
		}
		params := make([]Param, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = p.Of(in[i])
		}
		iface.Methods = append(iface.Methods, Signature{Name: sig.Name, Params: params})
	}
	return iface
}

// Service is one entry of the registry: a name and the instance's type,
// together with the interfaces it implements.
type Service struct {
	Name       string
	Type       *Type
	Interfaces []Interface
}

// Registry maps service names to method tables. It is built once by Build
// and never modified afterwards, so it can be shared by any number of
// concurrent requests without locking.
type Registry struct {
	services map[string]map[string]*MethodDescriptor
}

// Build validates every service and builds the registry. Any problem is
// reported as a *ConfigurationError and no registry is returned.
func Build(services ...Service) (*Registry, error) {
	return BuildWithLogger(slog.Default(), services...)
}

// BuildWithLogger is Build with an explicit logger for registration events.
func BuildWithLogger(logger *slog.Logger, services ...Service) (*Registry, error) {
	reg := &Registry{services: make(map[string]map[string]*MethodDescriptor, len(services))}
	for _, svc := range services {
		if svc.Name == "" {
			return nil, &ConfigurationError{Reason: "service name must not be empty"}
		}
		if _, exists := reg.services[svc.Name]; exists {
			return nil, &ConfigurationError{Service: svc.Name, Reason: "service registered more than once"}
		}
		table, err := buildService(logger, svc)
		if err != nil {
			return nil, err
		}
		reg.services[svc.Name] = table
		logger.Info("registered rpc service", "service", svc.Name, "methods", len(table))
	}
	return reg, nil
}

type declared struct {
	method Method
	owner  *Type
}

// enumerate lists the methods of t, those declared on t first, followed by
// inherited ones in embedding order.
func enumerate(t *Type) []declared {
	var out []declared
	seen := map[*Type]bool{}
	queue := []*Type{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil || seen[cur] {
			continue
		}
		seen[cur] = true
		for _, m := range cur.Methods {
			out = append(out, declared{method: m, owner: cur})
		}
		queue = append(queue, cur.Embeds...)
	}
	return out
}

func buildService(logger *slog.Logger, svc Service) (map[string]*MethodDescriptor, error) {
	if svc.Type == nil {
		return nil, &ConfigurationError{Service: svc.Name, Reason: "service has no type"}
	}
	methods := enumerate(svc.Type)

	type ownedName struct {
		name  string
		owner *Type
	}
	byOwner := make(map[ownedName]bool, len(methods))
	for _, d := range methods {
		key := ownedName{d.method.Name, d.owner}
		if byOwner[key] {
			return nil, &ConfigurationError{Service: svc.Name, Type: d.owner.Name, Method: d.method.Name,
				Reason: "method with this name already exists in type"}
		}
		byOwner[key] = true
	}

	contract := make(map[string]Signature)
	for _, iface := range svc.Interfaces {
		if iface.err != nil {
			return nil, &ConfigurationError{Service: svc.Name, Type: iface.Name, Reason: iface.err.Error()}
		}
		for _, sig := range iface.Methods {
			key := strings.ToLower(sig.Name)
			if _, exists := contract[key]; exists {
				return nil, &ConfigurationError{Service: svc.Name, Type: iface.Name, Method: sig.Name,
					Reason: "method with this name already exists in the service's interfaces"}
			}
			contract[key] = sig
		}
	}

	table := make(map[string]*MethodDescriptor, len(methods))
	for _, d := range methods {
		key := strings.ToLower(d.method.Name)
		if prev, exists := table[key]; exists {
			logger.Debug("skipping shadowed rpc method", "service", svc.Name, "method", d.method.Name,
				"type", d.owner.Name, "kept", prev.Name)
			continue
		}

		h, params, err := newHandler(d.method)
		if err != nil {
			return nil, &ConfigurationError{Service: svc.Name, Type: d.owner.Name, Method: d.method.Name, Reason: err.Error()}
		}
		if sig, ok := contract[key]; ok {
			params, err = contractParams(sig, h.targetTypes())
			if err != nil {
				return nil, &ConfigurationError{Service: svc.Name, Type: d.owner.Name, Method: d.method.Name, Reason: err.Error()}
			}
		}
		for i := range params {
			if err := params[i].prepareDefault(); err != nil {
				return nil, &ConfigurationError{Service: svc.Name, Type: d.owner.Name, Method: d.method.Name,
					Reason: fmt.Sprintf("parameter %s: %v", params[i].Name, err)}
			}
		}

		table[key] = &MethodDescriptor{
			Service: svc.Name,
			Name:    d.method.Name,
			Params:  params,
			Async:   h.async,
			h:       h,
		}
	}

	for key, sig := range contract {
		if _, ok := table[key]; !ok {
			return nil, &ConfigurationError{Service: svc.Name, Type: svc.Type.Name, Method: sig.Name,
				Reason: "interface method is not implemented"}
		}
	}
	return table, nil
}

// contractParams returns the interface's parameter list for a concrete
// handler taking arguments of the given types.
func contractParams(sig Signature, target []reflect.Type) ([]Param, error) {
	if len(sig.Params) != len(target) {
		return nil, fmt.Errorf("interface declares %d parameters but the handler takes %d", len(sig.Params), len(target))
	}
	params := make([]Param, len(sig.Params))
	for i, p := range sig.Params {
		if p.Type == nil {
			p.Type = target[i]
		} else if !p.Type.AssignableTo(target[i]) {
			return nil, fmt.Errorf("interface parameter %s: %s is not assignable to %s", p.Name, p.Type, target[i])
		}
		params[i] = p
	}
	return params, nil
}

// Lookup returns the descriptor for method of service. Method names match
// case-insensitively. Failures are returned as wire errors.
func (r *Registry) Lookup(service, method string) (*MethodDescriptor, *Error) {
	table, ok := r.services[service]
	if !ok {
		return nil, NewServiceNotFoundError("service not found: " + service)
	}
	d, ok := table[strings.ToLower(method)]
	if !ok {
		return nil, NewMethodNotFoundError("method not found: " + method)
	}
	return d, nil
}

// Services returns the registered service names in sorted order.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns the method table of service sorted by lower-cased name.
func (r *Registry) Methods(service string) []*MethodDescriptor {
	table := r.services[service]
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*MethodDescriptor, len(keys))
	for i, key := range keys {
		out[i] = table[key]
	}
	return out
}
