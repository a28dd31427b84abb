package jsonrpc

import (
	"reflect"
)

// Reflect describes receiver's exported methods as a Type named name. Only
// methods whose parameters are, after an optional leading context.Context,
// either nothing or a single params struct are included:
//
//	func (c *Calc) Add(ctx context.Context, p AddParams) (int, error)
//	func (c *Calc) Reset()
//
// Other methods are left out, because Go does not retain parameter names;
// describe those with Func instead.
func Reflect(name string, receiver any) *Type {
	val := reflect.ValueOf(receiver)
	typ := val.Type()
	if name == "" {
		name = reflect.Indirect(val).Type().Name()
	}

	t := &Type{Name: name}
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		fn := val.Method(i)
		switch reflectShape(fn.Type()) {
		case shapeNoArgs:
			t.Methods = append(t.Methods, Func(method.Name, fn.Interface()))
		case shapeStruct:
			t.Methods = append(t.Methods, StructFunc(method.Name, fn.Interface()))
		}
	}
	return t
}

type shape int

const (
	shapeUnsupported shape = iota
	shapeNoArgs
	shapeStruct
)

func reflectShape(ft reflect.Type) shape {
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		first = 1
	}
	switch ft.NumIn() - first {
	case 0:
		return shapeNoArgs
	case 1:
		if ft.In(first).Kind() == reflect.Struct {
			return shapeStruct
		}
	}
	return shapeUnsupported
}
