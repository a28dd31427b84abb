package jsonrpc

import (
	"context"
	"errors"
	"strconv"
)

type tester interface {
	Test(first, second int) Future
}

type firstService struct{}

func (s *firstService) Test(first, second int) Future {
	return Go(func() (string, error) {
		return strconv.Itoa(first + second), nil
	})
}

func firstServiceDef() Service {
	s := &firstService{}
	return Service{
		Name: "FirstService",
		Type: &Type{
			Name:    "FirstService",
			Methods: []Method{Func("Test", s.Test, Required("first"), Required("second"))},
		},
	}
}

// renamedService implements tester with its own parameter names; callers
// still bind against first/second.
func renamedServiceDef() Service {
	s := &firstService{}
	return Service{
		Name: "Renamed",
		Type: &Type{
			Name:    "Renamed",
			Methods: []Method{Func("Test", s.Test, Required("x"), Required("y"))},
		},
		Interfaces: []Interface{
			InterfaceOf[tester](Sig("Test", Required("first"), Required("second"))),
		},
	}
}

type AddParams struct {
	A int `json:"a"`
	B int `json:"b" default:"10"`
}

type calculator struct {
	resets int
}

func (c *calculator) Add(ctx context.Context, p AddParams) (int, error) {
	return p.A + p.B, nil
}

func (c *calculator) Scale(value, factor float64) float64 {
	return value * factor
}

func (c *calculator) Divide(a, b int) (int, error) {
	if b == 0 {
		return 0, NewError(-1000, "division by zero")
	}
	return a / b, nil
}

func (c *calculator) Reset() {
	c.resets++
}

func (c *calculator) Ping() string {
	return "calculator"
}

func (c *calculator) Fail() error {
	return errors.New("nope")
}

func (c *calculator) Explode() string {
	panic("boom")
}

func (c *calculator) Other(a, b int) int {
	return a * b
}

type base struct{}

func (base) Ping() string    { return "base" }
func (base) Version() string { return "1.0" }

func calculatorDef(c *calculator) Service {
	b := base{}
	return Service{
		Name: "Calculator",
		Type: &Type{
			Name: "Calculator",
			Methods: []Method{
				StructFunc("Add", c.Add),
				Func("Scale", c.Scale, Required("value"), Default("factor", 2)),
				Func("Divide", c.Divide, Required("a"), Required("b")),
				Func("Reset", c.Reset),
				Func("Ping", c.Ping),
				Func("Fail", c.Fail),
				Func("Explode", c.Explode),
			},
			Embeds: []*Type{{
				Name:    "Base",
				Methods: []Method{Func("Ping", b.Ping), Func("Version", b.Version)},
			}},
		},
	}
}
