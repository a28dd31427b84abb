package main

import (
	"strconv"
	"sync"

	"github.com/mnehpets/onerpc/jsonrpc"
)

// FirstService adds two numbers on a separate goroutine.
type FirstService struct{}

func (FirstService) Test(first, second int) jsonrpc.Future {
	return jsonrpc.Go(func() (string, error) {
		return strconv.Itoa(first + second), nil
	})
}

type SecondService struct{}

func (SecondService) Test() string {
	return "SecondService Test invoked"
}

// Arithmetic is the published contract of the calculator. Its parameter
// names are the ones callers use.
type Arithmetic interface {
	Add(a, b float64) float64
	Scale(value, factor float64) float64
}

type Base struct{}

func (Base) Ping() string {
	return "pong"
}

// Calculator keeps the last result in memory until Reset.
type Calculator struct {
	Base

	mu     sync.Mutex
	memory float64
}

func (c *Calculator) Add(x, y float64) float64 {
	return c.store(x + y)
}

func (c *Calculator) Scale(x, by float64) float64 {
	return c.store(x * by)
}

func (c *Calculator) Memory() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory
}

func (c *Calculator) Reset() {
	c.store(0)
}

func (c *Calculator) store(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = v
	return v
}

var _ Arithmetic = (*Calculator)(nil)

// demoServices describes the services hosted by serve.
func demoServices() []jsonrpc.Service {
	first := FirstService{}
	calc := &Calculator{}
	return []jsonrpc.Service{
		{
			Name: "FirstService",
			Type: &jsonrpc.Type{
				Name: "FirstService",
				Methods: []jsonrpc.Method{
					jsonrpc.Func("Test", first.Test, jsonrpc.Required("first"), jsonrpc.Required("second")),
				},
			},
		},
		{
			Name: "SecondService",
			Type: jsonrpc.Reflect("SecondService", SecondService{}),
		},
		{
			Name: "Calculator",
			Type: &jsonrpc.Type{
				Name: "Calculator",
				Methods: []jsonrpc.Method{
					jsonrpc.Func("Add", calc.Add, jsonrpc.Required("x"), jsonrpc.Required("y")),
					jsonrpc.Func("Scale", calc.Scale, jsonrpc.Required("x"), jsonrpc.Required("by")),
					jsonrpc.Func("Memory", calc.Memory),
					jsonrpc.Func("Reset", calc.Reset),
				},
				Embeds: []*jsonrpc.Type{{
					Name:    "Base",
					Methods: []jsonrpc.Method{jsonrpc.Func("Ping", calc.Ping)},
				}},
			},
			Interfaces: []jsonrpc.Interface{
				jsonrpc.InterfaceOf[Arithmetic](
					jsonrpc.Sig("Add", jsonrpc.Required("a"), jsonrpc.Required("b")),
					jsonrpc.Sig("Scale", jsonrpc.Required("value"), jsonrpc.Default("factor", 2)),
				),
			},
		},
	}
}
