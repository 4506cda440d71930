// Package pagetest provides a configurable in-memory page.Page for tests.
package pagetest

import (
	"context"
	"sync"

	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// Call records one invocation on a Fake.
type Call struct {
	Method    string
	Argument  string
	Operation page.LocateOperation
	Value     string
	Element   page.ObservedElement
}

// Fake implements page.Page with overridable behaviour. Unset functions succeed
// and Observe returns Elements.
type Fake struct {
	ActFunc         func(ctx context.Context, instruction string) error
	ActObservedFunc func(ctx context.Context, element page.ObservedElement) error
	ObserveFunc     func(ctx context.Context, query string, opts page.ObserveOptions) ([]page.ObservedElement, error)
	LocateFunc      func(ctx context.Context, selector string, op page.LocateOperation, value string) error
	ExtractFunc     func(ctx context.Context, query string) (string, error)

	Elements []page.ObservedElement

	mu    sync.Mutex
	calls []Call
}

var _ page.Page = (*Fake)(nil)

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CountCalls returns the number of recorded calls to method.
func (f *Fake) CountCalls(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *Fake) Act(ctx context.Context, instruction string) error {
	f.record(Call{Method: "Act", Argument: instruction})
	if f.ActFunc != nil {
		return f.ActFunc(ctx, instruction)
	}
	return nil
}

func (f *Fake) ActObserved(ctx context.Context, element page.ObservedElement) error {
	f.record(Call{Method: "ActObserved", Element: element})
	if f.ActObservedFunc != nil {
		return f.ActObservedFunc(ctx, element)
	}
	return nil
}

func (f *Fake) Observe(ctx context.Context, query string, opts page.ObserveOptions) ([]page.ObservedElement, error) {
	f.record(Call{Method: "Observe", Argument: query})
	if f.ObserveFunc != nil {
		return f.ObserveFunc(ctx, query, opts)
	}
	return f.Elements, nil
}

func (f *Fake) Locate(ctx context.Context, selector string, op page.LocateOperation, value string) error {
	f.record(Call{Method: "Locate", Argument: selector, Operation: op, Value: value})
	if f.LocateFunc != nil {
		return f.LocateFunc(ctx, selector, op, value)
	}
	return nil
}

func (f *Fake) Extract(ctx context.Context, query string) (string, error) {
	f.record(Call{Method: "Extract", Argument: query})
	if f.ExtractFunc != nil {
		return f.ExtractFunc(ctx, query)
	}
	return "", nil
}
