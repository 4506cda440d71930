// Package page defines the contract between siren's execution core and the
// browser-automation capability that inspects and drives a live page.
package page

import (
	"context"
	"strings"
)

// ObservedElement is a semantic description of an interactive control as
// reported by an observation call. Description is verbatim ground truth and
// must never be rewritten by consumers.
type ObservedElement struct {
	Selector    string   `json:"selector,omitempty"`
	Description string   `json:"description"`
	Method      string   `json:"method,omitempty"`
	Arguments   []string `json:"arguments,omitempty"`
}

// LocateOperation is one of the selector-precision operations.
type LocateOperation string

const (
	OpClick        LocateOperation = "click"
	OpFill         LocateOperation = "fill"
	OpType         LocateOperation = "type"
	OpHover        LocateOperation = "hover"
	OpSelectOption LocateOperation = "selectOption"
	OpScrollTo     LocateOperation = "scrollTo"
)

// Operations lists every supported LocateOperation in declaration order.
var Operations = []LocateOperation{OpClick, OpFill, OpType, OpHover, OpSelectOption, OpScrollTo}

// Valid reports whether op is a supported operation.
func (op LocateOperation) Valid() bool {
	for _, o := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// ObserveOptions tunes an observation call.
type ObserveOptions struct {
	// IncludeIframes extends the inspection into child frames.
	IncludeIframes bool
}

// Page is the external page capability. Implementations carry their own
// timeouts; callers never run two calls on the same Page concurrently.
type Page interface {
	// Act performs one natural-language instruction.
	Act(ctx context.Context, instruction string) error
	// ActObserved executes a previously observed element descriptor directly.
	ActObserved(ctx context.Context, element ObservedElement) error
	// Observe returns candidate interactive elements for query.
	Observe(ctx context.Context, query string, opts ObserveOptions) ([]ObservedElement, error)
	// Locate performs a precise operation on the element matched by selector.
	Locate(ctx context.Context, selector string, op LocateOperation, value string) error
}

// Extractor is implemented by pages that can return non-interactive page data.
type Extractor interface {
	Extract(ctx context.Context, query string) (string, error)
}

// Navigator is implemented by pages that can change location.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	URL() string
}

// Descriptions returns the trimmed, non-empty descriptions of elements in order.
func Descriptions(elements []ObservedElement) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		if d := strings.TrimSpace(e.Description); d != "" {
			out = append(out, d)
		}
	}
	return out
}
