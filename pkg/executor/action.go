package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// Variant names a rung of the escalation ladder.
type Variant string

const (
	// VariantGeneral is a free-text natural-language instruction.
	VariantGeneral Variant = "act"
	// VariantConfirmedTarget executes a previously observed element descriptor.
	VariantConfirmedTarget Variant = "act_observed"
	// VariantPrecision is a selector plus one explicit operation.
	VariantPrecision Variant = "deep_locator_action"
)

// Action is one atomic step submitted to the Executor. The concrete types are
// General, ConfirmedTarget and Precision.
type Action interface {
	// StepDescription is the human-readable description of the step.
	StepDescription() string
	// Variant reports which rung of the ladder the action belongs to.
	Variant() Variant

	stepID() string
	perform(ctx context.Context, p page.Page) error
}

// General asks the page capability to carry out a natural-language instruction.
type General struct {
	Instruction string
	Step        string
	// StepID optionally overrides the description-derived retry key.
	StepID string
}

func (a General) StepDescription() string { return a.Step }
func (a General) Variant() Variant        { return VariantGeneral }
func (a General) stepID() string          { return a.StepID }

func (a General) perform(ctx context.Context, p page.Page) error {
	if a.Instruction == "" {
		return errors.New("act instruction is empty")
	}
	return p.Act(ctx, a.Instruction)
}

// ConfirmedTarget executes an element descriptor returned by an observation
// call in the current page state, bypassing re-resolution.
type ConfirmedTarget struct {
	Element page.ObservedElement
	Step    string
	StepID  string
}

func (a ConfirmedTarget) StepDescription() string { return a.Step }
func (a ConfirmedTarget) Variant() Variant        { return VariantConfirmedTarget }
func (a ConfirmedTarget) stepID() string          { return a.StepID }

func (a ConfirmedTarget) perform(ctx context.Context, p page.Page) error {
	if a.Element.Description == "" {
		return errors.New("observed action has no description")
	}
	return p.ActObserved(ctx, a.Element)
}

// Precision performs one operation on an explicit selector. It is meant for
// targets already confirmed by observation or captured DOM evidence.
type Precision struct {
	Selector  string
	Operation page.LocateOperation
	Value     string
	Step      string
	StepID    string
}

func (a Precision) StepDescription() string { return a.Step }
func (a Precision) Variant() Variant        { return VariantPrecision }
func (a Precision) stepID() string          { return a.StepID }

func (a Precision) perform(ctx context.Context, p page.Page) error {
	if a.Selector == "" {
		return errors.New("selector is required")
	}
	if !a.Operation.Valid() {
		return errors.Errorf("unsupported operation %q", a.Operation)
	}
	return p.Locate(ctx, a.Selector, a.Operation, a.Value)
}
