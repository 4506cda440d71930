package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinenguyen27/siren/pkg/task"
	"github.com/antoinenguyen27/siren/pkg/types/page"
	"github.com/antoinenguyen27/siren/pkg/types/page/pagetest"
)

func failingPage(elements int) *pagetest.Fake {
	fake := &pagetest.Fake{
		ActFunc: func(ctx context.Context, instruction string) error {
			return errors.New("element not found")
		},
	}
	for i := 0; i < elements; i++ {
		fake.Elements = append(fake.Elements, page.ObservedElement{Description: fmt.Sprintf("Button %d", i+1)})
	}
	return fake
}

func TestExecute_Success(t *testing.T) {
	fake := &pagetest.Fake{}
	st := task.NewState()
	exec := New(fake)

	out := exec.Execute(context.Background(), st, General{Instruction: "click the Add to cart button", Step: "Add item to cart"})

	assert.Equal(t, Succeeded, out.Kind)
	assert.Equal(t, "Success: Add item to cart", out.Message)
	assert.Equal(t, 0, out.Attempt)
	assert.Equal(t, 0, fake.CountCalls("Observe"), "no hints are fetched on success")
	assert.Equal(t, "click the Add to cart button", fake.Calls()[0].Argument)
}

func TestExecute_RetryThenPermanent(t *testing.T) {
	fake := failingPage(3)
	st := task.NewState()
	exec := New(fake)
	action := General{Instruction: "click checkout", Step: "Open checkout"}

	for k := 1; k < task.MaxRetriesPerStep; k++ {
		out := exec.Execute(context.Background(), st, action)
		require.Equal(t, Retry, out.Kind)
		assert.Equal(t, k, out.Attempt)
		assert.Contains(t, out.Message, fmt.Sprintf("Failed attempt %d/3", k))
		assert.Contains(t, out.Message, `step "Open checkout"`)
		assert.Contains(t, out.Message, "Error: element not found")
		assert.Contains(t, out.Message, "Button 1 | Button 2 | Button 3")
		assert.Contains(t, out.Message, "Adapt your next act() instruction")
	}

	out := exec.Execute(context.Background(), st, action)
	require.Equal(t, PermanentFailure, out.Kind)
	assert.Equal(t, 3, out.Attempt)
	assert.Contains(t, out.Message, "Failed permanently after 3 retries for step \"Open checkout\"")
	assert.Contains(t, out.Message, "Last error: element not found")
	assert.Contains(t, out.Message, "Stop retrying this step")
	assert.Equal(t, 0, st.Retries(Key(action)), "counter resets after a permanent failure")

	next := exec.Execute(context.Background(), st, action)
	assert.Equal(t, Retry, next.Kind)
	assert.Equal(t, 1, next.Attempt)
}

func TestExecute_SuccessClearsCounter(t *testing.T) {
	fail := true
	fake := &pagetest.Fake{
		ActFunc: func(ctx context.Context, instruction string) error {
			if fail {
				return errors.New("timeout")
			}
			return nil
		},
	}
	st := task.NewState()
	exec := New(fake)
	action := General{Instruction: "type hello", Step: "Fill search"}

	exec.Execute(context.Background(), st, action)
	exec.Execute(context.Background(), st, action)
	assert.Equal(t, 2, st.Retries(Key(action)))

	fail = false
	out := exec.Execute(context.Background(), st, action)
	assert.Equal(t, Succeeded, out.Kind)
	assert.Equal(t, 0, st.Retries(Key(action)))
}

func TestExecute_StepKeyNormalization(t *testing.T) {
	fake := failingPage(0)
	st := task.NewState()
	exec := New(fake)

	exec.Execute(context.Background(), st, General{Instruction: "a", Step: "Open Menu"})
	require.Equal(t, 1, st.Retries("open menu"))

	out := exec.Execute(context.Background(), st, ConfirmedTarget{Element: page.ObservedElement{Description: "Menu"}, Step: "  open menu "})

	assert.Equal(t, Succeeded, out.Kind)
	assert.Equal(t, 0, st.Retries("open menu"), "escalated success clears the shared counter")
}

func TestExecute_KeySharedAcrossVariants(t *testing.T) {
	fake := &pagetest.Fake{
		ActFunc: func(ctx context.Context, instruction string) error { return errors.New("nope") },
		LocateFunc: func(ctx context.Context, selector string, op page.LocateOperation, value string) error {
			return errors.New("detached")
		},
	}
	st := task.NewState()
	exec := New(fake)

	exec.Execute(context.Background(), st, General{Instruction: "click save", Step: "Save document"})
	out := exec.Execute(context.Background(), st, Precision{Selector: "#save", Operation: page.OpClick, Step: "SAVE DOCUMENT"})

	assert.Equal(t, 2, out.Attempt)
	assert.Equal(t, VariantPrecision, out.Variant)
	assert.Contains(t, out.Message, "Current page hints: none")
}

func TestExecute_ExplicitStepID(t *testing.T) {
	fake := failingPage(0)
	st := task.NewState()
	exec := New(fake)

	exec.Execute(context.Background(), st, General{Instruction: "x", Step: "Open the menu", StepID: "menu"})
	out := exec.Execute(context.Background(), st, General{Instruction: "y", Step: "Click hamburger icon", StepID: "menu"})

	assert.Equal(t, 2, out.Attempt, "paraphrased steps share the explicit id")
}

func TestExecute_HintsAreCappedAndObserveErrorsSwallowed(t *testing.T) {
	t.Run("capped at eight", func(t *testing.T) {
		fake := failingPage(12)
		out := New(fake).Execute(context.Background(), task.NewState(), General{Instruction: "x", Step: "s"})
		assert.Len(t, out.Hints, MaxHints)
		assert.NotContains(t, out.Message, "Button 9")
	})

	t.Run("observe failure yields no hints", func(t *testing.T) {
		fake := failingPage(0)
		fake.ObserveFunc = func(ctx context.Context, query string, opts page.ObserveOptions) ([]page.ObservedElement, error) {
			return nil, errors.New("page crashed")
		}
		out := New(fake).Execute(context.Background(), task.NewState(), General{Instruction: "x", Step: "s"})
		assert.Equal(t, Retry, out.Kind)
		assert.Empty(t, out.Hints)
		assert.Contains(t, out.Message, "Current page hints: none")
	})
}

func TestExecute_Precision(t *testing.T) {
	t.Run("passes operation and value", func(t *testing.T) {
		fake := &pagetest.Fake{}
		out := New(fake).Execute(context.Background(), task.NewState(), Precision{
			Selector:  "iframe#editor >> input[name=q]",
			Operation: page.OpFill,
			Value:     "quarterly report",
			Step:      "Fill search",
		})
		require.Equal(t, Succeeded, out.Kind)
		call := fake.Calls()[0]
		assert.Equal(t, "Locate", call.Method)
		assert.Equal(t, page.OpFill, call.Operation)
		assert.Equal(t, "quarterly report", call.Value)
	})

	t.Run("unsupported operation counts as a failed attempt", func(t *testing.T) {
		fake := &pagetest.Fake{}
		out := New(fake).Execute(context.Background(), task.NewState(), Precision{
			Selector:  "#x",
			Operation: page.LocateOperation("drag"),
			Step:      "Drag",
		})
		assert.Equal(t, Retry, out.Kind)
		assert.Contains(t, out.Message, `unsupported operation "drag"`)
		assert.Equal(t, 0, fake.CountCalls("Locate"))
	})
}

func TestExecute_ConfirmedTarget(t *testing.T) {
	fake := &pagetest.Fake{}
	element := page.ObservedElement{Selector: "xpath=/html/body/button", Description: "Submit button", Method: "click"}

	out := New(fake).Execute(context.Background(), task.NewState(), ConfirmedTarget{Element: element, Step: "Submit form"})

	require.Equal(t, Succeeded, out.Kind)
	assert.Equal(t, element, fake.Calls()[0].Element)
}
