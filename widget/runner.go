package widget

import (
	"strings"
	"sync"
	"time"

	"github.com/canvass/canvass/model"
)

// How long a validation error stays visible before it clears itself.
const errorClearAfter = 5 * time.Second

// Runner steps an anonymous visitor through the ordered element list, one
// question at a time. Validation is purely local and never contacts the
// server; only the final step submits.
type Runner struct {
	mu       sync.Mutex
	elements []model.SurveyElement
	submit   func(responses map[int]any) error
	complete func()

	currentStep  int
	responses    map[int]any
	isSubmitting bool
	isCompleted  bool
	errMsg       string
	errTimer     *time.Timer
	errorClear   time.Duration
}

// NewRunner builds a stepper over elements, already sorted by order index.
// submit is called once with the full answer map when the last element
// passes validation; complete fires only after submit succeeds.
func NewRunner(elements []model.SurveyElement, submit func(map[int]any) error, complete func()) *Runner {
	return &Runner{
		elements:   elements,
		submit:     submit,
		complete:   complete,
		responses:  map[int]any{},
		errorClear: errorClearAfter,
	}
}

func (r *Runner) CurrentStep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentStep
}

func (r *Runner) Current() model.SurveyElement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elements[r.currentStep]
}

func (r *Runner) Responses() map[int]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]any, len(r.responses))
	for id, v := range r.responses {
		out[id] = v
	}
	return out
}

func (r *Runner) IsSubmitting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isSubmitting
}

func (r *Runner) IsCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isCompleted
}

func (r *Runner) ErrorMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// Next validates the current element's answer. On failure the step is left
// unchanged and an error message tailored to the element type is shown. On
// success the answer is stored and the runner advances, or submits when the
// current element is the last one.
func (r *Runner) Next(answer any) {
	r.mu.Lock()

	if r.isCompleted || r.isSubmitting {
		r.mu.Unlock()
		return
	}

	el := r.elements[r.currentStep]
	if el.Required && !answered(answer) {
		r.setErrorLocked(requiredMessage(el.Type))
		r.mu.Unlock()
		return
	}

	r.clearErrorLocked()
	r.responses[el.ID] = answer

	if r.currentStep < len(r.elements)-1 {
		r.currentStep++
		r.mu.Unlock()
		return
	}

	r.isSubmitting = true
	answers := make(map[int]any, len(r.responses))
	for id, v := range r.responses {
		answers[id] = v
	}
	r.mu.Unlock()

	err := r.submit(answers)

	r.mu.Lock()
	r.isSubmitting = false
	if err != nil {
		// leave the visitor free to retry
		r.setErrorLocked("Could not send your answers. Please check your connection and try again.")
		r.mu.Unlock()
		return
	}
	r.isCompleted = true
	complete := r.complete
	r.mu.Unlock()

	if complete != nil {
		complete()
	}
}

// Previous steps back one element and clears any shown error. It does
// nothing on the first step.
func (r *Runner) Previous() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentStep == 0 || r.isSubmitting || r.isCompleted {
		return
	}
	r.currentStep--
	r.clearErrorLocked()
}

// ClearError removes the visible validation error, as typing into the form
// does in the widget.
func (r *Runner) ClearError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearErrorLocked()
}

func (r *Runner) setErrorLocked(msg string) {
	r.errMsg = msg
	if r.errTimer != nil {
		r.errTimer.Stop()
	}
	r.errTimer = time.AfterFunc(r.errorClear, r.ClearError)
}

func (r *Runner) clearErrorLocked() {
	r.errMsg = ""
	if r.errTimer != nil {
		r.errTimer.Stop()
		r.errTimer = nil
	}
}

// answered reports whether a required answer holds a usable value. Empty
// and whitespace-only strings, empty arrays and falsy scalars all fail.
func answered(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

func requiredMessage(elementType string) string {
	switch elementType {
	case model.ElementMultipleChoice:
		return "Please select at least one option."
	case model.ElementRating:
		return "Please pick a rating."
	default:
		return "Please fill out this field."
	}
}
