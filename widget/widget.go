package widget

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/canvass/canvass/model"
)

// How long a completed widget stays on screen before closing itself.
const autoCloseAfter = 3 * time.Second

// Visit describes the page context a widget instance was loaded into.
type Visit struct {
	URL          string
	Pathname     string
	Hostname     string
	Route        string
	UserAgent    string
	SessionID    string
	Preview      bool
	App          bool
	APIKey       bool
	CustomParams map[string]any
}

// Trusted contexts bypass domain restriction and fire-time re-validation.
func (v Visit) Trusted() bool {
	return v.Preview || v.App || v.APIKey
}

type State int

const (
	StateArmed State = iota
	StateSoftGate
	StateOpen
	StateCompleted
	StateClosed
)

// Controller drives one survey widget instance: it arms the trigger
// scheduler, runs the gating pipeline, presents the optional soft gate and
// owns the step runner. There is at most one controller per survey id;
// mounting again replaces the previous instance.
type Controller struct {
	survey     model.Survey
	baseDomain string
	visit      Visit
	gate       *RecurrenceGate
	reporter   Reporter

	mu            sync.Mutex
	state         State
	runner        *Runner
	cancelTrigger func()
	hitTracked    bool
	closeTimer    *time.Timer
	autoClose     time.Duration
}

var (
	mountMu sync.Mutex
	mounted = map[int]*Controller{}
)

// Mount arms a widget controller for the survey. Any previous controller
// for the same survey id is closed and replaced, so repeated embeds never
// layer duplicate widgets.
func Mount(survey model.Survey, baseDomain string, visit Visit, gate *RecurrenceGate, reporter Reporter, bus *EventBus) *Controller {
	elements := make([]model.SurveyElement, len(survey.Elements))
	copy(elements, survey.Elements)
	sort.Slice(elements, func(i, j int) bool {
		return elements[i].OrderIndex < elements[j].OrderIndex
	})
	survey.Elements = elements

	c := &Controller{
		survey:     survey,
		baseDomain: baseDomain,
		visit:      visit,
		gate:       gate,
		reporter:   reporter,
		autoClose:  autoCloseAfter,
	}

	// swap the registry entry first: Close re-acquires mountMu to
	// unregister, so the previous instance must be closed outside the lock
	mountMu.Lock()
	prev := mounted[survey.ID]
	mounted[survey.ID] = c
	mountMu.Unlock()
	if prev != nil {
		prev.Close()
	}

	sched := &Scheduler{
		SurveyID:   survey.ID,
		Target:     survey.Target,
		Bus:        bus,
		Trusted:    visit.Trusted(),
		Revalidate: c.eligible,
		Show:       c.show,
	}
	c.mu.Lock()
	c.cancelTrigger = sched.Start()
	c.mu.Unlock()

	return c
}

// Mounted returns the live controller for a survey id, if any.
func Mounted(surveyID int) *Controller {
	mountMu.Lock()
	defer mountMu.Unlock()
	return mounted[surveyID]
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Runner() *Runner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner
}

// eligible runs the full gating pipeline for untrusted contexts: page rules,
// domain guard and recurrence must all pass.
func (c *Controller) eligible() bool {
	if !c.survey.Active || len(c.survey.Elements) == 0 {
		return false
	}
	if !MatchesPage(c.visit.URL, c.visit.Pathname, c.survey.PageRules) {
		return false
	}
	if !DomainAllowed(c.visit.Hostname, c.baseDomain) {
		return false
	}
	return c.gate.Check(c.survey.ID, c.survey.Target)
}

func (c *Controller) show() {
	c.mu.Lock()
	if c.state != StateArmed || len(c.survey.Elements) == 0 {
		c.mu.Unlock()
		return
	}

	if !c.hitTracked && !c.visit.Preview {
		c.hitTracked = true
		c.reporter.RecordHit(c.telemetryEvent())
	}

	if c.survey.Design.SoftGateEnabled() {
		c.state = StateSoftGate
		c.mu.Unlock()
		return
	}
	c.beginLocked()
	c.mu.Unlock()
}

// Accept is the soft gate's "yes": the visitor agreed to see the questions.
func (c *Controller) Accept() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSoftGate {
		return
	}
	c.beginLocked()
}

// Reject is the soft gate's "no": the widget removes itself and nothing is
// recorded.
func (c *Controller) Reject() {
	c.mu.Lock()
	if c.state != StateSoftGate {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Close()
}

func (c *Controller) beginLocked() {
	if !c.visit.Preview {
		c.reporter.RecordExposure(c.telemetryEvent())
	}
	c.runner = NewRunner(c.survey.Elements, c.submit, c.completed)
	c.state = StateOpen
}

func (c *Controller) submit(responses map[int]any) error {
	byIndex := make(map[string]any, len(responses))
	for _, el := range c.survey.Elements {
		if v, ok := responses[el.ID]; ok {
			byIndex[strconv.Itoa(el.OrderIndex)] = v
		}
	}

	err := c.reporter.SubmitResponse(Submission{
		SurveyID:     c.survey.ID,
		SessionID:    c.visit.SessionID,
		Responses:    byIndex,
		URL:          c.visit.URL,
		UserAgent:    c.visit.UserAgent,
		TriggerMode:  c.survey.Target.TriggerMode,
		CustomParams: c.visit.CustomParams,
		Time:         time.Now(),
	})
	if err != nil {
		return err
	}

	// only a server-accepted response counts against recurrence
	c.gate.MarkResponded(c.survey.ID, c.survey.Target)
	return nil
}

func (c *Controller) completed() {
	c.mu.Lock()
	c.state = StateCompleted
	c.closeTimer = time.AfterFunc(c.autoClose, c.Close)
	c.mu.Unlock()
}

// Close tears the widget down: the trigger listeners are detached, any
// pending auto-close is stopped and the controller is unregistered. In-flight
// telemetry is left to complete or fail silently.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	cancel := c.cancelTrigger
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	mountMu.Lock()
	if mounted[c.survey.ID] == c {
		delete(mounted, c.survey.ID)
	}
	mountMu.Unlock()
}

func (c *Controller) telemetryEvent() model.TelemetryEvent {
	return model.TelemetryEvent{
		SurveyID:     c.survey.ID,
		SessionID:    c.visit.SessionID,
		Route:        c.visit.Route,
		Device:       ClassifyDevice(c.visit.UserAgent),
		UserAgent:    c.visit.UserAgent,
		TriggerMode:  c.survey.Target.TriggerMode,
		CustomParams: c.visit.CustomParams,
	}
}
