package widget

import (
	"strconv"
	"sync"
	"time"

	"github.com/canvass/canvass/model"
)

// GlobalShowEvent is the shared event name any survey can be shown through,
// provided the payload names the survey.
const GlobalShowEvent = "canvass:show"

// SurveyShowEvent is the survey-scoped event name for one survey.
func SurveyShowEvent(surveyID int) string {
	return "canvass:show:" + strconv.Itoa(surveyID)
}

// Event is a custom application-raised event consumed by event-triggered
// surveys. SurveyID zero means the payload did not name a survey.
type Event struct {
	Name     string
	SurveyID int
	Params   map[string]any
}

// EventBus fans application events out to subscribed widgets.
type EventBus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{subs: map[string]map[int]chan Event{}}
}

// Subscribe returns a channel receiving events published under name, and a
// detach function. Detach is idempotent.
func (b *EventBus) Subscribe(name string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[name] == nil {
		b.subs[name] = map[int]chan Event{}
	}
	id := b.next
	b.next++
	ch := make(chan Event, 4)
	b.subs[name][id] = ch

	var once sync.Once
	detach := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[name], id)
			b.mu.Unlock()
		})
	}
	return ch, detach
}

func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.Name] {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop rather than block the publisher
		}
	}
}

// Scheduler decides when to attempt showing a survey: after a fixed one-shot
// delay, or upon a matching custom event.
type Scheduler struct {
	SurveyID int
	Target   model.Target
	Bus      *EventBus

	// Trusted skips re-validation in preview, in-app and api-key contexts.
	Trusted bool
	// Revalidate re-checks page rules, domain and recurrence at fire time.
	Revalidate func() bool
	// Show presents the widget.
	Show func()
}

// Start arms the scheduler and returns a cancel function. Cancel detaches
// event listeners and stops any pending timer; it must be called when the
// widget is dismissed so handlers do not leak across repeated loads.
func (s *Scheduler) Start() (cancel func()) {
	if s.Target.TriggerMode == model.TriggerEvent {
		return s.startEvent()
	}
	return s.startTimer()
}

func (s *Scheduler) startTimer() func() {
	delay := s.Target.DelaySeconds
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(time.Duration(delay)*time.Second, func() {
		s.fire()
	})
	return func() { timer.Stop() }
}

func (s *Scheduler) startEvent() func() {
	scoped, detachScoped := s.Bus.Subscribe(SurveyShowEvent(s.SurveyID))
	global, detachGlobal := s.Bus.Subscribe(GlobalShowEvent)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev := <-scoped:
				if ev.SurveyID == 0 || ev.SurveyID == s.SurveyID {
					s.fire()
				}
			case ev := <-global:
				if ev.SurveyID == s.SurveyID {
					s.fire()
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			detachScoped()
			detachGlobal()
			close(done)
		})
	}
}

func (s *Scheduler) fire() {
	if !s.Trusted && s.Revalidate != nil && !s.Revalidate() {
		return
	}
	s.Show()
}
