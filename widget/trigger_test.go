package widget

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/canvass/canvass/model"
	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduler_TimeTrigger(t *testing.T) {
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID:   1,
		Target:     model.Target{TriggerMode: model.TriggerTime, DelaySeconds: 0},
		Revalidate: func() bool { return true },
		Show:       func() { shown.Add(1) },
	}
	cancel := s.Start()
	defer cancel()

	waitFor(t, func() bool { return shown.Load() == 1 })
}

func TestScheduler_RevalidateVeto(t *testing.T) {
	var shown atomic.Int32
	var checked atomic.Int32
	s := &Scheduler{
		SurveyID:   1,
		Target:     model.Target{TriggerMode: model.TriggerTime},
		Revalidate: func() bool { checked.Add(1); return false },
		Show:       func() { shown.Add(1) },
	}
	cancel := s.Start()
	defer cancel()

	waitFor(t, func() bool { return checked.Load() == 1 })
	assert.Equal(t, int32(0), shown.Load())
}

func TestScheduler_TrustedSkipsRevalidation(t *testing.T) {
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID:   1,
		Target:     model.Target{TriggerMode: model.TriggerTime},
		Trusted:    true,
		Revalidate: func() bool { return false },
		Show:       func() { shown.Add(1) },
	}
	cancel := s.Start()
	defer cancel()

	waitFor(t, func() bool { return shown.Load() == 1 })
}

func TestScheduler_CancelStopsTimer(t *testing.T) {
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID: 1,
		Target:   model.Target{TriggerMode: model.TriggerTime, DelaySeconds: 1},
		Show:     func() { shown.Add(1) },
	}
	cancel := s.Start()
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), shown.Load())
}

func TestScheduler_EventTriggerScoped(t *testing.T) {
	bus := NewEventBus()
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID: 5,
		Target:   model.Target{TriggerMode: model.TriggerEvent},
		Bus:      bus,
		Trusted:  true,
		Show:     func() { shown.Add(1) },
	}
	cancel := s.Start()
	defer cancel()

	// scoped event with no survey in the payload fires
	bus.Publish(Event{Name: SurveyShowEvent(5)})
	waitFor(t, func() bool { return shown.Load() == 1 })

	// scoped event naming a different survey does not
	bus.Publish(Event{Name: SurveyShowEvent(5), SurveyID: 9})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), shown.Load())
}

func TestScheduler_EventTriggerGlobal(t *testing.T) {
	bus := NewEventBus()
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID: 5,
		Target:   model.Target{TriggerMode: model.TriggerEvent},
		Bus:      bus,
		Trusted:  true,
		Show:     func() { shown.Add(1) },
	}
	cancel := s.Start()
	defer cancel()

	// the shared event only fires when the payload names this survey
	bus.Publish(Event{Name: GlobalShowEvent})
	bus.Publish(Event{Name: GlobalShowEvent, SurveyID: 9})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), shown.Load())

	bus.Publish(Event{Name: GlobalShowEvent, SurveyID: 5})
	waitFor(t, func() bool { return shown.Load() == 1 })
}

func TestScheduler_CancelDetachesListeners(t *testing.T) {
	bus := NewEventBus()
	var shown atomic.Int32
	s := &Scheduler{
		SurveyID: 5,
		Target:   model.Target{TriggerMode: model.TriggerEvent},
		Bus:      bus,
		Trusted:  true,
		Show:     func() { shown.Add(1) },
	}
	cancel := s.Start()
	cancel()
	cancel() // idempotent

	bus.Publish(Event{Name: SurveyShowEvent(5), SurveyID: 5})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), shown.Load())
}

func TestEventBus_SubscribeDetach(t *testing.T) {
	bus := NewEventBus()
	ch, detach := bus.Subscribe("custom:signup")

	bus.Publish(Event{Name: "custom:signup", SurveyID: 2})
	ev := <-ch
	assert.Equal(t, 2, ev.SurveyID)

	detach()
	bus.Publish(Event{Name: "custom:signup"})
	select {
	case <-ch:
		t.Fatal("detached subscriber still received an event")
	case <-time.After(50 * time.Millisecond):
	}
}
