package core

import "sync"

type EventCode int

const (
	EventApplicationQuit EventCode = iota + 1
	EventWindowResized
	EventWindowMinimized
	EventWindowRestored
)

func (c EventCode) String() string {
	switch c {
	case EventApplicationQuit:
		return "application_quit"
	case EventWindowResized:
		return "window_resized"
	case EventWindowMinimized:
		return "window_minimized"
	case EventWindowRestored:
		return "window_restored"
	}
	return "unknown"
}

// EventContext carries the payload of an event. Which fields are set
// depends on the code; resize events fill Width and Height.
type EventContext struct {
	Code   EventCode
	Sender interface{}
	Width  uint32
	Height uint32
}

// FnOnEvent handles an event. Returning true marks it handled and stops it
// from reaching the remaining listeners.
type FnOnEvent func(listener interface{}, ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events to listeners in registration order.
type EventBus struct {
	mutex      sync.RWMutex
	registered map[EventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[EventCode][]registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. A listener may
 * only be registered once per code.
 * @returns true if the listener was registered.
 */
func (b *EventBus) Register(code EventCode, listener interface{}, onEvent FnOnEvent) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

/**
 * Unregister the listener from the provided code.
 * @returns true if a registration was removed.
 */
func (b *EventBus) Unregister(code EventCode, listener interface{}) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers ctx to the listeners of ctx.Code and reports whether one of
// them handled it.
func (b *EventBus) Fire(ctx EventContext) bool {
	b.mutex.RLock()
	events := append([]registeredEvent(nil), b.registered[ctx.Code]...)
	b.mutex.RUnlock()
	for _, e := range events {
		if e.callback(e.listener, ctx) {
			return true
		}
	}
	return false
}

// Clear drops every registration.
func (b *EventBus) Clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.registered = make(map[EventCode][]registeredEvent)
}
