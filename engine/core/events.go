package core

import "sync"

// EventCode identifies the kind of an engine event.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = iota + 1
	// Keyboard key pressed. Data: *KeyEvent
	EVENT_CODE_KEY_PRESSED
	// Keyboard key released. Data: *KeyEvent
	EVENT_CODE_KEY_RELEASED
	// Mouse button pressed. Data: *MouseEvent
	EVENT_CODE_BUTTON_PRESSED
	// Mouse button released. Data: *MouseEvent
	EVENT_CODE_BUTTON_RELEASED
	// Mouse moved. Data: *MouseEvent
	EVENT_CODE_MOUSE_MOVED
	// Mouse wheel. Data: *MouseEvent
	EVENT_CODE_MOUSE_WHEEL
	// Framebuffer resized by the OS. Data: *SystemEvent
	EVENT_CODE_RESIZED
	// Settings file changed on disk. Data: the decoded settings value
	EVENT_CODE_SETTINGS_CHANGED

	MAX_EVENT_CODE
)

type EventContext struct {
	Type EventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   uint16
	PosY   uint16
	Scroll int8
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

// FnOnEvent receives a fired event. Returning true stops propagation to
// listeners registered after this one.
type FnOnEvent func(context EventContext) bool

type eventSystemState struct {
	mutex      sync.Mutex
	registered [MAX_EVENT_CODE][]FnOnEvent
	queue      []EventContext
}

var onceEvent sync.Once
var eventState *eventSystemState = nil

func EventSystemInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{}
	})
	return eventState != nil
}

func EventSystemShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	for i := range eventState.registered {
		eventState.registered[i] = nil
	}
	eventState.queue = nil
	return nil
}

// EventRegister adds a listener for code.
func EventRegister(code EventCode, onEvent FnOnEvent) bool {
	if eventState == nil || code >= MAX_EVENT_CODE || onEvent == nil {
		return false
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	eventState.registered[code] = append(eventState.registered[code], onEvent)
	return true
}

// EventFire queues an event. Listeners run on the next EventDispatch, which
// the frame loop calls between frames so handlers never race a frame in flight.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	if len(eventState.registered[context.Type]) == 0 {
		return false
	}
	eventState.queue = append(eventState.queue, context)
	return true
}

// EventDispatch delivers all queued events in firing order and returns how
// many were delivered.
func EventDispatch() int {
	if eventState == nil {
		return 0
	}
	eventState.mutex.Lock()
	pending := eventState.queue
	eventState.queue = nil
	eventState.mutex.Unlock()

	for _, context := range pending {
		eventState.mutex.Lock()
		listeners := append([]FnOnEvent(nil), eventState.registered[context.Type]...)
		eventState.mutex.Unlock()
		for _, l := range listeners {
			if l(context) {
				break
			}
		}
	}
	return len(pending)
}
