package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions, ASCII where one exists.
type KeyCode uint16

const (
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_F         KeyCode = 0x46
	KEY_I         KeyCode = 0x49
	KEY_M         KeyCode = 0x4D
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_V         KeyCode = 0x56
	KEYS_MAX_KEYS KeyCode = 0x100
)

type MouseState struct {
	X       uint16
	Y       uint16
	Buttons [BUTTON_MAX_BUTTONS]bool
}

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input state structure that holds current and previous states for keyboard and mouse
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
}

var onceInput sync.Once
var inputMutex sync.Mutex
var inputState *InputState = nil

func InputInitialize() error {
	onceInput.Do(func() {
		inputState = &InputState{}
	})
	LogInfo("Input subsystem initialized.")
	return nil
}

// InputUpdate copies the current states to the previous ones. Called once
// per frame after everything that reads input.
func InputUpdate() {
	if inputState == nil {
		return
	}
	inputMutex.Lock()
	defer inputMutex.Unlock()
	inputState.KeyboardPrevious = inputState.KeyboardCurrent
	inputState.MousePrevious = inputState.MouseCurrent
}

// InputMouseDelta returns the cursor movement since the last InputUpdate.
func InputMouseDelta() (int32, int32) {
	if inputState == nil {
		return 0, 0
	}
	inputMutex.Lock()
	defer inputMutex.Unlock()
	return int32(inputState.MouseCurrent.X) - int32(inputState.MousePrevious.X),
		int32(inputState.MouseCurrent.Y) - int32(inputState.MousePrevious.Y)
}

func InputProcessKey(key KeyCode, pressed bool) {
	if inputState == nil || key >= KEYS_MAX_KEYS {
		return
	}
	inputMutex.Lock()
	changed := inputState.KeyboardCurrent.Keys[key] != pressed
	inputState.KeyboardCurrent.Keys[key] = pressed
	inputMutex.Unlock()
	if !changed {
		return
	}

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	EventFire(EventContext{
		Type: code,
		Data: &KeyEvent{KeyCode: key},
	})
}

func InputProcessButton(button Button, pressed bool) {
	if inputState == nil || button >= BUTTON_MAX_BUTTONS {
		return
	}
	inputMutex.Lock()
	changed := inputState.MouseCurrent.Buttons[button] != pressed
	inputState.MouseCurrent.Buttons[button] = pressed
	x, y := inputState.MouseCurrent.X, inputState.MouseCurrent.Y
	inputMutex.Unlock()
	if !changed {
		return
	}

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	EventFire(EventContext{
		Type: code,
		Data: &MouseEvent{Button: button, PosX: x, PosY: y},
	})
}

func InputProcessMouseMove(x uint16, y uint16) {
	if inputState == nil {
		return
	}
	inputMutex.Lock()
	inputState.MouseCurrent.X = x
	inputState.MouseCurrent.Y = y
	inputMutex.Unlock()
}

func InputProcessMouseWheel(zDelta int8) {
	EventFire(EventContext{
		Type: EVENT_CODE_MOUSE_WHEEL,
		Data: &MouseEvent{Scroll: zDelta},
	})
}
