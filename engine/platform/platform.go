package platform

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/asteroids/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	fullscreen bool
	// windowed placement restored when leaving fullscreen
	windowedX, windowedY          int
	windowedWidth, windowedHeight int
}

func New() *Platform {
	return &Platform{
		Window: nil,
	}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32, fullscreen bool) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return core.CreationFailed(err, "glfw")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	p.windowedX, p.windowedY = int(x), int(y)
	p.windowedWidth, p.windowedHeight = int(width), int(height)

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		mode := monitor.GetVideoMode()
		width, height = uint32(mode.Width), uint32(mode.Height)
	}
	window, err := glfw.CreateWindow(int(width), int(height), applicationName, monitor, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		glfw.Terminate()
		return core.CreationFailed(err, "window %dx%d", width, height)
	}
	p.Window = window
	p.fullscreen = fullscreen

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetMouseButtonCallback(mouseButtonCallback)
	p.Window.SetCursorPosCallback(cursorPosCallback)
	p.Window.SetScrollCallback(scrollCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetCloseCallback(closeCallback)
	if !fullscreen {
		p.Window.SetPos(int(x), int(y))
	}
	p.Window.Show()

	core.LogInfo("window %q created (%dx%d, fullscreen %t)", applicationName, width, height, fullscreen)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// RequiredExtensions lists the Vulkan instance extensions the window system
// needs for surface creation.
func (p *Platform) RequiredExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// Surface is handed to the renderer for swap chain creation.
func (p *Platform) Surface() interface{} {
	return p.Window
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) SetTitle(title string) {
	p.Window.SetTitle(title)
}

// ToggleFullscreen moves the window between the primary monitor and its
// last windowed placement. The framebuffer callback reports the new size.
func (p *Platform) ToggleFullscreen() {
	if p.fullscreen {
		p.Window.SetMonitor(nil, p.windowedX, p.windowedY, p.windowedWidth, p.windowedHeight, 0)
		p.fullscreen = false
		return
	}
	p.windowedX, p.windowedY = p.Window.GetPos()
	p.windowedWidth, p.windowedHeight = p.Window.GetSize()
	monitor := glfw.GetPrimaryMonitor()
	mode := monitor.GetVideoMode()
	p.Window.SetMonitor(monitor, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	p.fullscreen = true
}

func (p *Platform) Sleep(ms float64) {
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
}

// translateKey maps printable glfw keys to their ASCII code.
func translateKey(key glfw.Key) (core.KeyCode, bool) {
	switch {
	case key == glfw.KeyEscape:
		return core.KEY_ESCAPE, true
	case key >= glfw.KeySpace && key <= glfw.KeyGraveAccent:
		return core.KeyCode(key), true
	}
	return 0, false
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code, ok := translateKey(key)
	if !ok {
		return
	}
	core.InputProcessKey(code, action == glfw.Press)
}

func mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	core.InputProcessButton(b, action == glfw.Press)
}

func cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	if xpos < 0 || ypos < 0 {
		return
	}
	core.InputProcessMouseMove(uint16(xpos), uint16(ypos))
}

func scrollCallback(w *glfw.Window, xoff, yoff float64) {
	core.InputProcessMouseWheel(int8(yoff))
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: uint32(width), WindowHeight: uint32(height)},
	})
}

func closeCallback(w *glfw.Window) {
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}
