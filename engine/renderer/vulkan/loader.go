package vulkan

import (
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
)

var (
	loadOnce sync.Once
	loadErr  error
)

// Init resolves the Vulkan entry points through glfw. glfw must be
// initialized and Init must run on the main thread before NewDevice. Only
// the first call does any work.
func Init() error {
	loadOnce.Do(func() {
		if !glfw.VulkanSupported() {
			loadErr = core.CreationFailed(nil, "no Vulkan loader found")
			return
		}
		procAddr := glfw.GetVulkanGetInstanceProcAddress()
		if procAddr == nil {
			loadErr = core.CreationFailed(nil, "GetInstanceProcAddress is nil")
			return
		}
		vk.SetGetInstanceProcAddr(procAddr)
		if err := vk.Init(); err != nil {
			loadErr = core.CreationFailed(err, "initializing vulkan")
		}
	})
	return loadErr
}
