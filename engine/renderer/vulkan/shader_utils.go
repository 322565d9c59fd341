package vulkan

import (
	"encoding/binary"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
)

const spirvMagic = 0x07230203

func (d *Device) newShaderModule(name string, code []byte) (vk.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 || binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, core.CreationFailed(nil, "%s shader is not SPIR-V (%d bytes)", name, len(code))
	}
	// copy so the words are aligned
	words := make([]byte, len(code))
	copy(words, code)
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(words)),
		PCode:    sliceUint32(words),
	}
	var module vk.ShaderModule
	if err := created(vk.CreateShaderModule(d.handle, &info, nil, &module), "%s shader module", name); err != nil {
		return nil, err
	}
	return module, nil
}

func shaderStage(stage vk.ShaderStageFlagBits, module vk.ShaderModule) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  safeString("main"),
	}
}
