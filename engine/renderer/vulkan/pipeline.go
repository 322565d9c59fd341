package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

// Pipeline holds the shader modules of one pipeline kind. The Vulkan
// pipeline objects are built per attachment format pair the first time the
// kind is bound inside a pass using them.
type Pipeline struct {
	device   *Device
	kind     gpu.PipelineKind
	vertex   vk.ShaderModule
	fragment vk.ShaderModule

	mutex    sync.Mutex
	variants map[passKey]vk.Pipeline
}

var _ gpu.Pipeline = (*Pipeline)(nil)

func (d *Device) NewPipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.Kind >= gpu.PipelineKindCount {
		return nil, core.CreationFailed(nil, "unknown pipeline kind %d", desc.Kind)
	}
	p := &Pipeline{device: d, kind: desc.Kind, variants: make(map[passKey]vk.Pipeline)}
	var err error
	if p.vertex, err = d.newShaderModule(desc.Kind.String()+" vertex", desc.VertexShader); err != nil {
		return nil, err
	}
	if p.fragment, err = d.newShaderModule(desc.Kind.String()+" fragment", desc.FragmentShader); err != nil {
		p.Destroy()
		return nil, err
	}
	core.LogDebug("%s pipeline shaders loaded", desc.Kind)
	return p, nil
}

func (p *Pipeline) Kind() gpu.PipelineKind { return p.kind }

func (p *Pipeline) Destroy() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for key, handle := range p.variants {
		vk.DestroyPipeline(p.device.handle, handle, nil)
		delete(p.variants, key)
	}
	if p.vertex != nil {
		vk.DestroyShaderModule(p.device.handle, p.vertex, nil)
		p.vertex = nil
	}
	if p.fragment != nil {
		vk.DestroyShaderModule(p.device.handle, p.fragment, nil)
		p.fragment = nil
	}
}

// variant returns the pipeline compatible with the given pass. Load and
// clear passes are compatible with each other, so the key drops clear.
func (p *Pipeline) variant(pass passKey) (vk.Pipeline, error) {
	pass.clear = false
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if handle, ok := p.variants[pass]; ok {
		return handle, nil
	}
	renderPass, err := p.device.renderPass(pass)
	if err != nil {
		return nil, err
	}
	handle, err := p.build(renderPass, pass.depth != vk.FormatUndefined)
	if err != nil {
		return nil, err
	}
	p.variants[pass] = handle
	return handle, nil
}

type vertexLayout struct {
	stride     uint32
	attributes []vk.VertexInputAttributeDescription
}

func attribute(location uint32, format vk.Format, offset uintptr) vk.VertexInputAttributeDescription {
	return vk.VertexInputAttributeDescription{
		Location: location,
		Binding:  0,
		Format:   format,
		Offset:   uint32(offset),
	}
}

func layoutFor(kind gpu.PipelineKind) vertexLayout {
	switch kind {
	case gpu.PipelineAsteroid:
		var v metadata.Vertex
		return vertexLayout{
			stride: uint32(unsafe.Sizeof(v)),
			attributes: []vk.VertexInputAttributeDescription{
				attribute(0, vk.FormatR32g32b32Sfloat, unsafe.Offsetof(v.X)),
				attribute(1, vk.FormatR32g32b32Sfloat, unsafe.Offsetof(v.NX)),
			},
		}
	case gpu.PipelineSkybox:
		var v metadata.SkyboxVertex
		return vertexLayout{
			stride: uint32(unsafe.Sizeof(v)),
			attributes: []vk.VertexInputAttributeDescription{
				attribute(0, vk.FormatR32g32b32Sfloat, unsafe.Offsetof(v.X)),
				attribute(1, vk.FormatR32g32Sfloat, unsafe.Offsetof(v.U)),
				attribute(2, vk.FormatR32Sfloat, unsafe.Offsetof(v.Face)),
			},
		}
	}
	var v metadata.SpriteVertex
	return vertexLayout{
		stride: uint32(unsafe.Sizeof(v)),
		attributes: []vk.VertexInputAttributeDescription{
			attribute(0, vk.FormatR32g32Sfloat, unsafe.Offsetof(v.X)),
			attribute(1, vk.FormatR32g32Sfloat, unsafe.Offsetof(v.U)),
		},
	}
}

func (p *Pipeline) build(renderPass vk.RenderPass, withDepth bool) (vk.Pipeline, error) {
	layout := layoutFor(p.kind)
	overlay := p.kind == gpu.PipelineSprite || p.kind == gpu.PipelineFont

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    layout.stride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(layout.attributes)),
		PVertexAttributeDescriptions:    layout.attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	cull := vk.CullModeBackBit
	if p.kind != gpu.PipelineAsteroid {
		// the skybox is seen from inside, overlay quads have no winding
		cull = vk.CullModeNone
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// reverse Z: near is 1, far is 0
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpGreaterOrEqual,
	}
	if withDepth && !overlay {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		if p.kind == gpu.PipelineSkybox {
			// drawn at the far plane after the clear
			depthStencil.DepthWriteEnable = vk.False
		}
	}

	blend := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if overlay {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		blend.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.AlphaBlendOp = vk.BlendOpAdd
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{
			shaderStage(vk.ShaderStageVertexBit, p.vertex),
			shaderStage(vk.ShaderStageFragmentBit, p.fragment),
		},
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              p.device.pipelineLayout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := created(vk.CreateGraphicsPipelines(p.device.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines),
		"%s pipeline", p.kind); err != nil {
		return nil, err
	}
	core.LogDebug("%s pipeline built (depth %t)", p.kind, withDepth)
	return pipelines[0], nil
}
