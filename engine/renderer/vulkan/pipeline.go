package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// CameraPushConstantSize is the byte size of the view projection matrix
// pushed once per secondary command buffer.
const CameraPushConstantSize = uint32(math.Mat4Size)

/**
 * @brief The layout shared by every graphics pipeline: set 0 binding 0 is
 * the dynamic uniform holding a node's world matrix, and the vertex stage
 * receives the camera matrix as a push constant.
 */
type VulkanPipelineLayout struct {
	/** @brief The layout of the per node descriptor set. */
	DescriptorSetLayout vk.DescriptorSetLayout
	/** @brief The pipeline layout handle. */
	Handle vk.PipelineLayout
}

func NewPipelineLayout(device vk.Device) (*VulkanPipelineLayout, error) {
	out := &VulkanPipelineLayout{}

	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}
	var setLayout vk.DescriptorSetLayout
	if err := vkError(vk.CreateDescriptorSetLayout(device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &setLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	out.DescriptorSetLayout = setLayout

	ranges := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       CameraPushConstantSize,
	}}
	var layout vk.PipelineLayout
	if err := vkError(vk.CreatePipelineLayout(device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout), "vkCreatePipelineLayout"); err != nil {
		vk.DestroyDescriptorSetLayout(device, setLayout, nil)
		return nil, err
	}
	out.Handle = layout
	return out, nil
}

func (p *VulkanPipelineLayout) Destroy(device vk.Device) {
	if p.Handle != nil {
		vk.DestroyPipelineLayout(device, p.Handle, nil)
		p.Handle = nil
	}
	if p.DescriptorSetLayout != nil {
		vk.DestroyDescriptorSetLayout(device, p.DescriptorSetLayout, nil)
		p.DescriptorSetLayout = nil
	}
}

type VulkanPipelineConfig struct {
	RenderPass vk.RenderPass
	Layout     vk.PipelineLayout
	Cache      vk.PipelineCache
	Stages     []vk.PipelineShaderStageCreateInfo
	Topology   vk.PrimitiveTopology
	Viewport   vk.Viewport
	Scissor    vk.Rect2D
}

// vertexAttributes describes math.Vertex: five vec3 attributes followed by
// the vec4 colour, at locations 0 to 5.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	var v math.Vertex
	vec3 := vk.FormatR32g32b32Sfloat
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Position))},
		{Location: 1, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Normal))},
		{Location: 2, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Tangent))},
		{Location: 3, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.BiTangent))},
		{Location: 4, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.TexCoord))},
		{Location: 5, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: uint32(unsafe.Offsetof(v.Color))},
	}
}

func topologyToVulkan(t scene.Topology) vk.PrimitiveTopology {
	switch t {
	case scene.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	case scene.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case scene.TopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case scene.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	}
	return vk.PrimitiveTopologyTriangleList
}

// NewGraphicsPipeline builds a pipeline with a fixed viewport, back face
// culling and a less-than depth test. It has to be rebuilt whenever the
// swapchain extent changes.
func NewGraphicsPipeline(device vk.Device, config *VulkanPipelineConfig) (vk.Pipeline, error) {
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{config.Viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{config.Scissor},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	attributes := vertexAttributes()
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    math.VertexSize,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               config.Topology,
		PrimitiveRestartEnable: vk.False,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              config.Layout,
		RenderPass:          config.RenderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vkError(vk.CreateGraphicsPipelines(device, config.Cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		return vk.NullPipeline, err
	}
	return pipelines[0], nil
}
