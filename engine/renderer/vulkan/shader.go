package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/scene"
)

// VulkanShader is the graphics pipeline built for one scene shader.
type VulkanShader struct {
	Handle             scene.ShaderHandle
	VertexShaderName   string
	FragmentShaderName string
	Topology           scene.Topology
	Pipeline           vk.Pipeline

	vertexModule   vk.ShaderModule
	fragmentModule vk.ShaderModule
}

func newVulkanShader(s *scene.Shader) *VulkanShader {
	return &VulkanShader{
		Handle:             s.Handle(),
		VertexShaderName:   s.VertexShaderName,
		FragmentShaderName: s.FragmentShaderName,
		Topology:           s.Topology,
	}
}

// Uses reports whether the shader is built from the named module.
func (s *VulkanShader) Uses(module string) bool {
	return s.VertexShaderName == module || s.FragmentShaderName == module
}

func (s *VulkanShader) Record(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, s.Pipeline)
}

func (s *VulkanShader) loadModule(ctx *VulkanContext, name string) (vk.ShaderModule, error) {
	res, err := ctx.Shaders.Load(name)
	if err != nil {
		return nil, err
	}
	module, err := ctx.Device.CreateShaderModule(res.Code)
	if err != nil {
		return nil, errors.Wrapf(err, "shader module %s", name)
	}
	return module, nil
}

func (s *VulkanShader) build(ctx *VulkanContext) error {
	device := ctx.Device.LogicalDevice
	var err error
	if s.vertexModule, err = s.loadModule(ctx, s.VertexShaderName); err != nil {
		return err
	}
	if s.fragmentModule, err = s.loadModule(ctx, s.FragmentShaderName); err != nil {
		s.destroy(device)
		return err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: s.vertexModule,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: s.fragmentModule,
			PName:  VulkanSafeString("main"),
		},
	}
	pipeline, err := NewGraphicsPipeline(device, &VulkanPipelineConfig{
		RenderPass: ctx.RenderPass.Handle,
		Layout:     ctx.Layout.Handle,
		Cache:      ctx.Device.PipelineCache,
		Stages:     stages,
		Topology:   topologyToVulkan(s.Topology),
		Viewport:   ctx.Swapchain.Viewport(),
		Scissor:    ctx.Swapchain.Scissor(),
	})
	if err != nil {
		s.destroy(device)
		return errors.Wrapf(err, "pipeline for %s/%s", s.VertexShaderName, s.FragmentShaderName)
	}
	s.Pipeline = pipeline
	return nil
}

func (s *VulkanShader) destroy(device vk.Device) {
	if s.Pipeline != vk.NullPipeline {
		vk.DestroyPipeline(device, s.Pipeline, nil)
		s.Pipeline = vk.NullPipeline
	}
	if s.vertexModule != nil {
		vk.DestroyShaderModule(device, s.vertexModule, nil)
		s.vertexModule = nil
	}
	if s.fragmentModule != nil {
		vk.DestroyShaderModule(device, s.fragmentModule, nil)
		s.fragmentModule = nil
	}
}
