package vulkan

import (
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/assets"
	"github.com/spaghettifunk/vkframe/engine/containers"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/platform"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// Renderer draws a scene into a window. Command recording is spread over
// a fixed number of workers per frame; each owns one command pool and one
// secondary command buffer per swapchain image.
type Renderer struct {
	cfg     *core.EngineConfig
	threads int
	log     *log.Logger

	ctx       *VulkanContext
	resources *ResourceManager
	scene     *scene.Scene

	recorders      [][]*commandSlot // [worker][image]
	primaries      []*commandSlot   // [image]
	renderComplete []vk.Semaphore   // [image]

	perf        *core.PerfLog
	clock       *core.Clock
	initialized bool
}

func NewRenderer(cfg *core.EngineConfig) *Renderer {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	return &Renderer{
		cfg:     cfg,
		threads: threads,
		log:     core.Logger("render"),
		clock:   core.NewClock(),
	}
}

// Init creates everything the renderer needs to draw into window.
func (r *Renderer) Init(window platform.Window) error {
	if r.initialized {
		return errors.Wrap(core.ErrAlreadyInitialized, "renderer")
	}

	shaders, err := assets.NewShaderLibrary(r.cfg.ShaderDir, true)
	if err != nil {
		return err
	}
	r.ctx = newContext(shaders)
	if err := r.ctx.init(window, r.cfg); err != nil {
		r.teardown()
		return err
	}

	images := r.ctx.Swapchain.ImageCount()
	r.resources, err = NewResourceManager(&deviceBackend{ctx: r.ctx}, images)
	if err != nil {
		r.teardown()
		return err
	}
	if err := r.createFrameResources(images); err != nil {
		r.teardown()
		return err
	}

	if r.cfg.PerfLog != "" {
		if r.perf, err = core.OpenPerfLog(r.cfg.PerfLog); err != nil {
			r.teardown()
			return err
		}
	}

	r.initialized = true
	r.clock.Start()
	r.log.Info("renderer ready", "device", r.ctx.Device.Name(), "threads", r.threads, "images", images)
	return nil
}

func (r *Renderer) createFrameResources(images int) error {
	device := r.ctx.Device
	r.recorders = make([][]*commandSlot, r.threads)
	for w := range r.recorders {
		for i := 0; i < images; i++ {
			s, err := newCommandSlot(device, false)
			if err != nil {
				return err
			}
			r.recorders[w] = append(r.recorders[w], s)
		}
	}
	for i := 0; i < images; i++ {
		s, err := newCommandSlot(device, true)
		if err != nil {
			return err
		}
		r.primaries = append(r.primaries, s)
		sem, err := newSemaphore(device.LogicalDevice)
		if err != nil {
			return err
		}
		r.renderComplete = append(r.renderComplete, sem)
	}
	return nil
}

// SetScene makes s the scene drawn by Tick. Shadows of the previous scene
// are released.
func (r *Renderer) SetScene(s *scene.Scene) {
	if r.scene == s {
		return
	}
	if r.scene != nil {
		r.scene.RemoveReleaseListener(r.resources)
		if r.resources != nil {
			if err := r.ctx.Device.WaitIdle(); err != nil {
				r.log.Error("device wait idle failed", "err", err)
			}
			r.resources.ReleaseAll()
		}
	}
	r.scene = s
	if s != nil && r.resources != nil {
		s.AddReleaseListener(r.resources)
	}
}

func (r *Renderer) Scene() *scene.Scene {
	return r.scene
}

func (r *Renderer) Resources() *ResourceManager {
	return r.resources
}

func (r *Renderer) MainDeviceName() string {
	if r.ctx == nil || r.ctx.Device == nil {
		return ""
	}
	return r.ctx.Device.Name()
}

// Tick renders and presents one frame. ErrSwapchainOutOfDate asks the
// caller to Resize.
func (r *Renderer) Tick() error {
	if !r.initialized {
		return errors.Wrap(core.ErrNotInitialized, "renderer")
	}
	if r.scene == nil {
		return errors.Wrap(core.ErrInvalidState, "no scene to render")
	}
	if err := r.reloadShaders(); err != nil {
		return err
	}

	slot, err := r.ctx.Swapchain.AcquireNextImage()
	if err != nil {
		return err
	}
	if err := r.resources.StartFrame(slot); err != nil {
		return err
	}

	sceneShader, ok := r.scene.ShaderByHandle(r.scene.Shader())
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "scene shader")
	}
	shader, err := r.resources.PrepareShader(sceneShader)
	if err != nil {
		return err
	}

	inheritance := &vk.CommandBufferInheritanceInfo{
		SType:       vk.StructureTypeCommandBufferInheritanceInfo,
		RenderPass:  r.ctx.RenderPass.Handle,
		Subpass:     0,
		Framebuffer: r.ctx.Swapchain.Framebuffer(slot),
	}
	viewProjection := *r.scene.Camera().ViewProjection()
	queue := containers.NewWorkQueue(r.scene.Drawables())
	err = runWorkers(r.threads, func(worker int) error {
		return r.record(r.recorders[worker][slot], slot, queue, shader, &viewProjection, inheritance)
	})
	if err != nil {
		return err
	}

	transferDone, err := r.resources.EndFrame()
	if err != nil {
		return err
	}
	if err := r.submit(slot, transferDone); err != nil {
		return err
	}

	frame := r.clock.Restart()
	if r.perf != nil {
		if err := r.perf.Record(frame); err != nil {
			r.log.Warn("perf log write failed", "err", err)
		}
	}
	return nil
}

// record fills the secondary buffer of one worker with every drawable it
// manages to take from queue.
func (r *Renderer) record(cs *commandSlot, slot uint32, queue *containers.WorkQueue[*scene.Drawable], shader *VulkanShader, viewProjection *math.Mat4, inheritance *vk.CommandBufferInheritanceInfo) error {
	if err := cs.reset(r.ctx.Device.LogicalDevice); err != nil {
		return err
	}
	cb := cs.buffer
	if err := cb.Begin(true, true, inheritance); err != nil {
		return err
	}
	cmd := cb.Handle

	shader.Record(cmd)
	vk.CmdPushConstants(cmd, r.ctx.Layout.Handle, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, CameraPushConstantSize, unsafe.Pointer(&viewProjection.Data[0]))

	var lastGeometry *VulkanGeometry
	var lastNode *VulkanNode
	for d, ok := queue.TryTake(); ok; d, ok = queue.TryTake() {
		g, ok := r.scene.Geometry(d.Geometry())
		if !ok {
			continue
		}
		vg, err := r.resources.PrepareGeometry(g)
		if err != nil {
			return err
		}
		if vg != lastGeometry {
			vg.Record(cmd)
			lastGeometry = vg
		}
		for _, h := range d.Nodes() {
			n, ok := r.scene.Node(h)
			if !ok || !n.Enabled() {
				continue
			}
			vn, err := r.resources.PrepareNode(n)
			if err != nil {
				return err
			}
			if vn != lastNode {
				if err := vn.Record(cmd, slot); err != nil {
					return err
				}
				lastNode = vn
			}
			vg.Draw(cmd)
		}
	}
	return cb.End()
}

func (r *Renderer) submit(slot uint32, transferDone vk.Semaphore) error {
	device := r.ctx.Device
	primary := r.primaries[slot]
	if err := primary.reset(device.LogicalDevice); err != nil {
		return err
	}
	cb := primary.buffer
	if err := cb.Begin(true, false, nil); err != nil {
		return err
	}

	secondaries := make([]vk.CommandBuffer, len(r.recorders))
	for w := range r.recorders {
		secondaries[w] = r.recorders[w][slot].buffer.Handle
	}
	r.ctx.RenderPass.Begin(cb.Handle, r.ctx.Swapchain.Framebuffer(slot), r.ctx.Swapchain.Extent())
	vk.CmdExecuteCommands(cb.Handle, uint32(len(secondaries)), secondaries)
	r.ctx.RenderPass.End(cb.Handle)
	if err := cb.End(); err != nil {
		return err
	}

	stage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	err := r.ctx.Queues.Submit(device.Queues.Graphics, func() error {
		return vkError(vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   2,
			PWaitSemaphores:      []vk.Semaphore{transferDone, r.ctx.Swapchain.ImageAvailableSemaphore()},
			PWaitDstStageMask:    []vk.PipelineStageFlags{stage, stage},
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{r.renderComplete[slot]},
		}}, r.ctx.Swapchain.CurrentSubmitFence()), "vkQueueSubmit(graphics)")
	})
	if err != nil {
		return err
	}
	cb.UpdateSubmitted()

	return r.ctx.Queues.Submit(device.Queues.Graphics, func() error {
		return r.ctx.Swapchain.Present(device.GraphicsQueue, []vk.Semaphore{r.renderComplete[slot]})
	})
}

// reloadShaders rebuilds the pipelines whose modules changed on disk.
func (r *Renderer) reloadShaders() error {
	changed := r.ctx.Shaders.DrainReloads()
	if len(changed) == 0 {
		return nil
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	r.log.Info("reloading shaders", "modules", changed)
	return r.resources.ReloadShaders(changed...)
}

// Resize rebuilds the swapchain and everything sized after it. A zero
// dimension, as reported for a minimized window, is ignored.
func (r *Renderer) Resize(width, height uint32) error {
	if !r.initialized {
		return errors.Wrap(core.ErrNotInitialized, "renderer")
	}
	if width == 0 || height == 0 {
		return nil
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	if err := r.ctx.Swapchain.Resize(width, height); err != nil {
		return err
	}
	if r.scene != nil {
		r.scene.Camera().SetSize(float32(width), float32(height))
	}
	return r.resources.Resize()
}

// Close waits for the device and destroys everything the renderer created.
func (r *Renderer) Close() error {
	if !r.initialized {
		return nil
	}
	r.initialized = false
	err := r.ctx.Device.WaitIdle()
	if r.scene != nil {
		r.scene.RemoveReleaseListener(r.resources)
	}
	if r.perf != nil {
		err = errors.CombineErrors(err, r.perf.Close())
		r.perf = nil
	}
	return errors.CombineErrors(err, r.teardown())
}

func (r *Renderer) teardown() error {
	var err error
	if r.ctx != nil && r.ctx.Device != nil {
		dev := r.ctx.Device.LogicalDevice
		for _, slots := range r.recorders {
			for _, s := range slots {
				s.destroy(dev)
			}
		}
		r.recorders = nil
		for _, s := range r.primaries {
			s.destroy(dev)
		}
		r.primaries = nil
		for _, sem := range r.renderComplete {
			vk.DestroySemaphore(dev, sem, nil)
		}
		r.renderComplete = nil
	}
	if r.resources != nil {
		err = r.resources.Close()
		r.resources = nil
	}
	if r.ctx != nil {
		shaders := r.ctx.Shaders
		r.ctx.Close()
		if shaders != nil {
			err = errors.CombineErrors(err, shaders.Close())
		}
		r.ctx = nil
	}
	return err
}
