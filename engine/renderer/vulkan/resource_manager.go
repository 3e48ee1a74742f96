package vulkan

import (
	"sync"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// deferredFree is one resource waiting for its frame slot to come round
// again. Exactly one field is set.
type deferredFree struct {
	buffer *ManagedBuffer
	pool   vk.DescriptorPool
	shader *VulkanShader
}

// ResourceManager sub-allocates buffers from large memory blocks, uploads
// data through per slot transfer command buffers and owns the render side
// shadows of scene objects.
//
// Every method that touches allocator state takes the same mutex, so
// recording workers serialize on it while creating shadows. Shadow lookups
// on the hot path are lock free.
type ResourceManager struct {
	backend ResourceBackend
	log     *log.Logger

	mutex     sync.Mutex
	alignment uint64
	slots     int
	current   int
	frames    []TransferFrame
	blocks    []*MemoryBlock
	toFree    [][]deferredFree
	recycle   []*ManagedBuffer
	live      int

	geometries sync.Map // scene.GeometryHandle -> *VulkanGeometry
	nodes      sync.Map // scene.NodeHandle -> *VulkanNode
	shaders    sync.Map // scene.ShaderHandle -> *VulkanShader

	closed bool
}

// NewResourceManager creates one transfer frame per swapchain image.
func NewResourceManager(backend ResourceBackend, slots int) (*ResourceManager, error) {
	if slots < 1 {
		return nil, errors.Newf("resource manager needs at least one frame slot, got %d", slots)
	}
	r := &ResourceManager{
		backend:   backend,
		log:       core.Logger("data"),
		alignment: backend.MinUniformAlignment(),
		slots:     slots,
		current:   -1,
		frames:    make([]TransferFrame, slots),
		toFree:    make([][]deferredFree, slots),
	}
	for i := range r.frames {
		f, err := backend.CreateTransferFrame()
		if err != nil {
			for j := 0; j < i; j++ {
				backend.DestroyTransferFrame(&r.frames[j])
			}
			return nil, errors.Wrapf(err, "transfer frame %d", i)
		}
		r.frames[i] = f
	}
	return r, nil
}

func (r *ResourceManager) Slots() int {
	return r.slots
}

// StartFrame destroys everything freed the last time slot was current and
// begins the slot's transfer command buffer.
func (r *ResourceManager) StartFrame(slot uint32) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return errors.Wrap(core.ErrInvalidState, "resource manager is closed")
	}
	if int(slot) >= r.slots {
		return errors.Newf("frame slot %d out of range [0,%d)", slot, r.slots)
	}
	r.current = int(slot)
	r.drainLocked(r.current)
	return r.backend.BeginTransfer(&r.frames[r.current])
}

// EndFrame submits the uploads recorded since StartFrame. The returned
// semaphore is signalled once they are complete.
func (r *ResourceManager) EndFrame() (vk.Semaphore, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current < 0 {
		return vk.NullSemaphore, errors.Wrap(core.ErrInvalidState, "EndFrame without StartFrame")
	}
	frame := &r.frames[r.current]
	if err := r.backend.SubmitTransfer(frame); err != nil {
		return vk.NullSemaphore, err
	}
	return frame.Semaphore, nil
}

func (r *ResourceManager) drainLocked(slot int) {
	for _, d := range r.toFree[slot] {
		switch {
		case d.buffer != nil:
			r.releaseBufferLocked(d.buffer)
		case d.pool != nil:
			r.backend.DestroyDescriptorPool(d.pool)
		case d.shader != nil:
			r.backend.DestroyShader(d.shader)
		}
	}
	r.toFree[slot] = r.toFree[slot][:0]
}

// releaseBufferLocked gives the bytes of a tail buffer back to its block
// and parks any other buffer in the recycle pool. Parked buffers that end
// up at the tail are reclaimed as well.
func (r *ResourceManager) releaseBufferLocked(b *ManagedBuffer) {
	b.Unmap()
	if !b.IsLast() {
		r.recycle = append(r.recycle, b)
		return
	}
	r.destroyTailLocked(b)
	for {
		i := r.recycledTailLocked(b.block)
		if i < 0 {
			return
		}
		tail := r.recycle[i]
		r.recycle = append(r.recycle[:i], r.recycle[i+1:]...)
		r.destroyTailLocked(tail)
	}
}

func (r *ResourceManager) destroyTailLocked(b *ManagedBuffer) {
	r.backend.DestroyBuffer(b.Buffer)
	b.block.Used = b.start
	b.Buffer = vk.NullBuffer
	r.live--
}

func (r *ResourceManager) recycledTailLocked(block *MemoryBlock) int {
	for i, b := range r.recycle {
		if b.block == block && b.IsLast() {
			return i
		}
	}
	return -1
}

// takeRecycledLocked returns the smallest parked buffer that can hold size
// bytes with the same usage and properties.
func (r *ResourceManager) takeRecycledLocked(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) *ManagedBuffer {
	best := -1
	for i, b := range r.recycle {
		if b.Usage != usage || b.Properties != props || b.Size < size {
			continue
		}
		if best < 0 || b.Size < r.recycle[best].Size {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	b := r.recycle[best]
	r.recycle = append(r.recycle[:best], r.recycle[best+1:]...)
	return b
}

// CreateBuffer returns a buffer of at least size bytes bound to memory with
// every requested property.
func (r *ResourceManager) CreateBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*ManagedBuffer, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.createBufferLocked(size, usage, props)
}

func (r *ResourceManager) createBufferLocked(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*ManagedBuffer, error) {
	if r.closed {
		return nil, errors.Wrap(core.ErrInvalidState, "resource manager is closed")
	}
	size = math.AlignUp(size, r.alignment)
	if b := r.takeRecycledLocked(size, usage, props); b != nil {
		return b, nil
	}

	buffer, reqs, err := r.backend.CreateBuffer(size, usage)
	if err != nil {
		return nil, err
	}
	if reqs.Size != size {
		r.log.Warn("memory requirement size differs from requested size", "required", reqs.Size, "requested", size)
	}
	memType, ok := r.backend.MemoryType(reqs.TypeBits, props)
	if !ok {
		r.backend.DestroyBuffer(buffer)
		return nil, errors.Newf("no memory type matches bits %#x with properties %#x", reqs.TypeBits, uint32(props))
	}
	alignment := reqs.Alignment
	if r.alignment > alignment {
		alignment = r.alignment
	}
	block, err := r.blockLocked(reqs.Size, alignment, memType)
	if err != nil {
		r.backend.DestroyBuffer(buffer)
		return nil, err
	}

	offset := math.AlignUp(block.Used, alignment)
	if err := r.backend.BindBufferMemory(buffer, block.Memory, offset); err != nil {
		r.backend.DestroyBuffer(buffer)
		return nil, err
	}
	b := &ManagedBuffer{
		Buffer:     buffer,
		Offset:     offset,
		Size:       reqs.Size,
		Usage:      usage,
		Properties: props,
		block:      block,
		start:      block.Used,
	}
	block.Used = offset + reqs.Size
	r.live++
	return b, nil
}

// blockLocked finds a block of memType with room for size bytes, creating
// a new one when all are full.
func (r *ResourceManager) blockLocked(size, alignment uint64, memType uint32) (*MemoryBlock, error) {
	for _, b := range r.blocks {
		if b.MemoryType == memType && b.fits(size, alignment) {
			return b, nil
		}
	}
	capacity := MemoryBlockSize
	if size > capacity {
		capacity = size
	}
	memory, err := r.backend.AllocateMemory(capacity, memType)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %d bytes of memory type %d", capacity, memType)
	}
	b := &MemoryBlock{
		Memory:     memory,
		Capacity:   capacity,
		MemoryType: memType,
		mapper:     r.backend,
	}
	r.blocks = append(r.blocks, b)
	r.log.Debug("memory block allocated", "type", memType, "bytes", capacity, "blocks", len(r.blocks))
	return b, nil
}

// CreateDeviceOnlyBufferWithData uploads data into a new device local
// buffer through a staging buffer. The copy is recorded on the current
// slot's transfer command buffer.
func (r *ResourceManager) CreateDeviceOnlyBufferWithData(usage vk.BufferUsageFlags, data []byte) (*ManagedBuffer, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.uploadLocked(usage, data)
}

func (r *ResourceManager) uploadLocked(usage vk.BufferUsageFlags, data []byte) (*ManagedBuffer, error) {
	if r.current < 0 {
		return nil, errors.Wrap(core.ErrInvalidState, "upload outside of a frame")
	}
	size := uint64(len(data))
	target, err := r.createBufferLocked(size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	staging, err := r.createBufferLocked(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		r.freeLocked(target)
		return nil, err
	}
	if err := staging.Copy(data, 0); err != nil {
		r.freeLocked(staging)
		r.freeLocked(target)
		return nil, err
	}
	r.backend.RecordCopy(&r.frames[r.current], staging.Buffer, target.Buffer, size)
	r.freeLocked(staging)
	return target, nil
}

// FreeBuffer schedules b for destruction the next time the current slot
// starts, when the GPU can no longer be reading it.
func (r *ResourceManager) FreeBuffer(b *ManagedBuffer) {
	if b == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.freeLocked(b)
}

func (r *ResourceManager) freeLocked(b *ManagedBuffer) {
	r.deferLocked(deferredFree{buffer: b})
}

// deferLocked parks d in the current slot. Before the first frame nothing
// can be in flight, so d is released at once.
func (r *ResourceManager) deferLocked(d deferredFree) {
	if r.current < 0 {
		r.toFree[0] = append(r.toFree[0], d)
		r.drainLocked(0)
		return
	}
	r.toFree[r.current] = append(r.toFree[r.current], d)
}

// PrepareGeometry returns the shadow of g, uploading it on first use.
func (r *ResourceManager) PrepareGeometry(g *scene.Geometry) (*VulkanGeometry, error) {
	if v, ok := r.geometries.Load(g.Handle()); ok {
		return v.(*VulkanGeometry), nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if v, ok := r.geometries.Load(g.Handle()); ok {
		return v.(*VulkanGeometry), nil
	}

	vertices, err := r.uploadLocked(vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), g.VertexBytes())
	if err != nil {
		return nil, errors.Wrap(err, "uploading vertices")
	}
	indices, err := r.uploadLocked(vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), g.IndexBytes())
	if err != nil {
		r.freeLocked(vertices)
		return nil, errors.Wrap(err, "uploading indices")
	}
	indexType := vk.IndexTypeUint16
	if g.Uses32BitIndices() {
		indexType = vk.IndexTypeUint32
	}
	vg := &VulkanGeometry{
		Handle:     g.Handle(),
		Vertices:   vertices,
		Indices:    indices,
		IndexCount: uint32(len(g.Indices)),
		IndexType:  indexType,
	}
	r.geometries.Store(g.Handle(), vg)
	return vg, nil
}

// PrepareNode returns the shadow of n. Nodes that never change get a
// device local uniform written once; all others get one host visible slot
// per swapchain image.
func (r *ResourceManager) PrepareNode(n *scene.Node) (*VulkanNode, error) {
	if v, ok := r.nodes.Load(n.Handle()); ok {
		return v.(*VulkanNode), nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if v, ok := r.nodes.Load(n.Handle()); ok {
		return v.(*VulkanNode), nil
	}

	allocSize := math.AlignUp(math.Mat4Size, r.alignment)
	dynamic := n.UpdateFrequency() != scene.UpdateNever
	var buffer *ManagedBuffer
	var err error
	if dynamic {
		buffer, err = r.createBufferLocked(uint64(r.slots)*allocSize,
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
		if err == nil {
			if err = buffer.Map(); err != nil {
				r.freeLocked(buffer)
			}
		}
	} else {
		world := n.WorldMatrix()
		buffer, err = r.uploadLocked(vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			unsafe.Slice((*byte)(unsafe.Pointer(&world.Data[0])), math.Mat4Size))
	}
	if err != nil {
		return nil, errors.Wrap(err, "node uniform")
	}

	uniform, err := newUniformBuffer(r.backend, buffer, allocSize)
	if err != nil {
		r.freeLocked(buffer)
		return nil, err
	}
	vn := newVulkanNode(n, uniform, dynamic, r.slots)
	r.nodes.Store(n.Handle(), vn)
	return vn, nil
}

// PrepareShader returns the pipeline of s, building it on first use.
func (r *ResourceManager) PrepareShader(s *scene.Shader) (*VulkanShader, error) {
	if v, ok := r.shaders.Load(s.Handle()); ok {
		return v.(*VulkanShader), nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if v, ok := r.shaders.Load(s.Handle()); ok {
		return v.(*VulkanShader), nil
	}
	vs := newVulkanShader(s)
	if err := r.backend.BuildShader(vs); err != nil {
		return nil, err
	}
	r.shaders.Store(s.Handle(), vs)
	return vs, nil
}

func (r *ResourceManager) Geometry(h scene.GeometryHandle) (*VulkanGeometry, bool) {
	v, ok := r.geometries.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*VulkanGeometry), true
}

func (r *ResourceManager) Node(h scene.NodeHandle) (*VulkanNode, bool) {
	v, ok := r.nodes.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*VulkanNode), true
}

func (r *ResourceManager) Shader(h scene.ShaderHandle) (*VulkanShader, bool) {
	v, ok := r.shaders.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*VulkanShader), true
}

// ReleaseGeometry drops the shadow of a closed scene geometry.
func (r *ResourceManager) ReleaseGeometry(h scene.GeometryHandle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	v, ok := r.geometries.LoadAndDelete(h)
	if !ok {
		return
	}
	g := v.(*VulkanGeometry)
	r.freeLocked(g.Vertices)
	r.freeLocked(g.Indices)
}

func (r *ResourceManager) ReleaseNode(h scene.NodeHandle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	v, ok := r.nodes.LoadAndDelete(h)
	if !ok {
		return
	}
	n := v.(*VulkanNode)
	r.freeLocked(n.Uniform.Buffer)
	r.deferLocked(deferredFree{pool: n.Uniform.pool})
}

func (r *ResourceManager) ReleaseShader(h scene.ShaderHandle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	v, ok := r.shaders.LoadAndDelete(h)
	if !ok {
		return
	}
	r.deferLocked(deferredFree{shader: v.(*VulkanShader)})
}

// ReleaseAll drops every shadow, as when the renderer switches scenes.
// Handles of different scenes can collide, so nothing may be kept.
func (r *ResourceManager) ReleaseAll() {
	r.geometries.Range(func(k, _ any) bool {
		r.ReleaseGeometry(k.(scene.GeometryHandle))
		return true
	})
	r.nodes.Range(func(k, _ any) bool {
		r.ReleaseNode(k.(scene.NodeHandle))
		return true
	})
	r.shaders.Range(func(k, _ any) bool {
		r.ReleaseShader(k.(scene.ShaderHandle))
		return true
	})
}

// Resize rebuilds every pipeline, since pipelines carry the viewport. The
// device must be idle.
func (r *ResourceManager) Resize() error {
	return r.rebuildShaders(func(*VulkanShader) bool { return true })
}

// ReloadShaders rebuilds the pipelines that use one of the named modules.
// The device must be idle.
func (r *ResourceManager) ReloadShaders(modules ...string) error {
	return r.rebuildShaders(func(s *VulkanShader) bool {
		for _, m := range modules {
			if s.Uses(m) {
				return true
			}
		}
		return false
	})
}

func (r *ResourceManager) rebuildShaders(match func(*VulkanShader) bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var errs error
	r.shaders.Range(func(_, v any) bool {
		s := v.(*VulkanShader)
		if !match(s) {
			return true
		}
		r.backend.DestroyShader(s)
		if err := r.backend.BuildShader(s); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		r.log.Debug("shader rebuilt", "vertex", s.VertexShaderName, "fragment", s.FragmentShaderName)
		return true
	})
	return errs
}

// Close waits for pending uploads and destroys every resource the manager
// still owns.
func (r *ResourceManager) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil
	}
	err := r.backend.WaitTransferIdle()

	for slot := range r.toFree {
		r.drainLocked(slot)
	}
	r.geometries.Range(func(k, v any) bool {
		g := v.(*VulkanGeometry)
		r.backend.DestroyBuffer(g.Vertices.Buffer)
		r.backend.DestroyBuffer(g.Indices.Buffer)
		r.geometries.Delete(k)
		return true
	})
	r.nodes.Range(func(k, v any) bool {
		n := v.(*VulkanNode)
		n.Uniform.Buffer.Unmap()
		r.backend.DestroyBuffer(n.Uniform.Buffer.Buffer)
		r.backend.DestroyDescriptorPool(n.Uniform.pool)
		r.nodes.Delete(k)
		return true
	})
	r.shaders.Range(func(k, v any) bool {
		r.backend.DestroyShader(v.(*VulkanShader))
		r.shaders.Delete(k)
		return true
	})
	for _, b := range r.recycle {
		r.backend.DestroyBuffer(b.Buffer)
	}
	r.recycle = nil
	for i := range r.frames {
		r.backend.DestroyTransferFrame(&r.frames[i])
	}
	for _, b := range r.blocks {
		b.unmapAll()
		r.backend.FreeMemory(b.Memory)
	}
	r.blocks = nil
	r.live = 0
	r.closed = true
	return err
}
