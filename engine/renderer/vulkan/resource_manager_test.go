package vulkan

import (
	"bytes"
	"cmp"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

const (
	mib = 1024 * 1024

	deviceLocalType  = 0
	hostVisibleType  = 1
	testUniformAlign = 256
)

// fakeBackend records the device calls of a ResourceManager and backs
// device memory with Go slices. Like a driver it refuses to map memory that
// is already mapped.
type fakeBackend struct {
	mu sync.Mutex

	buffersCreated   int
	buffersDestroyed int
	allocations      []uint64
	freedMemory      int
	copies           int
	transfersBegun   int
	transfersSubmit  int
	pools            int
	poolsDestroyed   int
	shadersBuilt     int
	shadersDestroyed int
	failBuild        bool

	// extraSize is added to every reported buffer size and reqAlignment,
	// when set, replaces the reported alignment.
	extraSize    uint64
	reqAlignment uint64

	nextMemory uintptr
	memories   map[vk.DeviceMemory][]byte
	mappedNow  map[vk.DeviceMemory]bool
	maps       int
	badUnmaps  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		memories:  make(map[vk.DeviceMemory][]byte),
		mappedNow: make(map[vk.DeviceMemory]bool),
	}
}

func (f *fakeBackend) MinUniformAlignment() uint64 { return testUniformAlign }

func (f *fakeBackend) CreateBuffer(size uint64, _ vk.BufferUsageFlags) (vk.Buffer, BufferRequirements, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffersCreated++
	alignment := uint64(testUniformAlign)
	if f.reqAlignment != 0 {
		alignment = f.reqAlignment
	}
	return vk.NullBuffer, BufferRequirements{Size: size + f.extraSize, Alignment: alignment, TypeBits: 0b11}, nil
}

func (f *fakeBackend) DestroyBuffer(vk.Buffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffersDestroyed++
}

func (f *fakeBackend) MemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool) {
	return findMemoryType([]vk.MemoryPropertyFlags{
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
	}, typeBits, props)
}

// AllocateMemory hands out distinct fake handles. They are never
// dereferenced, only compared.
func (f *fakeBackend) AllocateMemory(size uint64, _ uint32) (vk.DeviceMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocations = append(f.allocations, size)
	f.nextMemory += 0x1000
	return vk.DeviceMemory(unsafe.Pointer(f.nextMemory)), nil
}

func (f *fakeBackend) FreeMemory(memory vk.DeviceMemory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freedMemory++
	delete(f.memories, memory)
	delete(f.mappedNow, memory)
}

func (f *fakeBackend) BindBufferMemory(vk.Buffer, vk.DeviceMemory, uint64) error { return nil }

func (f *fakeBackend) MapMemory(memory vk.DeviceMemory, offset, size uint64) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mappedNow[memory] {
		return nil, vkError(vk.ErrorMemoryMapFailed, "vkMapMemory")
	}
	data := f.memories[memory]
	if uint64(len(data)) < offset+size {
		grown := make([]byte, offset+size)
		copy(grown, data)
		data = grown
		f.memories[memory] = data
	}
	f.mappedNow[memory] = true
	f.maps++
	return unsafe.Pointer(&data[offset]), nil
}

func (f *fakeBackend) UnmapMemory(memory vk.DeviceMemory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.mappedNow[memory] {
		f.badUnmaps++
		return
	}
	delete(f.mappedNow, memory)
}

// memory returns the backing bytes of a device memory object.
func (f *fakeBackend) memory(m vk.DeviceMemory) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memories[m]
}

func (f *fakeBackend) isMapped(m vk.DeviceMemory) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mappedNow[m]
}

func (f *fakeBackend) CreateTransferFrame() (TransferFrame, error) { return TransferFrame{}, nil }
func (f *fakeBackend) DestroyTransferFrame(*TransferFrame)         {}

func (f *fakeBackend) BeginTransfer(*TransferFrame) error {
	f.transfersBegun++
	return nil
}

func (f *fakeBackend) RecordCopy(*TransferFrame, vk.Buffer, vk.Buffer, uint64) {
	f.copies++
}

func (f *fakeBackend) SubmitTransfer(*TransferFrame) error {
	f.transfersSubmit++
	return nil
}

func (f *fakeBackend) WaitTransferIdle() error { return nil }

func (f *fakeBackend) CreateUniformDescriptor(vk.Buffer, uint64) (vk.DescriptorPool, vk.DescriptorSet, error) {
	f.pools++
	return vk.NullDescriptorPool, nil, nil
}

func (f *fakeBackend) DestroyDescriptorPool(vk.DescriptorPool) {
	f.poolsDestroyed++
}

func (f *fakeBackend) PipelineLayout() vk.PipelineLayout { return vk.NullPipelineLayout }

func (f *fakeBackend) BuildShader(*VulkanShader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBuild {
		return errors.New("shader build failed")
	}
	f.shadersBuilt++
	return nil
}

func (f *fakeBackend) DestroyShader(*VulkanShader) {
	f.shadersDestroyed++
}

func newTestManager(t *testing.T, slots int) (*ResourceManager, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	rm, err := NewResourceManager(backend, slots)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, rm.Close())
	})
	return rm, backend
}

var (
	hostVisible = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	uniformUse  = vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
)

func TestResourceManager_RejectsZeroSlots(t *testing.T) {
	_, err := NewResourceManager(newFakeBackend(), 0)
	require.Error(t, err)
}

func TestResourceManager_LinearPlacement(t *testing.T) {
	rm, backend := newTestManager(t, 2)

	a, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	b, err := rm.CreateBuffer(2*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	c, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)

	require.EqualValues(t, 0, a.Offset)
	require.EqualValues(t, 1*mib, b.Offset)
	require.EqualValues(t, 3*mib, c.Offset)
	require.Same(t, a.Block(), c.Block())
	require.EqualValues(t, 4*mib, a.Block().Used)
	require.Equal(t, MemoryBlockSize, a.Block().Capacity)
	require.EqualValues(t, hostVisibleType, a.Block().MemoryType)
	require.Equal(t, []uint64{MemoryBlockSize}, backend.allocations)

	require.False(t, a.IsLast())
	require.False(t, b.IsLast())
	require.True(t, c.IsLast())
}

func TestResourceManager_SizesAreAligned(t *testing.T) {
	rm, _ := newTestManager(t, 1)

	a, err := rm.CreateBuffer(10, uniformUse, hostVisible)
	require.NoError(t, err)
	b, err := rm.CreateBuffer(10, uniformUse, hostVisible)
	require.NoError(t, err)
	require.EqualValues(t, testUniformAlign, a.Size)
	require.EqualValues(t, testUniformAlign, b.Offset)
}

func TestResourceManager_SeparateBlocksPerMemoryType(t *testing.T) {
	rm, backend := newTestManager(t, 1)

	host, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	device, err := rm.CreateBuffer(1*mib, uniformUse, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	require.NoError(t, err)

	require.NotSame(t, host.Block(), device.Block())
	require.EqualValues(t, deviceLocalType, device.Block().MemoryType)
	require.Len(t, backend.allocations, 2)
}

func TestResourceManager_OversizedBufferGetsOwnBlock(t *testing.T) {
	rm, backend := newTestManager(t, 1)

	_, err := rm.CreateBuffer(MemoryBlockSize-mib, uniformUse, hostVisible)
	require.NoError(t, err)
	big, err := rm.CreateBuffer(MemoryBlockSize+mib, uniformUse, hostVisible)
	require.NoError(t, err)

	require.EqualValues(t, 0, big.Offset)
	require.Equal(t, MemoryBlockSize+mib, big.Block().Capacity)
	require.Equal(t, []uint64{MemoryBlockSize, MemoryBlockSize + mib}, backend.allocations)
}

func TestResourceManager_FreeingTailCascadesThroughRecycled(t *testing.T) {
	rm, backend := newTestManager(t, 2)

	a, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	b, err := rm.CreateBuffer(2*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	c, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	block := a.Block()

	// No frame has started yet, so frees are immediate.
	rm.FreeBuffer(b)
	require.EqualValues(t, 4*mib, block.Used)
	require.Equal(t, 1, rm.Stats().RecycledBuffers)
	require.Equal(t, 0, backend.buffersDestroyed)

	rm.FreeBuffer(c)
	require.EqualValues(t, 1*mib, block.Used)
	require.Equal(t, 0, rm.Stats().RecycledBuffers)
	require.Equal(t, 2, backend.buffersDestroyed)
	require.Equal(t, 1, rm.Stats().LiveBuffers)

	rm.FreeBuffer(a)
	require.EqualValues(t, 0, block.Used)
	require.Equal(t, 0, rm.Stats().LiveBuffers)
}

func TestResourceManager_RecycledBufferIsReused(t *testing.T) {
	rm, backend := newTestManager(t, 1)

	_, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	middle, err := rm.CreateBuffer(2*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	_, err = rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	rm.FreeBuffer(middle)
	created := backend.buffersCreated

	// Different usage never matches.
	other, err := rm.CreateBuffer(1*mib, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), hostVisible)
	require.NoError(t, err)
	require.NotSame(t, middle, other)

	reused, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	require.Same(t, middle, reused)
	require.EqualValues(t, 1*mib, reused.Offset)
	require.Equal(t, created+1, backend.buffersCreated)
	require.Equal(t, 0, rm.Stats().RecycledBuffers)
}

func TestResourceManager_FreeIsDeferredUntilSlotComesRound(t *testing.T) {
	rm, backend := newTestManager(t, 2)

	require.NoError(t, rm.StartFrame(0))
	b, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)
	rm.FreeBuffer(b)
	_, err = rm.EndFrame()
	require.NoError(t, err)
	require.Equal(t, 1, rm.Stats().PendingFrees)
	require.EqualValues(t, 1*mib, b.Block().Used)

	require.NoError(t, rm.StartFrame(1))
	_, err = rm.EndFrame()
	require.NoError(t, err)
	require.Equal(t, 1, rm.Stats().PendingFrees)
	require.Equal(t, 0, backend.buffersDestroyed)

	require.NoError(t, rm.StartFrame(0))
	require.Equal(t, 0, rm.Stats().PendingFrees)
	require.Equal(t, 1, backend.buffersDestroyed)
	require.EqualValues(t, 0, b.Block().Used)
	require.Equal(t, 3, backend.transfersBegun)
	require.Equal(t, 2, backend.transfersSubmit)
}

func TestResourceManager_FrameSlotBounds(t *testing.T) {
	rm, _ := newTestManager(t, 2)
	require.Error(t, rm.StartFrame(2))
	_, err := rm.EndFrame()
	require.Error(t, err)
}

func TestResourceManager_UploadNeedsFrame(t *testing.T) {
	rm, _ := newTestManager(t, 1)
	_, err := rm.CreateDeviceOnlyBufferWithData(uniformUse, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestResourceManager_UploadStagesThroughHostMemory(t *testing.T) {
	rm, backend := newTestManager(t, 1)
	require.NoError(t, rm.StartFrame(0))

	b, err := rm.CreateDeviceOnlyBufferWithData(uniformUse, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.EqualValues(t, deviceLocalType, b.Block().MemoryType)
	require.Equal(t, 1, backend.copies)
	require.Equal(t, 2, backend.buffersCreated)
	// The staging buffer waits for the slot.
	require.Equal(t, 1, rm.Stats().PendingFrees)
}

func testGeometry(t *testing.T, s *scene.Scene) *scene.Geometry {
	t.Helper()
	vertices, indices := scene.NewCube(math.NewVec3(1, 1, 1), math.NewVec4(1, 1, 1, 1))
	h, err := s.CreateGeometry(vertices, indices)
	require.NoError(t, err)
	g, ok := s.Geometry(h)
	require.True(t, ok)
	return g
}

func TestResourceManager_PrepareGeometryOnceUnderConcurrency(t *testing.T) {
	rm, backend := newTestManager(t, 2)
	s := scene.NewScene()
	g := testGeometry(t, s)
	require.NoError(t, rm.StartFrame(0))

	const workers = 16
	results := make([]*VulkanGeometry, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vg, err := rm.PrepareGeometry(g)
			if err == nil {
				results[i] = vg
			}
		}(i)
	}
	wg.Wait()

	for _, vg := range results {
		require.NotNil(t, vg)
		require.Same(t, results[0], vg)
	}
	// Vertices and indices, each with a staging buffer.
	require.Equal(t, 4, backend.buffersCreated)
	require.Equal(t, 2, backend.copies)
	require.EqualValues(t, len(g.Indices), results[0].IndexCount)
	require.Equal(t, vk.IndexTypeUint16, results[0].IndexType)

	cached, ok := rm.Geometry(g.Handle())
	require.True(t, ok)
	require.Same(t, results[0], cached)
}

func TestResourceManager_PrepareShaderOnce(t *testing.T) {
	rm, backend := newTestManager(t, 1)
	s := scene.NewScene()
	h, err := s.CreateShader("a_vert", "a_frag", scene.TopologyTriangleList)
	require.NoError(t, err)
	sh, ok := s.ShaderByHandle(h)
	require.True(t, ok)

	first, err := rm.PrepareShader(sh)
	require.NoError(t, err)
	second, err := rm.PrepareShader(sh)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, backend.shadersBuilt)

	require.NoError(t, rm.ReloadShaders("other_vert"))
	require.Equal(t, 1, backend.shadersBuilt)
	require.NoError(t, rm.ReloadShaders("a_frag"))
	require.Equal(t, 2, backend.shadersBuilt)
	require.Equal(t, 1, backend.shadersDestroyed)

	require.NoError(t, rm.Resize())
	require.Equal(t, 3, backend.shadersBuilt)
}

func TestResourceManager_FailedShaderIsNotCached(t *testing.T) {
	rm, backend := newTestManager(t, 1)
	s := scene.NewScene()
	h, err := s.CreateShader("a_vert", "a_frag", scene.TopologyTriangleList)
	require.NoError(t, err)
	sh, _ := s.ShaderByHandle(h)

	backend.failBuild = true
	_, err = rm.PrepareShader(sh)
	require.Error(t, err)
	_, ok := rm.Shader(h)
	require.False(t, ok)
}

func TestResourceManager_StaticAndDynamicNodes(t *testing.T) {
	rm, _ := newTestManager(t, 3)
	s := scene.NewScene()
	require.NoError(t, rm.StartFrame(0))

	static, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SetUpdateFrequency(static, scene.UpdateNever))
	dynamic, err := s.CreateNode(s.Root())
	require.NoError(t, err)

	sn, _ := s.Node(static)
	vs, err := rm.PrepareNode(sn)
	require.NoError(t, err)
	require.False(t, vs.IsDynamic())
	require.EqualValues(t, deviceLocalType, vs.Uniform.Buffer.Block().MemoryType)

	dn, _ := s.Node(dynamic)
	vd, err := rm.PrepareNode(dn)
	require.NoError(t, err)
	require.True(t, vd.IsDynamic())
	require.True(t, vd.Uniform.Buffer.IsMapped())
	require.EqualValues(t, testUniformAlign, vd.Uniform.AllocSize)
	require.EqualValues(t, 3*testUniformAlign, vd.Uniform.Buffer.Size)
	require.Equal(t, 2, rm.Stats().Nodes)
}

func worldAt(buf []byte, offset uint32) math.Mat4 {
	var m math.Mat4
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&m.Data[0])), math.Mat4Size), buf[offset:])
	return m
}

func TestVulkanNode_PrepareRewritesStaleSlots(t *testing.T) {
	rm, _ := newTestManager(t, 2)
	s := scene.NewScene()
	h, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	first := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	require.NoError(t, s.SetMatrix(h, first))

	n, _ := s.Node(h)
	vn, err := rm.PrepareNode(n)
	require.NoError(t, err)
	mapped := vn.Uniform.Buffer.Mapped()

	offset, err := vn.prepare(1)
	require.NoError(t, err)
	require.EqualValues(t, testUniformAlign, offset)
	require.Equal(t, first, worldAt(mapped, offset))
	require.Equal(t, math.Mat4{}, worldAt(mapped, 0))

	// An up to date slot is left alone.
	clear(mapped[offset : uint64(offset)+math.Mat4Size])
	_, err = vn.prepare(1)
	require.NoError(t, err)
	require.Equal(t, math.Mat4{}, worldAt(mapped, offset))

	second := math.NewMat4Translation(math.NewVec3(4, 5, 6))
	require.NoError(t, s.SetMatrix(h, second))
	_, err = vn.prepare(1)
	require.NoError(t, err)
	require.Equal(t, second, worldAt(mapped, offset))
}

func TestResourceManager_ReleaseDefersToCurrentSlot(t *testing.T) {
	rm, backend := newTestManager(t, 2)
	s := scene.NewScene()
	g := testGeometry(t, s)
	h, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	n, _ := s.Node(h)

	require.NoError(t, rm.StartFrame(0))
	_, err = rm.PrepareGeometry(g)
	require.NoError(t, err)
	_, err = rm.PrepareNode(n)
	require.NoError(t, err)
	require.NoError(t, rm.StartFrame(1))
	require.NoError(t, rm.StartFrame(0))
	destroyed := backend.buffersDestroyed

	rm.ReleaseAll()
	_, ok := rm.Geometry(g.Handle())
	require.False(t, ok)
	_, ok = rm.Node(h)
	require.False(t, ok)
	require.Equal(t, destroyed, backend.buffersDestroyed)
	// Two geometry buffers, the node buffer and its descriptor pool.
	require.Equal(t, 4, rm.Stats().PendingFrees)

	require.NoError(t, rm.StartFrame(1))
	require.NoError(t, rm.StartFrame(0))
	require.Equal(t, 0, rm.Stats().PendingFrees)
	require.Equal(t, 1, backend.poolsDestroyed)
	require.Equal(t, 0, rm.Stats().LiveBuffers)
}

func TestResourceManager_StatsJSON(t *testing.T) {
	rm, _ := newTestManager(t, 1)
	_, err := rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)

	var decoded struct {
		LiveBuffers     int
		RecycledBuffers int
		PendingFrees    int
		Blocks          []struct {
			MemoryType int
			TotalBytes float64
			UsedBytes  float64
		}
	}
	require.NoError(t, json.Unmarshal(rm.StatsJSON(), &decoded))
	require.Equal(t, 1, decoded.LiveBuffers)
	require.Len(t, decoded.Blocks, 1)
	require.EqualValues(t, hostVisibleType, decoded.Blocks[0].MemoryType)
	require.EqualValues(t, MemoryBlockSize, decoded.Blocks[0].TotalBytes)
	require.EqualValues(t, mib, decoded.Blocks[0].UsedBytes)
}

func TestResourceManager_ClosedRejectsWork(t *testing.T) {
	backend := newFakeBackend()
	rm, err := NewResourceManager(backend, 1)
	require.NoError(t, err)
	_, err = rm.CreateBuffer(1*mib, uniformUse, hostVisible)
	require.NoError(t, err)

	require.NoError(t, rm.Close())
	require.Equal(t, 1, backend.freedMemory)
	require.NoError(t, rm.Close())

	_, err = rm.CreateBuffer(1, uniformUse, hostVisible)
	require.Error(t, err)
	require.Error(t, rm.StartFrame(0))
}

func TestResourceManager_ReportedSizeMismatch(t *testing.T) {
	rm, backend := newTestManager(t, 1)
	var logged bytes.Buffer
	rm.log = log.New(&logged)
	backend.extraSize = 100
	backend.reqAlignment = 4

	a, err := rm.CreateBuffer(1000, uniformUse, hostVisible)
	require.NoError(t, err)
	require.Contains(t, logged.String(), "memory requirement size differs")
	require.EqualValues(t, 1124, a.Size)
	require.EqualValues(t, 1124, a.Block().Used)
	require.True(t, a.IsLast())

	// The smaller reported alignment does not override the uniform one.
	b, err := rm.CreateBuffer(1000, uniformUse, hostVisible)
	require.NoError(t, err)
	require.EqualValues(t, 1280, b.Offset)
	require.Zero(t, b.Offset%testUniformAlign)
	require.EqualValues(t, 1280+1124, b.Block().Used)

	rm.FreeBuffer(b)
	require.EqualValues(t, 1124, a.Block().Used)
	require.True(t, a.IsLast())
	rm.FreeBuffer(a)
	require.EqualValues(t, 0, a.Block().Used)
}

func TestResourceManager_ChurnKeepsLiveBuffersDisjoint(t *testing.T) {
	rm, _ := newTestManager(t, 1)
	rng := rand.New(rand.NewSource(42))
	usages := []vk.BufferUsageFlags{
		uniformUse,
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
	}
	props := []vk.MemoryPropertyFlags{
		hostVisible,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	}

	var live []*ManagedBuffer
	checkDisjoint := func(step int) {
		byBlock := map[*MemoryBlock][]*ManagedBuffer{}
		for _, b := range live {
			require.Zero(t, b.Offset%testUniformAlign, "step %d", step)
			require.LessOrEqual(t, b.Offset+b.Size, b.Block().Used, "step %d", step)
			byBlock[b.Block()] = append(byBlock[b.Block()], b)
		}
		for _, buffers := range byBlock {
			slices.SortFunc(buffers, func(x, y *ManagedBuffer) int {
				return cmp.Compare(x.Offset, y.Offset)
			})
			for i := 1; i < len(buffers); i++ {
				prev := buffers[i-1]
				require.LessOrEqual(t, prev.Offset+prev.Size, buffers[i].Offset, "step %d", step)
			}
		}
	}

	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(5) < 2 {
			i := rng.Intn(len(live))
			rm.FreeBuffer(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			size := uint64(1 + rng.Intn(64*1024))
			b, err := rm.CreateBuffer(size, usages[rng.Intn(len(usages))], props[rng.Intn(len(props))])
			require.NoError(t, err)
			require.GreaterOrEqual(t, b.Size, size)
			require.False(t, slices.Contains(live, b), "step %d handed out a live buffer", step)
			live = append(live, b)
		}
		checkDisjoint(step)
	}

	for _, b := range live {
		rm.FreeBuffer(b)
	}
	require.Equal(t, 0, rm.Stats().LiveBuffers)
	require.Equal(t, 0, rm.Stats().RecycledBuffers)
	for _, block := range rm.blocks {
		require.EqualValues(t, 0, block.Used)
	}
}

func TestResourceManager_DynamicNodesShareBlockMapping(t *testing.T) {
	rm, backend := newTestManager(t, 2)
	s := scene.NewScene()
	g := testGeometry(t, s)
	h1, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	h2, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	n1, _ := s.Node(h1)
	n2, _ := s.Node(h2)

	require.NoError(t, rm.StartFrame(0))
	vn1, err := rm.PrepareNode(n1)
	require.NoError(t, err)
	vn2, err := rm.PrepareNode(n2)
	require.NoError(t, err)
	// Staging buffers land in the same host visible block.
	_, err = rm.PrepareGeometry(g)
	require.NoError(t, err)

	block := vn1.Uniform.Buffer.Block()
	require.Same(t, block, vn2.Uniform.Buffer.Block())
	require.Equal(t, 1, backend.maps)
	require.Equal(t, 2, block.MapReferences())
	require.True(t, backend.isMapped(block.Memory))

	rm.ReleaseNode(h1)
	require.NoError(t, rm.StartFrame(1))
	require.NoError(t, rm.StartFrame(0))
	require.False(t, vn1.Uniform.Buffer.IsMapped())
	require.Equal(t, 1, block.MapReferences())
	require.True(t, backend.isMapped(block.Memory))

	world := math.NewMat4Translation(math.NewVec3(7, 8, 9))
	require.NoError(t, s.SetMatrix(h2, world))
	offset, err := vn2.prepare(1)
	require.NoError(t, err)
	memory := backend.memory(block.Memory)
	require.Equal(t, world, worldAt(memory, uint32(vn2.Uniform.Buffer.Offset)+offset))
	require.Equal(t, 0, backend.badUnmaps)

	require.NoError(t, rm.Close())
	require.False(t, backend.isMapped(block.Memory))
	require.Equal(t, 0, backend.badUnmaps)
}

func TestResourceManager_FrequencyChangeRebuildsNode(t *testing.T) {
	rm, _ := newTestManager(t, 2)
	s := scene.NewScene()
	s.AddReleaseListener(rm)
	h, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SetUpdateFrequency(h, scene.UpdateNever))
	n, _ := s.Node(h)

	require.NoError(t, rm.StartFrame(0))
	static, err := rm.PrepareNode(n)
	require.NoError(t, err)
	require.False(t, static.IsDynamic())
	pending := rm.Stats().PendingFrees

	// The old uniform buffer and its descriptor pool wait for the slot.
	require.NoError(t, s.SetUpdateFrequency(h, scene.UpdateSometimes))
	_, ok := rm.Node(h)
	require.False(t, ok)
	require.Equal(t, pending+2, rm.Stats().PendingFrees)

	dynamic, err := rm.PrepareNode(n)
	require.NoError(t, err)
	require.True(t, dynamic.IsDynamic())
	require.True(t, dynamic.Uniform.Buffer.IsMapped())
}
