package vulkan

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/math"
)

// MemoryBlockSize is the capacity of every device memory block the
// allocator creates, unless a single buffer needs more.
const MemoryBlockSize uint64 = 256 * 1024 * 1024

type memoryMapper interface {
	MapMemory(memory vk.DeviceMemory, offset, size uint64) (unsafe.Pointer, error)
	UnmapMemory(memory vk.DeviceMemory)
}

// MemoryBlock is one device memory allocation of a single memory type.
// Buffers are placed at increasing offsets and Used only shrinks when the
// buffer at the tail is freed.
//
// A device memory object can only be mapped once, so the block maps its
// whole range on the first reference and unmaps it when the last one is
// dropped. Buffers see the block mapping at their own offset.
type MemoryBlock struct {
	Memory     vk.DeviceMemory
	Capacity   uint64
	Used       uint64
	MemoryType uint32

	mapper     memoryMapper
	mapMutex   sync.Mutex
	references int
	mapData    unsafe.Pointer
}

func (b *MemoryBlock) FreeSpace() uint64 {
	return b.Capacity - b.Used
}

// fits reports whether size bytes aligned to alignment still fit at the tail.
func (b *MemoryBlock) fits(size, alignment uint64) bool {
	offset := math.AlignUp(b.Used, alignment)
	return offset <= b.Capacity && b.Capacity-offset >= size
}

// MapReferences is the number of outstanding map calls on the block.
func (b *MemoryBlock) MapReferences() int {
	b.mapMutex.Lock()
	defer b.mapMutex.Unlock()
	return b.references
}

func (b *MemoryBlock) mapRef() (unsafe.Pointer, error) {
	b.mapMutex.Lock()
	defer b.mapMutex.Unlock()

	if b.references > 0 {
		if b.mapData == nil {
			return nil, errors.New("memory block has map references but no mapped memory")
		}
		b.references++
		return b.mapData, nil
	}
	p, err := b.mapper.MapMemory(b.Memory, 0, b.Capacity)
	if err != nil {
		return nil, err
	}
	b.mapData = p
	b.references = 1
	return p, nil
}

func (b *MemoryBlock) unmapRef() {
	b.mapMutex.Lock()
	defer b.mapMutex.Unlock()

	if b.references == 0 {
		return
	}
	b.references--
	if b.references == 0 {
		b.mapper.UnmapMemory(b.Memory)
		b.mapData = nil
	}
}

// unmapAll drops every reference, as before the memory is freed.
func (b *MemoryBlock) unmapAll() {
	b.mapMutex.Lock()
	defer b.mapMutex.Unlock()

	if b.references > 0 {
		b.mapper.UnmapMemory(b.Memory)
	}
	b.references = 0
	b.mapData = nil
}

// ManagedBuffer is a buffer bound to the range [Offset, Offset+Size) of a
// MemoryBlock.
type ManagedBuffer struct {
	Buffer     vk.Buffer
	Offset     uint64
	Size       uint64
	Usage      vk.BufferUsageFlags
	Properties vk.MemoryPropertyFlags

	block  *MemoryBlock
	start  uint64
	mapped unsafe.Pointer
}

// IsLast reports whether the buffer ends exactly at the block's tail, so
// freeing it returns its bytes to the block.
func (b *ManagedBuffer) IsLast() bool {
	return b.Offset+b.Size == b.block.Used
}

func (b *ManagedBuffer) Block() *MemoryBlock {
	return b.block
}

// Map keeps the buffer mapped until Unmap is called. It holds one
// reference on the block mapping.
func (b *ManagedBuffer) Map() error {
	if b.mapped != nil {
		return nil
	}
	p, err := b.block.mapRef()
	if err != nil {
		return err
	}
	b.mapped = unsafe.Add(p, b.Offset)
	return nil
}

func (b *ManagedBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.mapped = nil
	b.block.unmapRef()
}

func (b *ManagedBuffer) IsMapped() bool {
	return b.mapped != nil
}

// Mapped returns the host view of a mapped buffer, or nil.
func (b *ManagedBuffer) Mapped() []byte {
	if b.mapped == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.mapped), b.Size)
}

// Copy writes data at offset. Unmapped buffers are mapped for the duration
// of the copy.
func (b *ManagedBuffer) Copy(data []byte, offset uint64) error {
	if offset+uint64(len(data)) > b.Size {
		return errors.Newf("copy of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size)
	}
	if len(data) == 0 {
		return nil
	}
	if b.mapped != nil {
		copy(unsafe.Slice((*byte)(unsafe.Add(b.mapped, offset)), len(data)), data)
		return nil
	}
	p, err := b.block.mapRef()
	if err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(unsafe.Add(p, b.Offset+offset)), len(data)), data)
	b.block.unmapRef()
	return nil
}
