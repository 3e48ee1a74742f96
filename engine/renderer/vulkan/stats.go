package vulkan

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

type BlockStats struct {
	MemoryType uint32
	Capacity   uint64
	Used       uint64
}

type ResourceStats struct {
	Blocks          []BlockStats
	LiveBuffers     int
	RecycledBuffers int
	PendingFrees    int
	Geometries      int
	Nodes           int
	Shaders         int
}

func (r *ResourceManager) Stats() ResourceStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := ResourceStats{
		LiveBuffers:     r.live,
		RecycledBuffers: len(r.recycle),
	}
	for _, b := range r.blocks {
		s.Blocks = append(s.Blocks, BlockStats{MemoryType: b.MemoryType, Capacity: b.Capacity, Used: b.Used})
	}
	for _, bucket := range r.toFree {
		s.PendingFrees += len(bucket)
	}
	s.Geometries = syncMapLen(&r.geometries)
	s.Nodes = syncMapLen(&r.nodes)
	s.Shaders = syncMapLen(&r.shaders)
	return s
}

// StatsJSON renders Stats as a JSON object.
func (r *ResourceManager) StatsJSON() []byte {
	s := r.Stats()

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("LiveBuffers").Int(s.LiveBuffers)
	obj.Name("RecycledBuffers").Int(s.RecycledBuffers)
	obj.Name("PendingFrees").Int(s.PendingFrees)
	obj.Name("Geometries").Int(s.Geometries)
	obj.Name("Nodes").Int(s.Nodes)
	obj.Name("Shaders").Int(s.Shaders)

	blocks := obj.Name("Blocks").Array()
	for _, b := range s.Blocks {
		o := blocks.Object()
		o.Name("MemoryType").Int(int(b.MemoryType))
		o.Name("TotalBytes").Float64(float64(b.Capacity))
		o.Name("UsedBytes").Float64(float64(b.Used))
		o.End()
	}
	blocks.End()
	obj.End()
	return w.Bytes()
}

type rangeable interface {
	Range(f func(key, value any) bool)
}

func syncMapLen(m rangeable) int {
	n := 0
	m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
