package containers_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/containers"
)

type thing struct{ name string }

func TestSlab_InsertGetRemove(t *testing.T) {
	s := containers.NewSlab[thing]()

	var zero containers.Handle[thing]
	require.True(t, zero.IsZero())
	_, ok := s.Get(zero)
	require.False(t, ok)

	a := s.Insert(&thing{"a"})
	b := s.Insert(&thing{"b"})
	require.Equal(t, 2, s.Len())

	v, ok := s.Get(a)
	require.True(t, ok)
	require.Equal(t, "a", v.name)

	removed, ok := s.Remove(a)
	require.True(t, ok)
	require.Equal(t, "a", removed.name)
	require.False(t, s.Contains(a))
	require.True(t, s.Contains(b))

	_, ok = s.Remove(a)
	require.False(t, ok, "double remove must fail")
}

func TestSlab_ReusedSlotRejectsStaleHandle(t *testing.T) {
	s := containers.NewSlab[thing]()
	a := s.Insert(&thing{"a"})
	s.Remove(a)

	c := s.Insert(&thing{"c"})
	require.Equal(t, a.Index(), c.Index(), "slot is recycled")

	_, ok := s.Get(a)
	require.False(t, ok)
	v, ok := s.Get(c)
	require.True(t, ok)
	require.Equal(t, "c", v.name)
}

func TestSlab_Each(t *testing.T) {
	s := containers.NewSlab[thing]()
	a := s.Insert(&thing{"a"})
	s.Insert(&thing{"b"})
	s.Insert(&thing{"c"})
	s.Remove(a)

	var names []string
	s.Each(func(_ containers.Handle[thing], v *thing) { names = append(names, v.name) })
	require.Equal(t, []string{"b", "c"}, names)
}

func TestRingQueue_PushOverwritesOldest(t *testing.T) {
	rq := containers.NewRingQueue[int](3)
	for i := 1; i <= 5; i++ {
		rq.Push(i)
	}
	require.True(t, rq.IsFull())

	var got []int
	rq.Each(func(v int) { got = append(got, v) })
	require.Equal(t, []int{3, 4, 5}, got)

	require.ErrorIs(t, rq.Enqueue(6), containers.ErrQueueFull)
	v, err := rq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 3, v)
}
