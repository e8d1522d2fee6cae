package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/lsmkv/value"
)

func TestUpsertAndGet(t *testing.T) {
	m := New()
	m.Upsert([]byte("b"), value.Live(1, []byte("banana")))
	m.Upsert([]byte("a"), value.Live(2, []byte("apple")))

	v, ok := m.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("apple"), v.Data())

	_, ok = m.Get([]byte("missing"))
	require.False(t, ok)
}

func TestUpsertOverwriteUpdatesSizeExactly(t *testing.T) {
	m := New()
	m.Upsert([]byte("k"), value.Live(1, []byte("short")))
	require.Equal(t, 1, m.Size())
	sizeAfterFirst := m.SizeInBytes()

	m.Upsert([]byte("k"), value.Live(2, []byte("a much longer value")))
	require.Equal(t, 1, m.Size(), "overwrite must not create a second entry")
	require.Equal(t, len("k")+len("a much longer value"), m.SizeInBytes())
	require.NotEqual(t, sizeAfterFirst, m.SizeInBytes())
}

func TestRemoveInstallsTombstone(t *testing.T) {
	m := New()
	m.Upsert([]byte("k"), value.Live(1, []byte("v")))
	m.Remove([]byte("k"), 2)

	v, ok := m.Get([]byte("k"))
	require.True(t, ok, "tombstoned key is still present in the MemTable")
	require.True(t, v.IsRemoved())
	require.Equal(t, uint64(2), v.Timestamp())
}

func TestIteratorIsSortedAndRespectsFrom(t *testing.T) {
	m := New()
	for _, k := range []string{"d", "b", "a", "c"} {
		m.Upsert([]byte(k), value.Live(1, []byte(k)))
	}

	it := m.Iterator(nil)
	var got []string
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(c.Key))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, got)

	it = m.Iterator([]byte("c"))
	c, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "c", string(c.Key))
}

func TestIteratorSnapshotsAtCallTime(t *testing.T) {
	m := New()
	m.Upsert([]byte("a"), value.Live(1, []byte("1")))
	it := m.Iterator(nil)

	m.Upsert([]byte("b"), value.Live(2, []byte("2")))

	var got []string
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(c.Key))
	}
	require.Equal(t, []string{"a"}, got, "iterator must not see writes after it was constructed")
}
