package pmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslators(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		r := require.New(t)

		var tr Identity
		r.Equal(uint64(0x1000), tr.PhysAddr(0x1000))

		local, ok := tr.LocalAddr(0x1000)
		r.True(ok)
		r.Equal(uintptr(0x1000), local)
	})

	t.Run("offset round trips", func(t *testing.T) {
		r := require.New(t)

		tr := Offset{Delta: 0x80_0000_0000}
		phys := tr.PhysAddr(0x1234)
		r.Equal(uint64(0x80_0000_1234), phys)

		local, ok := tr.LocalAddr(phys)
		r.True(ok)
		r.Equal(uintptr(0x1234), local)

		_, ok = tr.LocalAddr(0x10)
		r.False(ok)
	})

	t.Run("pagemap refuses unpinned memory", func(t *testing.T) {
		r := require.New(t)

		p := NewPagemap()
		r.Panics(func() { p.PhysAddr(0x1000) })
		r.NoError(p.Pin(nil))
	})
}
