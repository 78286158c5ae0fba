package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcreteAddressAddOverflow(t *testing.T) {
	var a ConcreteAddress
	_, err := a.Add(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressOverflow)
}

func TestConcreteAddressAddWraparoundHigh(t *testing.T) {
	a := ConcreteAddress(^uint64(0))
	_, err := a.Add(1)
	require.Error(t, err)
}

func TestConcreteAddressMustAddPanicsOnOverflow(t *testing.T) {
	assert.Panics(t, func() {
		ConcreteAddress(0).MustAdd(-5)
	})
}

func TestConcreteAddressSub(t *testing.T) {
	a := ConcreteAddress(100)
	b := ConcreteAddress(40)
	assert.Equal(t, int64(60), a.Sub(b))
	assert.Equal(t, int64(-60), b.Sub(a))
}

func TestSymbolicAddressAllocatorNeverReuses(t *testing.T) {
	alloc := &SymbolicAddressAllocator{}
	seen := map[SymbolicAddress]bool{}
	for i := 0; i < 100; i++ {
		s := alloc.New()
		require.False(t, seen[s], "symbolic address reused: %v", s)
		seen[s] = true
	}
}
