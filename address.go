package binrewrite

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAddressOverflow is returned when offset arithmetic on a ConcreteAddress
// would wrap around the address space. The spec is explicit that this must
// never happen silently.
var ErrAddressOverflow = errors.New("address arithmetic overflowed")

// ConcreteAddress is an absolute code address within the image being
// rewritten.
type ConcreteAddress uint64

// Add returns addr+delta, or ErrAddressOverflow if the result would wrap
// below zero or past the top of the address space.
func (a ConcreteAddress) Add(delta int64) (ConcreteAddress, error) {
	if delta >= 0 {
		r := a + ConcreteAddress(delta)
		if r < a {
			return 0, errors.Wrapf(ErrAddressOverflow, "%s + %d", a, delta)
		}
		return r, nil
	}
	d := ConcreteAddress(-delta)
	if d > a {
		return 0, errors.Wrapf(ErrAddressOverflow, "%s + %d", a, delta)
	}
	return a - d, nil
}

// MustAdd panics on overflow. Reserved for call sites that have already
// established the delta is safe, e.g. advancing by a size already measured
// from the same address space.
func (a ConcreteAddress) MustAdd(delta int64) ConcreteAddress {
	r, err := a.Add(delta)
	if err != nil {
		panic(err)
	}
	return r
}

// Sub returns a-b as a signed byte count.
func (a ConcreteAddress) Sub(b ConcreteAddress) int64 {
	return int64(a) - int64(b)
}

// Less reports whether a sorts before b.
func (a ConcreteAddress) Less(b ConcreteAddress) bool { return a < b }

func (a ConcreteAddress) String() string { return fmt.Sprintf("0x%08X", uint64(a)) }

// SymbolicAddress names the eventual address of a block or injected code
// blob that has not yet been placed. It supports equality only.
type SymbolicAddress uint64

func (s SymbolicAddress) String() string { return fmt.Sprintf("sym#%d", uint64(s)) }

// SymbolicAddressAllocator hands out SymbolicAddresses monotonically. Once
// issued, an address is never reused within the allocator's lifetime.
type SymbolicAddressAllocator struct {
	next uint64
}

// New returns a fresh SymbolicAddress.
func (a *SymbolicAddressAllocator) New() SymbolicAddress {
	id := a.next
	a.next++
	return SymbolicAddress(id)
}

// SymbolicInfo pairs a not-yet-placed block's symbolic identity with the
// concrete address of the original block it was derived from, so later
// passes (and diagnostics) can report provenance without a side table.
type SymbolicInfo struct {
	Symbolic SymbolicAddress
	Original ConcreteAddress
}

func (s SymbolicInfo) String() string {
	return fmt.Sprintf("%s(from %s)", s.Symbolic, s.Original)
}
