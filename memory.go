package binrewrite

// Memory is a read-only view over the bytes of the image being rewritten.
// ISA providers use it to resolve bytes at addresses outside the
// instruction currently being classified or assembled (e.g. an indirect
// jump's pointer table).
type Memory interface {
	ByteAt(addr ConcreteAddress) (byte, error)
}

// ByteMemory is the simplest possible Memory: a flat byte slice addressed
// from zero.
type ByteMemory []byte

// ByteAt implements Memory.
func (m ByteMemory) ByteAt(addr ConcreteAddress) (byte, error) {
	if uint64(addr) >= uint64(len(m)) {
		return 0, &NoByteRegionAtAddressError{Addr: addr}
	}
	return m[addr], nil
}

// Len reports the number of addressable bytes.
func (m ByteMemory) Len() int { return len(m) }
