package binrewrite

import "fmt"

// BlockTooSmallForRedirectionError is a non-fatal diagnostic: the original
// block is too small to hold a redirection jump, so the redirector leaves
// it untouched and counts it.
type BlockTooSmallForRedirectionError struct {
	OrigSize    int
	JumpSize    int
	OrigAddr    ConcreteAddress
	Description string
}

func (e *BlockTooSmallForRedirectionError) Error() string {
	return fmt.Sprintf("block at %s is %d bytes, too small to hold a %d-byte redirect jump: %s",
		e.OrigAddr, e.OrigSize, e.JumpSize, e.Description)
}

// OverlappingBlocksError is fatal: a decoded instruction straddled the
// discovery-reported end of its block.
type OverlappingBlocksError struct {
	InsnAddr, NextAddr, StopAddr ConcreteAddress
}

func (e *OverlappingBlocksError) Error() string {
	return fmt.Sprintf("instruction at %s extends to %s, past block end %s",
		e.InsnAddr, e.NextAddr, e.StopAddr)
}

// NoByteRegionAtAddressError is fatal: discovery or the ISA provider pointed
// at memory that cannot be decoded.
type NoByteRegionAtAddressError struct {
	Addr ConcreteAddress
}

func (e *NoByteRegionAtAddressError) Error() string {
	return fmt.Sprintf("no byte region at address %s", e.Addr)
}

// MissingSuccessorError is fatal: the fallthrough reifier found no
// program-order successor for a block that needed one.
type MissingSuccessorError struct {
	Addr SymbolicAddress
}

func (e *MissingSuccessorError) Error() string {
	return fmt.Sprintf("block %s falls through but has no program-order successor", e.Addr)
}

// UnassignedSymbolicBlockError is fatal: the allocator's invariant that
// every symbolic block receives exactly one assignment was violated.
type UnassignedSymbolicBlockError struct {
	Addr SymbolicAddress
}

func (e *UnassignedSymbolicBlockError) Error() string {
	return fmt.Sprintf("symbolic block %s was never assigned a concrete address", e.Addr)
}

// UnrelocatableTerminatorError is a non-fatal diagnostic: a block-ending
// jump or branch could not be retargeted to follow its relocated target
// (e.g. a branch displacement no longer fits one byte once its block or
// target moved). The instruction is left with its stale operand and the
// run continues rather than aborting.
type UnrelocatableTerminatorError struct {
	InsnAddr, OldTarget, NewTarget ConcreteAddress
}

func (e *UnrelocatableTerminatorError) Error() string {
	return fmt.Sprintf("terminator at %s could not be retargeted from %s to %s",
		e.InsnAddr, e.OldTarget, e.NewTarget)
}

// MemoryError wraps a failure from the Memory collaborator.
type MemoryError struct {
	Err error
}

func (e *MemoryError) Error() string { return fmt.Sprintf("memory error: %s", e.Err) }
func (e *MemoryError) Unwrap() error { return e.Err }

// PipelineError is returned when a fatal error aborts a run. It carries
// every diagnostic accumulated up to the point of failure, per spec: a
// failed run still yields a log.
type PipelineError struct {
	Err         error
	Diagnostics []error
}

func (e *PipelineError) Error() string { return e.Err.Error() }
func (e *PipelineError) Unwrap() error { return e.Err }
