package binrewrite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesIncludeKeyFields(t *testing.T) {
	small := &BlockTooSmallForRedirectionError{OrigSize: 1, JumpSize: 3, OrigAddr: 0x100, Description: "too small"}
	assert.Contains(t, small.Error(), "0x00000100")
	assert.Contains(t, small.Error(), "too small")

	overlap := &OverlappingBlocksError{InsnAddr: 0x10, NextAddr: 0x14, StopAddr: 0x12}
	assert.Contains(t, overlap.Error(), "0x00000010")

	noRegion := &NoByteRegionAtAddressError{Addr: 0x500}
	assert.Contains(t, noRegion.Error(), "0x00000500")

	missing := &MissingSuccessorError{Addr: SymbolicAddress(7)}
	assert.Contains(t, missing.Error(), "sym#7")

	unassigned := &UnassignedSymbolicBlockError{Addr: SymbolicAddress(9)}
	assert.Contains(t, unassigned.Error(), "sym#9")
}

func TestMemoryErrorUnwraps(t *testing.T) {
	inner := errors.New("disk read failed")
	wrapped := &MemoryError{Err: inner}
	assert.ErrorIs(t, wrapped, inner)
	assert.Contains(t, wrapped.Error(), "disk read failed")
}

func TestPipelineErrorCarriesDiagnosticsAndUnwraps(t *testing.T) {
	inner := errors.New("boom")
	diag := &BlockTooSmallForRedirectionError{OrigAddr: 0x1, OrigSize: 1, JumpSize: 3}
	pe := &PipelineError{Err: inner, Diagnostics: []error{diag}}

	assert.ErrorIs(t, pe, inner)
	assert.Equal(t, "boom", pe.Error())
	assert.Len(t, pe.Diagnostics, 1)
}
