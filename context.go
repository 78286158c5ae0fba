package binrewrite

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BlockMapEntry is one row of the public original->redirected translation
// table, consumed by downstream tools such as debuggers or CFI patchers.
type BlockMapEntry struct {
	Original   ConcreteAddress
	Redirected ConcreteAddress
}

// RewriterContext is the shared environment threaded through every pass: a
// read-only environment plus mutable counters, the symbolic-address
// allocator, and an ordered diagnostic log. It corresponds to the monad
// transformer stack in the source implementation (reader + state + writer +
// error), collapsed into a single mutable-by-reference object.
type RewriterContext struct {
	ISA       ISA
	Memory    Memory
	SymbolMap map[string]ConcreteAddress // named addresses, for diagnostic text only

	NewSymbols             *SymbolicAddressAllocator
	UnrelocatableTermCount int
	SmallBlockCount        int
	ReusedByteCount        int
	IncompleteBlockCount   int
	BlockMapping           []BlockMapEntry

	diagnostics []error
	log         *logrus.Logger
}

// NewRewriterContext builds a fresh context. symbolMap may be nil.
func NewRewriterContext(isa ISA, mem Memory, symbolMap map[string]ConcreteAddress) *RewriterContext {
	if symbolMap == nil {
		symbolMap = map[string]ConcreteAddress{}
	}
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return &RewriterContext{
		ISA:        isa,
		Memory:     mem,
		SymbolMap:  symbolMap,
		NewSymbols: &SymbolicAddressAllocator{},
		log:        log,
	}
}

// Logger exposes the context's structured logger so callers (e.g. the CLI)
// can adjust its level or output without threading a separate logger
// through the pipeline.
func (c *RewriterContext) Logger() *logrus.Logger { return c.log }

// Tell appends a diagnostic to the ordered log and mirrors it to the
// structured logger. Diagnostic order is the order passes emit them, per
// the spec's ordering guarantee.
func (c *RewriterContext) Tell(diag error) {
	c.diagnostics = append(c.diagnostics, diag)
	c.log.WithField("diagnostic", diag.Error()).Warn("rewriter diagnostic")

	switch d := diag.(type) {
	case *BlockTooSmallForRedirectionError:
		c.SmallBlockCount++
	case *incompleteFunctionDiagnostic:
		c.IncompleteBlockCount++
		_ = d
	case *UnrelocatableTerminatorError:
		c.UnrelocatableTermCount++
	}
}

// Fail aborts the current pipeline with an error, preserving every
// diagnostic accumulated so far. Always returns non-nil.
func (c *RewriterContext) Fail(err error) error {
	wrapped := errors.WithStack(err)
	c.log.WithError(wrapped).Error("rewriter pipeline aborted")
	return &PipelineError{Err: wrapped, Diagnostics: c.Diagnostics()}
}

// Diagnostics returns a copy of the diagnostic log accumulated so far.
func (c *RewriterContext) Diagnostics() []error {
	out := make([]error, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// AddBlockMapping records one original->redirected translation. Mutation
// order is the order of calls, which callers must make deterministic (the
// redirector processes AddressAssignedPairs in Layout.ProgramBlockLayout
// order).
func (c *RewriterContext) AddBlockMapping(original, redirected ConcreteAddress) {
	c.BlockMapping = append(c.BlockMapping, BlockMapEntry{Original: original, Redirected: redirected})
}

// TellIncompleteFunction records an incomplete-function diagnostic for addr
// and increments IncompleteBlockCount. Discovery passes the address where its
// walk gave up (an undecodable byte or an indirect jump); the layout driver
// passes each Modified block it refuses to relocate.
func (c *RewriterContext) TellIncompleteFunction(addr ConcreteAddress) {
	c.Tell(&incompleteFunctionDiagnostic{Addr: addr})
}

// incompleteFunctionDiagnostic records that a block was skipped because it
// belongs to a function discovery could not fully resolve.
type incompleteFunctionDiagnostic struct {
	Addr ConcreteAddress
}

func (d *incompleteFunctionDiagnostic) Error() string {
	return "block at " + d.Addr.String() + " belongs to an incomplete function, refusing to rewrite"
}
