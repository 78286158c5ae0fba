package binrewrite

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// SCFG is a symbolic control flow graph hint for one function, used only by
// the loop clusterer. Construction of a real SCFG from a disassembly is out
// of scope for this module; it is consumed here as an opaque collaborator.
type SCFG interface {
	// Blocks returns every block address known to this function's CFG.
	Blocks() []ConcreteAddress
	// Successors returns the immediate successor addresses of addr.
	Successors(addr ConcreteAddress) []ConcreteAddress
}

// CFGProvider lazily builds an SCFG for one function entry. The loop
// clusterer invokes it at most once per entry and caches the result, since
// building an SCFG may be an expensive external call.
type CFGProvider func() (SCFG, error)

type cfgCache struct {
	providers map[ConcreteAddress]CFGProvider
	built     map[ConcreteAddress]SCFG
}

func newCFGCache(providers map[ConcreteAddress]CFGProvider) *cfgCache {
	return &cfgCache{providers: providers, built: make(map[ConcreteAddress]SCFG, len(providers))}
}

func (c *cfgCache) get(entry ConcreteAddress) (SCFG, error) {
	if cfg, ok := c.built[entry]; ok {
		return cfg, nil
	}
	provider := c.providers[entry]
	cfg, err := provider()
	if err != nil {
		return nil, err
	}
	c.built[entry] = cfg
	return cfg, nil
}

// unionFind is a path-compressing disjoint-set keyed by ConcreteAddress,
// transient to a single clustering run.
type unionFind struct {
	parent map[ConcreteAddress]ConcreteAddress
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[ConcreteAddress]ConcreteAddress)}
}

func (u *unionFind) find(a ConcreteAddress) ConcreteAddress {
	p, ok := u.parent[a]
	if !ok {
		u.parent[a] = a
		return a
	}
	if p == a {
		return a
	}
	root := u.find(p)
	u.parent[a] = root
	return root
}

func (u *unionFind) union(a, b ConcreteAddress) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// ClusterLoops computes a loop-equivalence class for every block address
// that belongs to a loop in the supplied CFGs; a block in no loop has no
// entry in the returned map. Non-trivial strongly connected
// components (Tarjan's algorithm stands in for the "weak topological
// ordering" the spec describes: a loop is any component that is not a
// single, non-self-looping node) are unioned together and frozen into a
// representative map.
func ClusterLoops(providers map[ConcreteAddress]CFGProvider) (map[ConcreteAddress]ConcreteAddress, error) {
	cache := newCFGCache(providers)
	uf := newUnionFind()

	for entry := range providers {
		cfg, err := cache.get(entry)
		if err != nil {
			return nil, err
		}
		for _, comp := range tarjanSCC(cfg) {
			if !isLoop(cfg, comp) {
				continue
			}
			head := comp[0]
			uf.find(head) // registers a single-node self-loop as its own class
			for _, n := range comp[1:] {
				uf.union(head, n)
			}
		}
	}

	frozen := make(map[ConcreteAddress]ConcreteAddress, len(uf.parent))
	for addr := range uf.parent {
		frozen[addr] = uf.find(addr)
	}
	return frozen, nil
}

func isLoop(cfg SCFG, comp []ConcreteAddress) bool {
	if len(comp) > 1 {
		return true
	}
	n := comp[0]
	for _, s := range cfg.Successors(n) {
		if s == n {
			return true
		}
	}
	return false
}

// tarjanSCC computes strongly connected components of cfg in the order
// Tarjan's algorithm completes them: a reverse topological order of the
// condensation graph (a component comes after every component it reaches).
func tarjanSCC(cfg SCFG) [][]ConcreteAddress {
	type nodeState struct {
		index, lowlink int
		onStack        bool
	}

	index := 0
	states := map[ConcreteAddress]*nodeState{}
	var stack []ConcreteAddress
	var result [][]ConcreteAddress

	var strongconnect func(v ConcreteAddress)
	strongconnect = func(v ConcreteAddress) {
		st := &nodeState{index: index, lowlink: index, onStack: true}
		states[v] = st
		index++
		stack = append(stack, v)

		for _, w := range cfg.Successors(v) {
			if ws, ok := states[w]; !ok {
				strongconnect(w)
				if states[w].lowlink < st.lowlink {
					st.lowlink = states[w].lowlink
				}
			} else if ws.onStack {
				if ws.index < st.lowlink {
					st.lowlink = ws.index
				}
			}
		}

		if st.lowlink == st.index {
			var comp []ConcreteAddress
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				states[w].onStack = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			result = append(result, comp)
		}
	}

	for _, v := range cfg.Blocks() {
		if _, ok := states[v]; !ok {
			strongconnect(v)
		}
	}
	return result
}

// ExpandMustRelocate augments the relocation set: any block whose loop
// class is shared with a Modified block is pulled in too, even if it is
// individually Unmodified, so the whole loop moves together.
func ExpandMustRelocate(classOf map[ConcreteAddress]ConcreteAddress, pairs []SymbolicPair) map[ConcreteAddress]bool {
	modifiedClasses := mapset.NewThreadUnsafeSet[ConcreteAddress]()
	for _, p := range pairs {
		if p.Status != Modified {
			continue
		}
		if cls, ok := classOf[p.Original.Address]; ok {
			modifiedClasses.Add(cls)
		}
	}

	must := map[ConcreteAddress]bool{}
	for _, p := range pairs {
		if p.Status == Modified {
			must[p.Original.Address] = true
			continue
		}
		if cls, ok := classOf[p.Original.Address]; ok && modifiedClasses.Contains(cls) {
			must[p.Original.Address] = true
		}
	}
	return must
}

// GroupByLoopClass partitions the must-relocate pairs into groups that will
// be placed contiguously: one group per loop class (members sorted by
// original address so neighbours in the original code remain neighbours in
// the output), plus one singleton group per must-relocate pair with no
// loop class.
func GroupByLoopClass(classOf map[ConcreteAddress]ConcreteAddress, must map[ConcreteAddress]bool, pairs []SymbolicPair) [][]SymbolicPair {
	groups := map[ConcreteAddress][]SymbolicPair{}
	var classOrder []ConcreteAddress
	var singles []SymbolicPair

	for _, p := range pairs {
		if !must[p.Original.Address] {
			continue
		}
		cls, ok := classOf[p.Original.Address]
		if !ok {
			singles = append(singles, p)
			continue
		}
		if _, seen := groups[cls]; !seen {
			classOrder = append(classOrder, cls)
		}
		groups[cls] = append(groups[cls], p)
	}

	result := make([][]SymbolicPair, 0, len(classOrder)+len(singles))
	for _, cls := range classOrder {
		g := groups[cls]
		sort.Slice(g, func(i, j int) bool { return g[i].Original.Address < g[j].Original.Address })
		result = append(result, g)
	}
	for _, p := range singles {
		result = append(result, []SymbolicPair{p})
	}
	return result
}
