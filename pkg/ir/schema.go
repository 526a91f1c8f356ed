package ir

// Schema classifies the semantic role of a node's input positions. Positional
// meaning is fixed per schema; holes (nil inputs) are permitted anywhere.
type Schema int

const (
	// SchemaPure: every input is a value operand.
	SchemaPure Schema = iota
	// SchemaControl: input 0 is control, input 1 an optional condition.
	SchemaControl
	// SchemaMerge: Phi has input 0 = Region and the rest values; Region and
	// MergeMem treat every input as a predecessor.
	SchemaMerge
	// SchemaLoad: 0 = control, 1 = memory, 2+ = address/index.
	SchemaLoad
	// SchemaStore: 0 = control, 1 = memory, 2 = base, 3+ = index/value.
	SchemaStore
	// SchemaAllocate: 0 = control, 1 = memory, 2+ = size.
	SchemaAllocate
	// SchemaReturn: 0 = control, 1+ = memory/value.
	SchemaReturn
	// SchemaStart: no inputs.
	SchemaStart
	// SchemaProjection: input 0 is the projected source.
	SchemaProjection
	// SchemaParameter: input 0 is the Start node.
	SchemaParameter
)

func (s Schema) String() string {
	switch s {
	case SchemaPure:
		return "S0/pure"
	case SchemaControl:
		return "S1/control"
	case SchemaMerge:
		return "S2/merge"
	case SchemaLoad:
		return "S3/load"
	case SchemaStore:
		return "S4/store"
	case SchemaAllocate:
		return "S5/allocate"
	case SchemaReturn:
		return "S6/return"
	case SchemaStart:
		return "S7/start"
	case SchemaProjection:
		return "S8/projection"
	case SchemaParameter:
		return "S9/parameter"
	default:
		return "S?/invalid"
	}
}

// SchemaOf returns the input schema for an opcode.
func SchemaOf(op Opcode) Schema {
	switch op {
	case OpStart:
		return SchemaStart
	case OpIf, OpIfTrue, OpIfFalse, OpGoto, OpRoot, OpHalt, OpSafePoint,
		OpParsePredicate, OpCallStaticJava, OpRangeCheck:
		return SchemaControl
	case OpRegion, OpPhi, OpMergeMem:
		return SchemaMerge
	case OpLoadB, OpLoadUB, OpLoadS, OpLoadUS, OpLoadI, OpLoadL, OpLoadP,
		OpLoadN, OpLoadRange:
		return SchemaLoad
	case OpStoreB, OpStoreC, OpStoreI, OpStoreL, OpStoreP, OpStoreN:
		return SchemaStore
	case OpAllocate, OpAllocateArray:
		return SchemaAllocate
	case OpReturn:
		return SchemaReturn
	case OpProj:
		return SchemaProjection
	case OpParm:
		return SchemaParameter
	default:
		return SchemaPure
	}
}

// Schema returns the input schema of the node's opcode.
func (n *Node) Schema() Schema {
	return SchemaOf(n.op)
}

// ControlInput returns the control input (slot 0) for schemas that carry one,
// or nil.
func (n *Node) ControlInput() *Node {
	switch n.Schema() {
	case SchemaControl, SchemaLoad, SchemaStore, SchemaAllocate, SchemaReturn:
		return n.Input(0)
	}
	return nil
}

// MemoryInput returns the memory input (slot 1) for load/store/allocate
// schemas, or nil.
func (n *Node) MemoryInput() *Node {
	switch n.Schema() {
	case SchemaLoad, SchemaStore, SchemaAllocate:
		return n.Input(1)
	}
	return nil
}

// ValueInputs returns the node's value operands in positional order, holes
// removed. The slice is freshly allocated.
func (n *Node) ValueInputs() []*Node {
	var from int
	switch n.Schema() {
	case SchemaPure:
		from = 0
	case SchemaControl, SchemaReturn, SchemaProjection:
		from = 1
	case SchemaMerge:
		if n.op != OpPhi {
			return nil
		}
		from = 1
	case SchemaLoad, SchemaStore:
		from = 2
	case SchemaAllocate:
		from = 2
	default:
		return nil
	}
	var vals []*Node
	for i := from; i < len(n.inputs); i++ {
		if n.inputs[i] != nil {
			vals = append(vals, n.inputs[i])
		}
	}
	return vals
}

// RegionInput returns the Region a Phi merges at (slot 0), or nil.
func (n *Node) RegionInput() *Node {
	if n.op != OpPhi {
		return nil
	}
	return n.Input(0)
}

// PhiValues returns a Phi's value inputs with holes preserved, so callers can
// align them positionally with the Region's predecessor list.
func (n *Node) PhiValues() []*Node {
	if n.op != OpPhi || len(n.inputs) <= 1 {
		return nil
	}
	return n.inputs[1:]
}

// RegionPreds returns a Region's (or MergeMem's) predecessor inputs with
// holes preserved.
func (n *Node) RegionPreds() []*Node {
	if n.op != OpRegion && n.op != OpMergeMem {
		return nil
	}
	return n.inputs
}

// AddressInput returns the base/address input (slot 2) of a load or store, or
// nil.
func (n *Node) AddressInput() *Node {
	switch n.Schema() {
	case SchemaLoad, SchemaStore:
		return n.Input(2)
	}
	return nil
}

// StoreValueInput returns the stored value: slot 4 for array stores (slot 3
// is the index), slot 3 otherwise.
func (n *Node) StoreValueInput() *Node {
	if n.Schema() != SchemaStore {
		return nil
	}
	if n.IsArrayAccess() {
		return n.Input(4)
	}
	return n.Input(3)
}
