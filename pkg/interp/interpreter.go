package interp

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sunlang/suntv/pkg/ir"
)

const (
	DefaultMaxSteps          = 10000
	DefaultMaxLoopIterations = 100
	DefaultMaxEvalDepth      = 2000
)

// Config bounds one execution. Zero values select the defaults.
type Config struct {
	// MaxSteps caps control-flow steps per execution.
	MaxSteps int
	// MaxLoopIterations caps revisits of any single Region.
	MaxLoopIterations int
	// MaxEvalDepth caps value-evaluation recursion.
	MaxEvalDepth int
}

func (c Config) withDefaults() Config {
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxLoopIterations == 0 {
		c.MaxLoopIterations = DefaultMaxLoopIterations
	}
	if c.MaxEvalDepth == 0 {
		c.MaxEvalDepth = DefaultMaxEvalDepth
	}
	return c
}

// Interpreter concretely executes a Sea-of-Nodes graph: control edges are
// traversed dynamically from Start, and value subgraphs are evaluated on
// demand with memoization. The graph is borrowed read-only; every call to
// Execute uses fresh per-execution state, so one Interpreter may serve
// concurrent executions.
type Interpreter struct {
	logger *slog.Logger
	graph  *ir.Graph
	config Config
}

func New(logger *slog.Logger, g *ir.Graph, config Config) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		logger: logger,
		graph:  g,
		config: config.withDefaults(),
	}
}

// Execute runs the graph with the given inputs on an empty heap. Runtime
// traps (division by zero, bad indices, bad bases) become a Throw outcome;
// any other failure is an interpreter error.
func (in *Interpreter) Execute(inputs []Value) (Outcome, error) {
	return in.ExecuteWithHeap(inputs, nil)
}

// ExecuteWithHeap runs the graph against a copy of the given initial heap,
// which allows pre-populating arrays and objects for methods that take
// reference parameters. The caller's heap is never mutated.
func (in *Interpreter) ExecuteWithHeap(inputs []Value, initial *Heap) (Outcome, error) {
	heap := NewHeap()
	if initial != nil {
		heap = initial.Clone()
	}

	ex := &execution{
		in:         in,
		logger:     in.logger,
		graph:      in.graph,
		config:     in.config,
		heap:       heap,
		cache:      make(map[*ir.Node]Value),
		evalActive: make(map[*ir.Node]struct{}),
		regionPred: make(map[*ir.Node]*ir.Node),
		loopIters:  make(map[*ir.Node]int),
		applied:    make(map[*ir.Node]struct{}),
	}

	if err := ex.bindParameters(inputs); err != nil {
		return Outcome{}, err
	}
	ex.successors = ControlSuccessors(in.graph)
	ex.indexPhis()

	out, err := ex.run()
	if err != nil {
		if t, ok := AsTrap(err); ok {
			return throwOutcome(t.Kind, ex.heap), nil
		}
		return Outcome{}, err
	}
	return out, nil
}

// isControlConsumer reports whether op consumes a control token through its
// control input and therefore contributes control-flow edges.
func isControlConsumer(op ir.Opcode) bool {
	switch op {
	case ir.OpIf, ir.OpIfTrue, ir.OpIfFalse, ir.OpGoto, ir.OpReturn,
		ir.OpHalt, ir.OpSafePoint, ir.OpParsePredicate, ir.OpCallStaticJava,
		ir.OpRegion, ir.OpProj, ir.OpParm, ir.OpRangeCheck:
		return true
	}
	return false
}

// ControlSuccessors precomputes the control-flow adjacency of a graph: for
// every control producer, the consumers reachable in one step, sorted by
// node id for deterministic traversal.
func ControlSuccessors(g *ir.Graph) map[*ir.Node][]*ir.Node {
	succ := make(map[*ir.Node][]*ir.Node)
	add := func(from, to *ir.Node) {
		if from == nil || from == to {
			return
		}
		succ[from] = append(succ[from], to)
	}
	for _, n := range g.Nodes() {
		if !isControlConsumer(n.Op()) {
			continue
		}
		if n.Op() == ir.OpRegion {
			for _, p := range n.Inputs() {
				add(p, n)
			}
			continue
		}
		add(n.Input(0), n)
	}
	for from, list := range succ {
		slices.SortFunc(list, func(a, b *ir.Node) int {
			return int(a.ID() - b.ID())
		})
		succ[from] = slices.CompactFunc(list, func(a, b *ir.Node) bool { return a == b })
	}
	return succ
}

// execution is the per-call state: value cache, traversal maps, Phi-update
// scope, and the owned heap.
type execution struct {
	in     *Interpreter
	logger *slog.Logger
	graph  *ir.Graph
	config Config

	heap       *Heap
	successors map[*ir.Node][]*ir.Node
	cache      map[*ir.Node]Value
	evalActive map[*ir.Node]struct{}
	evalDepth  int

	// regionPred tracks the control predecessor that most recently delivered
	// control to each Region; Phi selection aligns against it.
	regionPred map[*ir.Node]*ir.Node
	loopIters  map[*ir.Node]int

	// Phi back-edge update scope.
	inPhiUpdate    bool
	updatingRegion *ir.Node
	updatingPhi    *ir.Node
	phiOld         map[*ir.Node]Value

	// Stores already applied to the heap during this execution. Load-time
	// replay skips these; Region-entry replay re-executes per visit so each
	// loop iteration writes with its own operand values.
	applied map[*ir.Node]struct{}

	dataPhis map[*ir.Node][]*ir.Node
	memPhis  map[*ir.Node][]*ir.Node

	steps int
}

// Parameter binding

func isDataParm(n *ir.Node) bool {
	t, ok := n.PropString("type")
	if !ok {
		// Hand-built graphs carry no type properties; their Parms are data.
		return true
	}
	switch t {
	case "control", "memory", "return_address", "abIO", "rawptr:":
		return false
	}
	return strings.HasSuffix(t, ":")
}

// parseParmIndex recovers N from a dump_spec of the form "ParmN: ...".
func parseParmIndex(spec string) (int, bool) {
	pos := strings.Index(spec, "Parm")
	if pos < 0 {
		return 0, false
	}
	rest := spec[pos+len("Parm"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 || end >= len(rest) || rest[end] != ':' {
		return 0, false
	}
	idx := 0
	for _, c := range rest[:end] {
		idx = idx*10 + int(c-'0')
	}
	return idx, true
}

func parmIndex(n *ir.Node) int {
	if v, ok := n.PropInt64("index"); ok {
		return int(v)
	}
	if idx, ok := parseParmIndex(n.DumpSpec()); ok {
		return idx
	}
	return int(^uint(0) >> 1)
}

func (ex *execution) bindParameters(inputs []Value) error {
	var parms []*ir.Node
	for _, n := range ex.graph.ParameterNodes() {
		if isDataParm(n) {
			parms = append(parms, n)
		}
	}
	slices.SortStableFunc(parms, func(a, b *ir.Node) int {
		return parmIndex(a) - parmIndex(b)
	})

	if len(inputs) != len(parms) {
		return fmt.Errorf("expected %d arguments, got %d", len(parms), len(inputs))
	}
	for i, p := range parms {
		ex.cache[p] = inputs[i]
	}
	return nil
}

func (ex *execution) indexPhis() {
	ex.dataPhis = make(map[*ir.Node][]*ir.Node)
	ex.memPhis = make(map[*ir.Node][]*ir.Node)
	for _, n := range ex.graph.Nodes() {
		if n.Op() != ir.OpPhi {
			continue
		}
		region := n.RegionInput()
		if region == nil {
			continue
		}
		if isDataPhi(n) {
			ex.dataPhis[region] = append(ex.dataPhis[region], n)
		} else if n.TypeName() == "memory" {
			ex.memPhis[region] = append(ex.memPhis[region], n)
		}
	}
}

// Control stepping

func (ex *execution) run() (Outcome, error) {
	cur := ex.graph.Start()
	if cur == nil {
		return Outcome{}, fmt.Errorf("graph has no Start node")
	}

	for {
		ex.steps++
		if ex.steps > ex.config.MaxSteps {
			return Outcome{}, fmt.Errorf("control step budget (%d) exceeded at node %d", ex.config.MaxSteps, cur.ID())
		}

		if cur.Op() == ir.OpReturn {
			return ex.buildOutcome(cur)
		}

		next, err := ex.step(cur)
		if err != nil {
			return Outcome{}, err
		}
		ex.logger.Debug("control step", "from", cur.ID(), "to", next.ID(), "opcode", next.Op().String())
		if next.Op() == ir.OpRegion {
			ex.regionPred[next] = cur
		}
		cur = next
	}
}

func (ex *execution) step(cur *ir.Node) (*ir.Node, error) {
	switch cur.Op() {
	case ir.OpIf, ir.OpRangeCheck:
		vals := cur.ValueInputs()
		if len(vals) == 0 {
			return nil, fmt.Errorf("%s node %d has no condition input", cur.Op(), cur.ID())
		}
		cond, err := ex.evalNode(vals[0])
		if err != nil {
			return nil, err
		}
		return ex.branch(cur, cond.Truthy())

	case ir.OpParsePredicate:
		// Predicate conditions are constant-true guards; a missing condition
		// still takes the true projection.
		taken := true
		if vals := cur.ValueInputs(); len(vals) > 0 {
			cond, err := ex.evalNode(vals[0])
			if err != nil {
				return nil, err
			}
			taken = cond.Truthy()
		}
		if next, err := ex.branch(cur, taken); err == nil {
			return next, nil
		}
		return ex.findControlSuccessor(cur)

	case ir.OpRegion:
		if err := ex.visitRegion(cur); err != nil {
			return nil, err
		}
		return ex.findControlSuccessor(cur)

	case ir.OpHalt:
		return nil, fmt.Errorf("control reached Halt node %d", cur.ID())

	default:
		return ex.findControlSuccessor(cur)
	}
}

func (ex *execution) branch(cur *ir.Node, taken bool) (*ir.Node, error) {
	want := ir.OpIfTrue
	if !taken {
		want = ir.OpIfFalse
	}
	for _, s := range ex.successors[cur] {
		if s.Op() == want {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s node %d has no %s successor", cur.Op(), cur.ID(), want)
}

// stepRank orders candidate successors; lower ranks are taken first.
func stepRank(op ir.Opcode) int {
	switch op {
	case ir.OpReturn:
		return 0
	case ir.OpIf, ir.OpParsePredicate, ir.OpRangeCheck:
		return 1
	case ir.OpIfTrue, ir.OpIfFalse:
		return 2
	case ir.OpGoto:
		return 3
	case ir.OpRegion:
		return 4
	case ir.OpSafePoint, ir.OpCallStaticJava, ir.OpProj:
		return 5
	case ir.OpParm:
		return 6
	case ir.OpHalt:
		return 7
	}
	return 8
}

// progressScore penalizes successors that step backwards in the producer's
// bytecode position, using the idx and bci properties as tiebreakers.
func progressScore(cur, succ *ir.Node) int {
	score := 0
	for _, key := range []string{"idx", "bci"} {
		cv, cok := cur.PropInt64(key)
		sv, sok := succ.PropInt64(key)
		if cok && sok && sv < cv {
			score++
		}
	}
	return score
}

func (ex *execution) findControlSuccessor(cur *ir.Node) (*ir.Node, error) {
	cands := ex.successors[cur]
	if len(cands) == 0 {
		if cur.Op() == ir.OpCallStaticJava && strings.Contains(cur.DumpSpec(), "uncommon_trap") {
			return nil, ex.fireUncommonTrap(cur)
		}
		return nil, fmt.Errorf("no control successor for %s node %d", cur.Op(), cur.ID())
	}
	if len(cands) == 1 {
		return cands[0], nil
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if ex.successorLess(cur, c, best) {
			best = c
		}
	}
	return best, nil
}

func (ex *execution) successorLess(cur, a, b *ir.Node) bool {
	ra, rb := stepRank(a.Op()), stepRank(b.Op())
	if ra != rb {
		return ra < rb
	}
	ba := boolProp(a, "is_block_start")
	bb := boolProp(b, "is_block_start")
	if ba != bb {
		return ba
	}
	pa, pb := progressScore(cur, a), progressScore(cur, b)
	if pa != pb {
		return pa < pb
	}
	return a.ID() < b.ID()
}

func boolProp(n *ir.Node, key string) bool {
	p, ok := n.Prop(key)
	if !ok {
		return false
	}
	if b, ok := p.AsBool(); ok {
		return b
	}
	if v, ok := p.AsInt64(); ok {
		return v != 0
	}
	if s, ok := p.AsString(); ok {
		return s == "true" || s == "1"
	}
	return false
}

// fireUncommonTrap gives a runtime meaning to a trap call that control
// actually reached: the guard it lowers has failed.
func (ex *execution) fireUncommonTrap(call *ir.Node) error {
	spec := call.DumpSpec()
	switch {
	case strings.Contains(spec, "range_check"):
		return newTrap(TrapIndexOutOfBounds)
	case strings.Contains(spec, "div0_check"):
		return newTrap(TrapDivisionByZero)
	}
	return fmt.Errorf("execution reached uncommon trap at node %d (%s)", call.ID(), spec)
}

// Regions and Phis

func (ex *execution) visitRegion(region *ir.Node) error {
	if _, seen := ex.loopIters[region]; !seen {
		ex.loopIters[region] = 0
		if err := ex.applyRegionMemory(region); err != nil {
			return err
		}
		return ex.seedRegionPhis(region)
	}

	iter := ex.loopIters[region] + 1
	if iter > ex.config.MaxLoopIterations {
		return fmt.Errorf("loop iteration budget (%d) exceeded at region %d", ex.config.MaxLoopIterations, region.ID())
	}
	ex.loopIters[region] = iter
	ex.logger.Debug("region revisit", "region", region.ID(), "iteration", iter)

	if err := ex.applyRegionMemory(region); err != nil {
		return err
	}
	return ex.updateRegionPhis(region)
}

func isDataPhi(n *ir.Node) bool {
	t, ok := n.PropString("type")
	if !ok {
		return true
	}
	switch t {
	case "memory", "control", "abIO", "return_address", "rawptr:":
		return false
	}
	return strings.HasSuffix(t, ":")
}

func (ex *execution) predIndex(region *ir.Node) (int, error) {
	pred := ex.regionPred[region]
	if pred == nil {
		return 0, fmt.Errorf("region %d visited with no recorded predecessor", region.ID())
	}
	for i, p := range region.Inputs() {
		if p == pred {
			return i, nil
		}
	}
	return 0, fmt.Errorf("control predecessor %d is not an input of region %d", pred.ID(), region.ID())
}

// selectPhiInput picks the Phi value input aligned with the region
// predecessor at predIdx. It copes with both dump conventions (phi input
// count = region input count + 1, or equal counts) plus a compacted fallback
// that skips region self-edges.
func selectPhiInput(phi, region *ir.Node, predIdx int, allowSelf bool) *ir.Node {
	ok := func(c *ir.Node) bool {
		return c != nil && (allowSelf || c != phi)
	}
	nR, nP := region.NumInputs(), phi.NumInputs()

	if nP == nR+1 {
		if c := phi.Input(predIdx + 1); ok(c) {
			return c
		}
	}
	if nP == nR {
		idx := predIdx
		if idx == 0 {
			idx = 1
		}
		if c := phi.Input(idx); ok(c) {
			return c
		}
	}

	k := 0
	for j, p := range region.Inputs() {
		if p == nil || p == region {
			continue
		}
		if j == predIdx {
			if c := phi.Input(k + 1); ok(c) {
				return c
			}
			return nil
		}
		k++
	}
	return nil
}

func (ex *execution) seedRegionPhis(region *ir.Node) error {
	for _, phi := range ex.dataPhis[region] {
		if _, err := ex.evalNode(phi); err != nil {
			return err
		}
	}
	return nil
}

// updateRegionPhis recomputes every data Phi of a revisited Region against
// the back-edge predecessor. All Phis update simultaneously: during the
// recomputation any read of a Phi of this Region (including the one being
// computed) observes the previous iteration's value.
func (ex *execution) updateRegionPhis(region *ir.Node) error {
	phis := ex.dataPhis[region]

	ex.phiOld = make(map[*ir.Node]Value, len(phis))
	for _, phi := range phis {
		if v, ok := ex.cache[phi]; ok {
			ex.phiOld[phi] = v
		}
	}
	ex.pruneCache()

	ex.inPhiUpdate = true
	ex.updatingRegion = region
	defer func() {
		ex.inPhiUpdate = false
		ex.updatingRegion = nil
		ex.updatingPhi = nil
		ex.phiOld = nil
	}()

	predIdx, err := ex.predIndex(region)
	if err != nil {
		return err
	}

	newVals := make(map[*ir.Node]Value, len(phis))
	for _, phi := range phis {
		ex.updatingPhi = phi
		sel := selectPhiInput(phi, region, predIdx, true)
		if sel == nil {
			return fmt.Errorf("phi node %d has no input for predecessor index %d of region %d", phi.ID(), predIdx, region.ID())
		}
		if sel == phi {
			old, ok := ex.phiOld[phi]
			if !ok {
				return fmt.Errorf("phi node %d is self-referential with no previous value", phi.ID())
			}
			newVals[phi] = old
			continue
		}
		v, err := ex.evalNode(sel)
		if err != nil {
			return err
		}
		newVals[phi] = v
	}

	for phi, v := range newVals {
		ex.cache[phi] = v
	}
	ex.pruneCache()
	return nil
}

// pruneCache drops every memoized value that could change across a loop
// iteration. Constants, bound parameters, Phi values, and executed
// allocation sites survive; everything derived is recomputed against the new
// Phi seeds.
func (ex *execution) pruneCache() {
	for n := range ex.cache {
		switch n.Op() {
		case ir.OpConI, ir.OpConL, ir.OpConP, ir.OpParm, ir.OpPhi,
			ir.OpAllocate, ir.OpAllocateArray:
			continue
		}
		delete(ex.cache, n)
	}
}

func (ex *execution) evalPhi(n *ir.Node) (Value, error) {
	region := n.RegionInput()
	if region == nil || region.Op() != ir.OpRegion {
		return Value{}, fmt.Errorf("phi node %d has no region input", n.ID())
	}
	if !isDataPhi(n) {
		// Memory and control Phis never participate in value merges.
		return I32(0), nil
	}

	inUpdate := ex.inPhiUpdate && region == ex.updatingRegion
	if inUpdate {
		if old, ok := ex.phiOld[n]; ok {
			return old, nil
		}
	}

	predIdx, err := ex.predIndex(region)
	if err != nil {
		return Value{}, fmt.Errorf("phi node %d: %w", n.ID(), err)
	}
	sel := selectPhiInput(n, region, predIdx, inUpdate)
	if sel == nil {
		return Value{}, fmt.Errorf("phi node %d has no input for predecessor index %d of region %d", n.ID(), predIdx, region.ID())
	}
	if sel == n {
		if old, ok := ex.phiOld[n]; ok {
			return old, nil
		}
		return Value{}, fmt.Errorf("phi node %d is self-referential outside a back-edge update", n.ID())
	}
	return ex.evalNode(sel)
}

// Memory model

// applyRegionMemory replays the store chain that fed this Region entry: for
// every memory Phi of the Region, the input aligned with the arriving
// predecessor. Chains stop at other memory Phis, whose stores were applied
// when control passed their own merge points. Running this before the data
// Phi update means a loop iteration's stores execute with that iteration's
// operand values.
func (ex *execution) applyRegionMemory(region *ir.Node) error {
	phis := ex.memPhis[region]
	if len(phis) == 0 {
		return nil
	}
	predIdx, err := ex.predIndex(region)
	if err != nil {
		return err
	}
	for _, phi := range phis {
		sel := selectPhiInput(phi, region, predIdx, true)
		if sel == nil || sel == phi {
			continue
		}
		if err := ex.applyMemoryChain(sel, false); err != nil {
			return err
		}
	}
	return nil
}

// applyMemoryChain walks a memory chain backward, executing stores
// deepest-first so later writes win. With skipApplied set (load-time and
// return-time replay), stores that already took effect this execution are
// not re-executed.
func (ex *execution) applyMemoryChain(start *ir.Node, skipApplied bool) error {
	visited := make(map[*ir.Node]struct{})
	var walk func(n *ir.Node) error
	walk = func(n *ir.Node) error {
		if n == nil {
			return nil
		}
		if _, seen := visited[n]; seen {
			return nil
		}
		visited[n] = struct{}{}

		switch {
		case ir.IsStore(n.Op()):
			if err := walk(n.MemoryInput()); err != nil {
				return err
			}
			if skipApplied {
				if _, done := ex.applied[n]; done {
					return nil
				}
			}
			if err := ex.executeStore(n); err != nil {
				return err
			}
			ex.applied[n] = struct{}{}
			return nil
		case n.Op() == ir.OpMergeMem:
			for _, in := range n.Inputs() {
				if in == n {
					continue
				}
				if err := walk(in); err != nil {
					return err
				}
			}
			return nil
		case n.Op() == ir.OpPhi:
			// Its stores were applied when control entered its Region.
			return nil
		case n.Op() == ir.OpProj:
			return walk(n.Input(0))
		case n.Op() == ir.OpSafePoint, n.Op() == ir.OpCallStaticJava:
			return walk(n.Input(1))
		case n.Op() == ir.OpAllocate, n.Op() == ir.OpAllocateArray:
			return walk(n.MemoryInput())
		}
		return nil
	}
	return walk(start)
}

func (ex *execution) executeStore(s *ir.Node) error {
	baseNode := s.AddressInput()
	if baseNode == nil {
		return fmt.Errorf("store node %d has no base input", s.ID())
	}
	bv, err := ex.evalNode(baseNode)
	if err != nil {
		return err
	}
	if bv.Kind() != KindRef {
		return newTrap(TrapStoreBaseNotRef)
	}
	ref, _ := bv.AsRef()

	if s.IsArrayAccess() {
		idxNode, valNode := s.Input(3), s.Input(4)
		if valNode == nil && baseNode.Op() == ir.OpAddP {
			// C2 element addressing: index encoded in the AddP, value at 3.
			idxNode, valNode = nil, s.Input(3)
		}
		var idx int32
		if idxNode != nil {
			iv, err := ex.evalNode(idxNode)
			if err != nil {
				return err
			}
			idx, err = toIndex(iv)
			if err != nil {
				return fmt.Errorf("store node %d: %w", s.ID(), err)
			}
		} else if baseNode.Op() == ir.OpAddP {
			idx, err = ex.extractArrayIndex(baseNode)
			if err != nil {
				return err
			}
		} else {
			return fmt.Errorf("array store node %d has no index input", s.ID())
		}
		if valNode == nil {
			return fmt.Errorf("array store node %d has no value input", s.ID())
		}
		val, err := ex.evalNode(valNode)
		if err != nil {
			return err
		}
		ex.logger.Debug("store array element", "node", s.ID(), "ref", ref, "index", idx, "value", val.String())
		return ex.heap.WriteArray(ref, idx, val)
	}

	field, ok := s.PropString("field")
	if !ok {
		return fmt.Errorf("store node %d has no field name", s.ID())
	}
	valNode := s.Input(3)
	if valNode == nil {
		return fmt.Errorf("store node %d has no value input", s.ID())
	}
	val, err := ex.evalNode(valNode)
	if err != nil {
		return err
	}
	ex.logger.Debug("store field", "node", s.ID(), "ref", ref, "field", field, "value", val.String())
	ex.heap.WriteField(ref, field, val)
	return nil
}

func (ex *execution) evalLoad(n *ir.Node) (Value, error) {
	if err := ex.applyMemoryChain(n.MemoryInput(), true); err != nil {
		return Value{}, err
	}

	baseNode := n.AddressInput()
	if baseNode == nil {
		return Value{}, fmt.Errorf("load node %d has no address input", n.ID())
	}
	bv, err := ex.evalNode(baseNode)
	if err != nil {
		return Value{}, err
	}
	if bv.Kind() != KindRef {
		return Value{}, newTrap(TrapLoadBaseNotRef)
	}
	ref, _ := bv.AsRef()

	if n.IsArrayAccess() {
		var idx int32
		if idxNode := n.Input(3); idxNode != nil {
			iv, err := ex.evalNode(idxNode)
			if err != nil {
				return Value{}, err
			}
			idx, err = toIndex(iv)
			if err != nil {
				return Value{}, fmt.Errorf("load node %d: %w", n.ID(), err)
			}
		} else if baseNode.Op() == ir.OpAddP {
			idx, err = ex.extractArrayIndex(baseNode)
			if err != nil {
				return Value{}, err
			}
		} else {
			return Value{}, fmt.Errorf("array load node %d has no index input", n.ID())
		}
		v, err := ex.heap.ReadArray(ref, idx)
		if err != nil {
			return Value{}, err
		}
		return truncateLoad(n.Op(), v), nil
	}

	field, ok := n.PropString("field")
	if !ok {
		return Value{}, fmt.Errorf("load node %d has no field name", n.ID())
	}
	return truncateLoad(n.Op(), ex.heap.ReadField(ref, field)), nil
}

// truncateLoad narrows sub-word loads the way the hardware access would.
func truncateLoad(op ir.Opcode, v Value) Value {
	x, err := v.AsI32()
	if err != nil {
		return v
	}
	switch op {
	case ir.OpLoadB:
		return I32(int32(int8(x)))
	case ir.OpLoadUB:
		return I32(x & 0xFF)
	case ir.OpLoadS:
		return I32(int32(int16(x)))
	case ir.OpLoadUS:
		return I32(x & 0xFFFF)
	}
	return v
}

// extractArrayIndex recovers the i32 element index from a C2 element
// address: AddP chains whose offset carries a shift/ConvI2L of the index.
func (ex *execution) extractArrayIndex(addp *ir.Node) (int32, error) {
	expr := findIndexExpr(addp, addp.Input(0))
	if expr == nil {
		return 0, fmt.Errorf("cannot derive array index from AddP node %d", addp.ID())
	}
	v, err := ex.evalNode(expr)
	if err != nil {
		return 0, err
	}
	return toIndex(v)
}

// unwrapIndex strips widening conversions and value-preserving casts.
func unwrapIndex(n *ir.Node) *ir.Node {
	for n != nil {
		switch n.Op() {
		case ir.OpConvI2L, ir.OpCastII, ir.OpCastLL:
			vals := n.ValueInputs()
			if len(vals) == 0 {
				return n
			}
			n = vals[0]
		default:
			return n
		}
	}
	return nil
}

func isConstOp(op ir.Opcode) bool {
	return op == ir.OpConI || op == ir.OpConL || op == ir.OpConP
}

func findIndexExpr(n, base *ir.Node) *ir.Node {
	if n == nil {
		return nil
	}
	switch n.Op() {
	case ir.OpAddP:
		for _, i := range []int{2, 1} {
			in := n.Input(i)
			if in == nil || in == base || in == n {
				continue
			}
			if e := findIndexExpr(in, base); e != nil {
				return e
			}
		}
		return nil
	case ir.OpLShiftL, ir.OpLShiftI:
		vals := n.ValueInputs()
		if len(vals) == 0 {
			return nil
		}
		return unwrapIndex(vals[0])
	case ir.OpConvI2L, ir.OpCastII, ir.OpCastLL:
		return unwrapIndex(n)
	case ir.OpAddL, ir.OpAddI:
		// Element offsets add a constant header; the index hides in the
		// non-constant operand.
		var fallback *ir.Node
		for _, in := range n.ValueInputs() {
			if isConstOp(in.Op()) {
				continue
			}
			if e := findIndexExpr(in, base); e != nil {
				return e
			}
			if fallback == nil {
				fallback = in
			}
		}
		return fallback
	}
	return nil
}

func toIndex(v Value) (int32, error) {
	switch v.Kind() {
	case KindI32:
		x, _ := v.AsI32()
		return x, nil
	case KindI64:
		x, _ := v.AsI64()
		return int32(x), nil
	}
	return 0, fmt.Errorf("value %s cannot be used as an array index", v)
}

// Value evaluation

// nonEvaluable opcodes may never appear in a value position.
func nonEvaluable(op ir.Opcode) bool {
	switch op {
	case ir.OpStart, ir.OpRoot, ir.OpIf, ir.OpIfTrue, ir.OpIfFalse,
		ir.OpGoto, ir.OpRegion, ir.OpReturn, ir.OpMergeMem:
		return true
	}
	return ir.IsStore(op)
}

func (ex *execution) evalNode(n *ir.Node) (Value, error) {
	if v, ok := ex.cache[n]; ok {
		return v, nil
	}
	if nonEvaluable(n.Op()) {
		return Value{}, fmt.Errorf("cannot evaluate %s node %d as a value", n.Op(), n.ID())
	}
	if n.Op() == ir.OpHalt {
		return Value{}, fmt.Errorf("value evaluation reached Halt node %d", n.ID())
	}

	if _, active := ex.evalActive[n]; active {
		return Value{}, fmt.Errorf("cyclic value evaluation at node %d (%s)", n.ID(), n.Op())
	}
	ex.evalDepth++
	if ex.evalDepth > ex.config.MaxEvalDepth {
		ex.evalDepth--
		return Value{}, fmt.Errorf("value evaluation depth budget (%d) exceeded at node %d", ex.config.MaxEvalDepth, n.ID())
	}
	ex.evalActive[n] = struct{}{}
	defer func() {
		delete(ex.evalActive, n)
		ex.evalDepth--
	}()

	v, err := ex.dispatch(n)
	if err != nil {
		return Value{}, err
	}
	ex.cache[n] = v
	return v, nil
}

func (ex *execution) dispatch(n *ir.Node) (Value, error) {
	op := n.Op()
	switch {
	case op == ir.OpConI || op == ir.OpConL:
		return evalConst(n)
	case op == ir.OpConP:
		return Null(), nil
	case op == ir.OpParm:
		// Data Parms were bound into the cache; anything else is a
		// control/memory placeholder.
		return I32(0), nil
	case op == ir.OpPhi:
		return ex.evalPhi(n)
	case op == ir.OpBool:
		return ex.evalBoolNode(n)
	case op == ir.OpConv2B:
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return EvalConv2B(a)
	case op == ir.OpAbsI:
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return EvalAbsI(a)
	case op == ir.OpAbsL:
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return EvalAbsL(a)
	case op == ir.OpConvI2L:
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return EvalConvI2L(a)
	case op == ir.OpConvL2I:
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return EvalConvL2I(a)
	case op == ir.OpCastII || op == ir.OpCastLL || op == ir.OpCastPP ||
		op == ir.OpCastX2P || op == ir.OpCastP2X:
		// Type-system assertions have no runtime effect.
		a, err := ex.unaryOperand(n)
		if err != nil {
			return Value{}, err
		}
		return a, nil
	case op == ir.OpCMoveI || op == ir.OpCMoveL || op == ir.OpCMoveP:
		vals := n.ValueInputs()
		if len(vals) < 3 {
			return Value{}, fmt.Errorf("%s node %d needs 3 operands, has %d", op, n.ID(), len(vals))
		}
		cond, err := ex.evalNode(vals[0])
		if err != nil {
			return Value{}, err
		}
		tv, err := ex.evalNode(vals[1])
		if err != nil {
			return Value{}, err
		}
		fv, err := ex.evalNode(vals[2])
		if err != nil {
			return Value{}, err
		}
		return EvalCMove(cond, tv, fv)
	case op == ir.OpOpaque1 || op == ir.OpSafePoint || op == ir.OpParsePredicate || op == ir.OpProj:
		return ex.passThrough(n)
	case op == ir.OpThreadLocal:
		return Null(), nil
	case op == ir.OpCallStaticJava:
		if strings.Contains(n.DumpSpec(), "uncommon_trap") {
			// Assumed non-firing.
			return I32(0), nil
		}
		return Value{}, fmt.Errorf("real calls are unsupported (CallStaticJava node %d)", n.ID())
	case op == ir.OpAllocate:
		return RefValue(ex.heap.AllocateObject()), nil
	case op == ir.OpAllocateArray:
		return ex.evalAllocateArray(n)
	case op == ir.OpLoadRange:
		return ex.evalLoadRange(n)
	case op == ir.OpRangeCheck:
		return ex.evalRangeCheckValue(n)
	case op == ir.OpAddP:
		return ex.evalAddP(n)
	case ir.IsLoad(op):
		return ex.evalLoad(n)
	case op == ir.OpUnknown:
		return Value{}, fmt.Errorf("cannot evaluate unknown opcode (node %d)", n.ID())
	default:
		vals := n.ValueInputs()
		if len(vals) < 2 {
			return Value{}, fmt.Errorf("%s node %d needs 2 operands, has %d", op, n.ID(), len(vals))
		}
		a, err := ex.evalNode(vals[0])
		if err != nil {
			return Value{}, err
		}
		b, err := ex.evalNode(vals[1])
		if err != nil {
			return Value{}, err
		}
		return evalBinary(op.String(), a, b)
	}
}

// unaryOperand returns the single operand of a unary node. C2 places it at
// input 1 with a hole at 0; hand-built graphs use input 0.
func (ex *execution) unaryOperand(n *ir.Node) (Value, error) {
	vals := n.ValueInputs()
	if len(vals) == 0 {
		return Value{}, fmt.Errorf("%s node %d has no operand", n.Op(), n.ID())
	}
	return ex.evalNode(vals[0])
}

// passThrough forwards the first evaluable value input, or I32(0) when the
// node carries none (bare projections, safepoint frames).
func (ex *execution) passThrough(n *ir.Node) (Value, error) {
	for _, in := range n.ValueInputs() {
		if nonEvaluable(in.Op()) || in.Op() == ir.OpHalt {
			continue
		}
		return ex.evalNode(in)
	}
	return I32(0), nil
}

func parseConstSpec(spec, marker string) (int64, bool) {
	pos := strings.Index(spec, marker)
	if pos < 0 {
		return 0, false
	}
	rest := spec[pos+len(marker):]
	end := 0
	if end < len(rest) && rest[end] == '-' {
		end++
	}
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 || (end == 1 && rest[0] == '-') {
		return 0, false
	}
	var v int64
	neg := rest[0] == '-'
	digits := rest[:end]
	if neg {
		digits = digits[1:]
	}
	for _, c := range digits {
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v, true
}

func evalConst(n *ir.Node) (Value, error) {
	if v, ok := n.PropInt64("value"); ok {
		if n.Op() == ir.OpConI {
			return I32(int32(v)), nil
		}
		return I64(v), nil
	}
	spec := n.DumpSpec()
	if n.Op() == ir.OpConI {
		if v, ok := parseConstSpec(spec, "#int:"); ok {
			return I32(int32(v)), nil
		}
	} else {
		if v, ok := parseConstSpec(spec, "#long:"); ok {
			return I64(v), nil
		}
	}
	return Value{}, fmt.Errorf("constant node %d has no value", n.ID())
}

func (ex *execution) evalBoolNode(n *ir.Node) (Value, error) {
	vals := n.ValueInputs()
	if len(vals) == 0 {
		return Value{}, fmt.Errorf("Bool node %d has no comparison input", n.ID())
	}
	cmp, err := ex.evalNode(vals[0])
	if err != nil {
		return Value{}, err
	}
	var mask int32
	if v, ok := n.PropInt64("mask"); ok {
		mask = int32(v)
	} else if m, ok := ParseCondMask(n.DumpSpec()); ok {
		mask = m
	} else {
		return Value{}, fmt.Errorf("Bool node %d has no condition mask", n.ID())
	}
	return EvalBool(cmp, mask)
}

func (ex *execution) evalAllocateArray(n *ir.Node) (Value, error) {
	var lengthNode *ir.Node
	for i := n.NumInputs() - 1; i >= 1; i-- {
		in := n.Input(i)
		if in == nil || ir.IsControl(in.Op()) || ir.IsMemory(in.Op()) || in.Op() == ir.OpProj {
			continue
		}
		lengthNode = in
		break
	}
	if lengthNode == nil {
		return Value{}, fmt.Errorf("AllocateArray node %d has no length input", n.ID())
	}
	lv, err := ex.evalNode(lengthNode)
	if err != nil {
		return Value{}, err
	}
	length, err := toIndex(lv)
	if err != nil {
		return Value{}, fmt.Errorf("AllocateArray node %d: %w", n.ID(), err)
	}
	ref, err := ex.heap.AllocateArray(length)
	if err != nil {
		return Value{}, err
	}
	return RefValue(ref), nil
}

func (ex *execution) evalLoadRange(n *ir.Node) (Value, error) {
	addr := n.AddressInput()
	if addr == nil {
		vals := n.ValueInputs()
		if len(vals) == 0 {
			return Value{}, fmt.Errorf("LoadRange node %d has no address input", n.ID())
		}
		addr = vals[0]
	}
	bv, err := ex.evalNode(addr)
	if err != nil {
		return Value{}, err
	}
	if bv.Kind() != KindRef {
		return Value{}, newTrap(TrapLoadBaseNotRef)
	}
	ref, _ := bv.AsRef()
	length, err := ex.heap.ArrayLength(ref)
	if err != nil {
		return Value{}, err
	}
	return I32(length), nil
}

// evalRangeCheckValue bounds-checks the index guarded by a RangeCheck used
// in a value position and passes the index through.
func (ex *execution) evalRangeCheckValue(n *ir.Node) (Value, error) {
	vals := n.ValueInputs()
	if len(vals) == 0 {
		return Value{}, fmt.Errorf("RangeCheck node %d has no condition input", n.ID())
	}
	cmp := vals[0]
	if cmp.Op() == ir.OpBool {
		cv := cmp.ValueInputs()
		if len(cv) == 0 {
			return Value{}, fmt.Errorf("RangeCheck node %d has an empty Bool condition", n.ID())
		}
		cmp = cv[0]
	}
	switch cmp.Op() {
	case ir.OpCmpU, ir.OpCmpI, ir.OpCmpUL, ir.OpCmpL:
	default:
		return Value{}, fmt.Errorf("RangeCheck node %d has unexpected condition %s", n.ID(), cmp.Op())
	}
	ops := cmp.ValueInputs()
	if len(ops) < 2 {
		return Value{}, fmt.Errorf("RangeCheck node %d condition needs 2 operands", n.ID())
	}
	iv, err := ex.evalNode(ops[0])
	if err != nil {
		return Value{}, err
	}
	idx, err := toIndex(iv)
	if err != nil {
		return Value{}, err
	}
	lv, err := ex.evalNode(ops[1])
	if err != nil {
		return Value{}, err
	}
	length, err := toIndex(lv)
	if err != nil {
		return Value{}, err
	}
	if idx < 0 || idx >= length {
		return Value{}, newTrap(TrapIndexOutOfBounds)
	}
	return I32(idx), nil
}

// evalAddP models addresses abstractly: the address expression carries the
// array or object reference, so AddP forwards its first non-base input.
func (ex *execution) evalAddP(n *ir.Node) (Value, error) {
	for i := 1; i < n.NumInputs(); i++ {
		if in := n.Input(i); in != nil {
			return ex.evalNode(in)
		}
	}
	if base := n.Input(0); base != nil {
		return ex.evalNode(base)
	}
	return Value{}, fmt.Errorf("AddP node %d has no inputs", n.ID())
}

// Outcome construction

// skipReturnInput filters Return inputs that cannot be the return value:
// the frame/return-address Parms, memory state, and non-data projections.
func skipReturnInput(in *ir.Node) bool {
	switch {
	case in.Op() == ir.OpParm:
		return !isDataParm(in)
	case in.Op() == ir.OpMergeMem:
		return true
	case in.Op() == ir.OpPhi:
		return !isDataPhi(in)
	case in.Op() == ir.OpProj:
		switch in.TypeName() {
		case "memory", "control", "abIO", "return_address":
			return true
		}
		return false
	case ir.IsStore(in.Op()):
		return true
	case ir.IsControl(in.Op()) && in.Op() != ir.OpRangeCheck &&
		in.Op() != ir.OpSafePoint && in.Op() != ir.OpCallStaticJava &&
		in.Op() != ir.OpParsePredicate:
		return true
	}
	return false
}

func (ex *execution) buildOutcome(ret *ir.Node) (Outcome, error) {
	// Trailing straight-line stores reach Return through its memory input;
	// apply them before snapshotting the heap.
	for i := 1; i < ret.NumInputs(); i++ {
		in := ret.Input(i)
		if in == nil {
			continue
		}
		if ir.IsStore(in.Op()) || in.Op() == ir.OpMergeMem || in.Op() == ir.OpProj {
			if err := ex.applyMemoryChain(in, true); err != nil {
				return Outcome{}, err
			}
		}
	}

	var candidate *ir.Node
	for i := ret.NumInputs() - 1; i >= 1; i-- {
		in := ret.Input(i)
		if in == nil || skipReturnInput(in) {
			continue
		}
		candidate = in
		break
	}
	if candidate == nil {
		return returnOutcome(nil, ex.heap), nil
	}

	v, err := ex.evalNode(candidate)
	if err != nil {
		if t, ok := AsTrap(err); ok {
			ex.logger.Debug("return value evaluation trapped", "kind", t.Kind)
			return throwOutcome(t.Kind, ex.heap), nil
		}
		return Outcome{}, err
	}
	return returnOutcome(&v, ex.heap), nil
}
