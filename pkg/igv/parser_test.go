package igv_test

import (
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
	"github.com/sunlang/suntv/pkg/igv"
	"github.com/sunlang/suntv/pkg/interp"
	"github.com/sunlang/suntv/pkg/ir"
)

const additionDoc = `<?xml version="1.0"?>
<graphDocument>
 <group>
  <properties><p name="name">Addition::compute</p></properties>
  <graph name="After Parsing">
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
    <node id="2"><properties><p name="name">ConI</p><p name="dump_spec"> #int:5</p></properties></node>
    <node id="3"><properties><p name="name">ConI</p><p name="value">3</p></properties></node>
    <node id="4"><properties><p name="name">AddI</p></properties></node>
    <node id="5"><properties><p name="name">Return</p></properties></node>
   </nodes>
   <edges>
    <edge from="2" to="4" toIndex="1"/>
    <edge from="3" to="4" toIndex="2"/>
    <edge from="1" to="5" toIndex="0"/>
    <edge from="4" to="5" toIndex="1"/>
    <edge from="5" to="0" toIndex="0"/>
   </edges>
  </graph>
 </group>
</graphDocument>`

func TestParseAndExecuteAddition(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	logger := slogt.New(t)
	parser := igv.NewParser(logger)
	g, err := parser.ParseReader(strings.NewReader(additionDoc))
	r.NoError(err)

	r.NotNil(g.Start())
	r.NotNil(g.Root())
	r.Len(g.Nodes(), 6)

	add := g.Node(4)
	r.NotNil(add)
	r.Equal(ir.OpAddI, add.Op())
	r.Nil(add.Input(0), "slot 0 is a control hole")
	r.Same(g.Node(2), add.Input(1))
	r.Same(g.Node(3), add.Input(2))

	out, err := interp.New(logger, g, interp.Config{}).Execute(nil)
	r.NoError(err)
	r.Equal("Return(i32:8)", out.String())
}

func TestParsePropertyTyping(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	g, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(additionDoc))
	r.NoError(err)

	// Decimal property values parse as i32.
	con := g.Node(3)
	v, ok := con.PropInt64("value")
	r.True(ok)
	r.Equal(int64(3), v)
	p, ok := con.Prop("value")
	r.True(ok)
	r.Equal(ir.PropI32, p.Kind())

	// Everything else stays a string.
	spec, ok := g.Node(2).PropString("dump_spec")
	r.True(ok)
	r.Equal(" #int:5", spec)
}

func TestParseUnknownOpcodeKeptButNotEvaluated(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	doc := `<graphDocument><group><graph>
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
    <node id="2"><properties><p name="name">ConD</p></properties></node>
   </nodes>
   <edges/>
  </graph></group></graphDocument>`

	g, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(doc))
	r.NoError(err)
	n := g.Node(2)
	r.NotNil(n)
	r.Equal(ir.OpUnknown, n.Op())
}

func TestParseSkipsMalformedNodesAndEdges(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	doc := `<graphDocument><group><graph>
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
    <node><properties><p name="name">ConI</p></properties></node>
    <node id="7"><properties><p name="other">x</p></properties></node>
   </nodes>
   <edges>
    <edge from="1" to="99" toIndex="0"/>
    <edge from="1" toIndex="0"/>
   </edges>
  </graph></group></graphDocument>`

	g, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(doc))
	r.NoError(err)
	r.Len(g.Nodes(), 2)
	r.Nil(g.Node(7), "node without a name property is dropped")
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	_, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(`<graphDocument></graphDocument>`))
	r.Error(err)
	r.Contains(err.Error(), "no graph found")
}

func TestCanonicalizerRequiresStartAndRoot(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	noStart := `<graphDocument><group><graph>
   <nodes><node id="0"><properties><p name="name">Root</p></properties></node></nodes>
   <edges/></graph></group></graphDocument>`
	_, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(noStart))
	r.Error(err)
	r.Contains(err.Error(), "no Start node")

	noRoot := `<graphDocument><group><graph>
   <nodes><node id="1"><properties><p name="name">Start</p></properties></node></nodes>
   <edges/></graph></group></graphDocument>`
	_, err = igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(noRoot))
	r.Error(err)
	r.Contains(err.Error(), "no Root node")
}

func TestCanonicalizerRejectsDuplicateStart(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	doc := `<graphDocument><group><graph>
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
    <node id="2"><properties><p name="name">Start</p></properties></node>
   </nodes>
   <edges/></graph></group></graphDocument>`
	_, err := igv.NewParser(slogt.New(t)).ParseReader(strings.NewReader(doc))
	r.Error(err)
	r.Contains(err.Error(), "multiple Start nodes")
}

func TestCanonicalizeDirectly(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	c := igv.NewCanonicalizer(slogt.New(t))

	g := ir.NewGraph()
	g.AddNode(0, ir.OpRoot)
	g.AddNode(1, ir.OpStart)
	r.NoError(c.Canonicalize(g))

	r.Error(c.Canonicalize(nil))
}
