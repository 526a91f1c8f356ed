package igv_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
	"github.com/sunlang/suntv/pkg/igv"
	"github.com/sunlang/suntv/pkg/interp"
)

const multiGraphDoc = `<?xml version="1.0"?>
<graphDocument>
 <group>
  <properties><p name="name">Answer::compute</p></properties>
  <method name="compute" bci="0"><bytecodes>return 42</bytecodes></method>
  <graph name="After Parsing">
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
    <node id="2"><properties><p name="name">ConI</p><p name="value">42</p></properties></node>
    <node id="3"><properties><p name="name">Return</p></properties></node>
   </nodes>
   <edges>
    <edge from="1" to="3" toIndex="0"/>
    <edge from="2" to="3" toIndex="1"/>
    <edge from="3" to="0" toIndex="0"/>
   </edges>
  </graph>
  <graph name="Final Code">
   <nodes>
    <node id="0"><properties><p name="name">Root</p></properties></node>
    <node id="1"><properties><p name="name">Start</p></properties></node>
   </nodes>
   <edges/>
  </graph>
 </group>
</graphDocument>`

func writeTempDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphs.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListGraphs(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	path := writeTempDoc(t, multiGraphDoc)
	infos, err := igv.ListGraphs(path)
	r.NoError(err)

	want := []igv.GraphInfo{
		{Index: 0, Name: "After Parsing", Nodes: 4, Edges: 3},
		{Index: 1, Name: "Final Code", Nodes: 2, Edges: 0},
	}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Fatalf("graph listing mismatch (-want +got):\n%s", diff)
	}
}

func TestListGraphsMissingFile(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	_, err := igv.ListGraphs(filepath.Join(t.TempDir(), "absent.xml"))
	r.Error(err)
}

func TestExtractGraphByIndex(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	path := writeTempDoc(t, multiGraphDoc)
	out := filepath.Join(t.TempDir(), "extracted.xml")

	r.NoError(igv.ExtractGraphByIndex(path, 0, out))

	infos, err := igv.ListGraphs(out)
	r.NoError(err)
	want := []igv.GraphInfo{{Index: 0, Name: "After Parsing", Nodes: 4, Edges: 3}}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Fatalf("extracted listing mismatch (-want +got):\n%s", diff)
	}

	// Group metadata survives extraction.
	data, err := os.ReadFile(out)
	r.NoError(err)
	r.Contains(string(data), "Answer::compute")
	r.Contains(string(data), "<method")

	// The extracted document still parses and executes.
	logger := slogt.New(t)
	g, err := igv.NewParser(logger).Parse(out)
	r.NoError(err)
	outcome, err := interp.New(logger, g, interp.Config{}).Execute(nil)
	r.NoError(err)
	r.Equal("Return(i32:42)", outcome.String())
}

func TestExtractGraphByIndexOutOfRange(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	path := writeTempDoc(t, multiGraphDoc)
	err := igv.ExtractGraphByIndex(path, 5, filepath.Join(t.TempDir(), "out.xml"))
	r.Error(err)
	r.Contains(err.Error(), "index 5")
}

func TestExtractGraphByName(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	path := writeTempDoc(t, multiGraphDoc)
	out := filepath.Join(t.TempDir(), "final.xml")

	r.NoError(igv.ExtractGraphByName(path, "Final Code", out))

	infos, err := igv.ListGraphs(out)
	r.NoError(err)
	r.Len(infos, 1)
	r.Equal("Final Code", infos[0].Name)
	r.Equal(2, infos[0].Nodes)
}

func TestExtractGraphByNameMissing(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	path := writeTempDoc(t, multiGraphDoc)
	err := igv.ExtractGraphByName(path, "No Such Phase", filepath.Join(t.TempDir(), "out.xml"))
	r.Error(err)
	r.Contains(err.Error(), "No Such Phase")
}

// Graphs that name themselves via a property instead of an attribute.
func TestGraphNameFromProperty(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	doc := strings.Replace(multiGraphDoc,
		`<graph name="Final Code">`,
		`<graph><properties><p name="name">Final Code</p></properties>`, 1)
	path := writeTempDoc(t, doc)

	infos, err := igv.ListGraphs(path)
	r.NoError(err)
	r.Len(infos, 2)
	r.Equal("Final Code", infos[1].Name)
}
