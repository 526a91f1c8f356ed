package igv

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/sunlang/suntv/pkg/ir"
)

// Parser reads Ideal Graph Visualizer XML dumps into the internal IR. The
// first graph of the first group is parsed; use ExtractGraphByIndex or
// ExtractGraphByName to isolate a specific phase dump first.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

type xmlProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlProperties struct {
	Props []xmlProp `xml:"p"`
}

type xmlNode struct {
	ID         string        `xml:"id,attr"`
	Properties xmlProperties `xml:"properties"`
}

type xmlEdge struct {
	From    string `xml:"from,attr"`
	To      string `xml:"to,attr"`
	ToIndex string `xml:"toIndex,attr"`
	Index   string `xml:"index,attr"`
}

type xmlGraph struct {
	Name       string        `xml:"name,attr"`
	Properties xmlProperties `xml:"properties"`
	Nodes      []xmlNode     `xml:"nodes>node"`
	Edges      []xmlEdge     `xml:"edges>edge"`
}

type xmlGroup struct {
	Graphs []xmlGraph `xml:"graph"`
}

type xmlDocument struct {
	XMLName xml.Name   `xml:"graphDocument"`
	Groups  []xmlGroup `xml:"group"`
}

func (p xmlProperties) lookup(name string) (string, bool) {
	for _, prop := range p.Props {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return "", false
}

// Parse reads the file at path and returns the canonicalized graph.
func (p *Parser) Parse(path string) (*ir.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IGV file: %w", err)
	}
	defer f.Close()

	g, err := p.ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ParseReader parses an IGV XML document from r.
func (p *Parser) ParseReader(r io.Reader) (*ir.Graph, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse IGV XML: %w", err)
	}

	if len(doc.Groups) == 0 || len(doc.Groups[0].Graphs) == 0 {
		return nil, fmt.Errorf("no graph found in IGV document")
	}

	graph, err := p.buildGraph(doc.Groups[0].Graphs[0])
	if err != nil {
		return nil, err
	}

	canon := NewCanonicalizer(p.logger)
	if err := canon.Canonicalize(graph); err != nil {
		return nil, fmt.Errorf("graph failed canonicalization: %w", err)
	}
	return graph, nil
}

func (p *Parser) buildGraph(xg xmlGraph) (*ir.Graph, error) {
	g := ir.NewGraph()

	for _, xn := range xg.Nodes {
		if xn.ID == "" {
			p.logger.Warn("node missing id, skipping")
			continue
		}
		id, err := strconv.ParseInt(xn.ID, 10, 32)
		if err != nil {
			p.logger.Warn("node has non-numeric id, skipping", "id", xn.ID)
			continue
		}

		name, ok := xn.Properties.lookup("name")
		if !ok {
			p.logger.Warn("node missing name property, skipping", "id", id)
			continue
		}

		op := ir.ParseOpcode(name)
		if op == ir.OpUnknown {
			// Kept in the graph for edge fidelity; never evaluated.
			p.logger.Warn("unknown opcode", "id", id, "name", name)
		}

		n := g.AddNode(int32(id), op)
		for _, prop := range xn.Properties.Props {
			if prop.Name == "name" {
				continue
			}
			n.SetProp(prop.Name, parseProperty(prop.Value))
		}
	}

	for _, xe := range xg.Edges {
		if xe.From == "" || xe.To == "" {
			p.logger.Warn("edge missing from/to attributes, skipping")
			continue
		}
		fromID, err1 := strconv.ParseInt(xe.From, 10, 32)
		toID, err2 := strconv.ParseInt(xe.To, 10, 32)
		if err1 != nil || err2 != nil {
			p.logger.Warn("edge has non-numeric endpoint, skipping", "from", xe.From, "to", xe.To)
			continue
		}

		from := g.Node(int32(fromID))
		to := g.Node(int32(toID))
		if from == nil || to == nil {
			p.logger.Warn("edge refers to missing node, skipping", "from", fromID, "to", toID)
			continue
		}

		idxAttr := xe.ToIndex
		if idxAttr == "" {
			idxAttr = xe.Index
		}
		idx := 0
		if idxAttr != "" {
			v, err := strconv.Atoi(idxAttr)
			if err != nil {
				p.logger.Warn("edge has non-numeric index, using 0", "value", idxAttr)
			} else {
				idx = v
			}
		}
		to.SetInput(idx, from)
	}

	return g, nil
}

// parseProperty stores fully-decimal values as i32 and everything else as a
// string.
func parseProperty(raw string) ir.Property {
	if v, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return ir.I32Property(int32(v))
	}
	return ir.StringProperty(raw)
}
