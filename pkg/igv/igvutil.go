package igv

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// GraphInfo summarizes one graph element of an IGV document.
type GraphInfo struct {
	Index int
	Name  string
	Nodes int
	Edges int
}

// rawGraph retains the graph's child elements verbatim so extraction
// round-trips elements this package does not model. Of the graph element's
// own attributes only name is kept.
type rawGraph struct {
	Name     string `xml:"name,attr"`
	InnerXML string `xml:",innerxml"`
}

type rawGroup struct {
	Properties *rawSubtree `xml:"properties"`
	Method     *rawSubtree `xml:"method"`
	Graphs     []rawGraph  `xml:"graph"`
}

type rawSubtree struct {
	InnerXML string `xml:",innerxml"`
}

type rawDocument struct {
	XMLName xml.Name   `xml:"graphDocument"`
	Groups  []rawGroup `xml:"group"`
}

func loadRawDocument(path string) (*rawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IGV file: %w", err)
	}
	var doc rawDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse IGV XML: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, fmt.Errorf("no group element found in %s", path)
	}
	return &doc, nil
}

// graphName resolves a graph's display name from its attribute or its name
// property.
func graphName(g rawGraph) string {
	if g.Name != "" {
		return g.Name
	}
	var parsed struct {
		Properties xmlProperties `xml:"properties"`
	}
	wrapped := "<graph>" + g.InnerXML + "</graph>"
	if err := xml.Unmarshal([]byte(wrapped), &parsed); err == nil {
		if name, ok := parsed.Properties.lookup("name"); ok {
			return name
		}
	}
	return ""
}

// ListGraphs enumerates the graphs of an IGV document in order.
func ListGraphs(path string) ([]GraphInfo, error) {
	doc, err := loadRawDocument(path)
	if err != nil {
		return nil, err
	}

	var infos []GraphInfo
	index := 0
	for _, group := range doc.Groups {
		for _, g := range group.Graphs {
			var counts struct {
				Nodes []struct{} `xml:"nodes>node"`
				Edges []struct{} `xml:"edges>edge"`
			}
			wrapped := "<graph>" + g.InnerXML + "</graph>"
			if err := xml.Unmarshal([]byte(wrapped), &counts); err != nil {
				return nil, fmt.Errorf("failed to parse graph %d: %w", index, err)
			}
			infos = append(infos, GraphInfo{
				Index: index,
				Name:  graphName(g),
				Nodes: len(counts.Nodes),
				Edges: len(counts.Edges),
			})
			index++
		}
	}
	return infos, nil
}

// ExtractGraphByIndex writes a single-graph IGV document containing the
// graph at the given position, preserving group properties and method
// metadata.
func ExtractGraphByIndex(inputPath string, index int, outputPath string) error {
	doc, err := loadRawDocument(inputPath)
	if err != nil {
		return err
	}

	cur := 0
	for _, group := range doc.Groups {
		for _, g := range group.Graphs {
			if cur == index {
				return writeExtracted(group, g, outputPath)
			}
			cur++
		}
	}
	return fmt.Errorf("graph at index %d not found in %s", index, inputPath)
}

// ExtractGraphByName writes a single-graph IGV document containing the first
// graph with the given name.
func ExtractGraphByName(inputPath, name, outputPath string) error {
	doc, err := loadRawDocument(inputPath)
	if err != nil {
		return err
	}

	for _, group := range doc.Groups {
		for _, g := range group.Graphs {
			if graphName(g) == name {
				return writeExtracted(group, g, outputPath)
			}
		}
	}
	return fmt.Errorf("graph named %q not found in %s", name, inputPath)
}

func writeExtracted(group rawGroup, g rawGraph, outputPath string) error {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<graphDocument><group>")
	if group.Properties != nil {
		b.WriteString("<properties>")
		b.WriteString(group.Properties.InnerXML)
		b.WriteString("</properties>")
	}
	if group.Method != nil {
		b.WriteString("<method>")
		b.WriteString(group.Method.InnerXML)
		b.WriteString("</method>")
	}
	if g.Name != "" {
		var attr strings.Builder
		if err := xml.EscapeText(&attr, []byte(g.Name)); err != nil {
			return err
		}
		fmt.Fprintf(&b, `<graph name="%s">`, attr.String())
	} else {
		b.WriteString("<graph>")
	}
	b.WriteString(g.InnerXML)
	b.WriteString("</graph></group></graphDocument>")

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write extracted graph: %w", err)
	}
	return nil
}
