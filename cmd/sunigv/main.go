package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sunlang/suntv/pkg/igv"
	"github.com/sunlang/suntv/pkg/interp"
	"github.com/sunlang/suntv/pkg/ir"
	"github.com/urfave/cli/v3"
	"github.com/xlab/treeprint"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:  "sunigv",
		Usage: "IGV dump tooling: generate, list, extract, and inspect graphs",
		Commands: []*cli.Command{
			{
				Name:      "dump",
				Usage:     "Compile Java source and generate an IGV XML dump",
				ArgsUsage: "<java-file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "output IGV XML file",
					},
					&cli.StringFlag{
						Name:    "method",
						Aliases: []string{"m"},
						Value:   "compute",
						Usage:   "method name to compile",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("must provide a java file as argument")
					}
					javaFile := c.Args().First()

					output := c.String("output")
					if output == "" {
						base := filepath.Base(javaFile)
						output = strings.TrimSuffix(base, filepath.Ext(base)) + ".xml"
					}

					dumper := igv.NewJava2IGV(slog.Default())
					return dumper.DumpIGV(javaFile, output, c.String("method"))
				},
			},
			{
				Name:      "list",
				Usage:     "List all graphs in an IGV XML file",
				ArgsUsage: "<igv-file>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("must provide an IGV file as argument")
					}
					path := c.Args().First()

					graphs, err := igv.ListGraphs(path)
					if err != nil {
						return err
					}
					if len(graphs) == 0 {
						return fmt.Errorf("no graphs found in %s", path)
					}

					fmt.Printf("Graphs in %s:\n", path)
					fmt.Println(strings.Repeat("-", 80))
					fmt.Println("Index  Nodes  Edges  Name")
					fmt.Println(strings.Repeat("-", 80))
					for _, g := range graphs {
						fmt.Printf("%-6d %-6d %-6d %s\n", g.Index, g.Nodes, g.Edges, g.Name)
					}
					fmt.Println(strings.Repeat("-", 80))
					fmt.Printf("Total: %d graph(s)\n", len(graphs))
					return nil
				},
			},
			{
				Name:      "extract",
				Usage:     "Extract a specific graph to a separate IGV XML file",
				ArgsUsage: "<igv-file>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "index",
						Aliases: []string{"i"},
						Value:   -1,
						Usage:   "graph index to extract",
					},
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "graph name to extract",
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "output IGV XML file",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("must provide an IGV file as argument")
					}
					path := c.Args().First()
					index := int(c.Int("index"))
					name := c.String("name")

					if index >= 0 && name != "" {
						return fmt.Errorf("cannot specify both --index and --name")
					}
					if index < 0 && name == "" {
						return fmt.Errorf("must specify either --index or --name")
					}

					if name != "" {
						return igv.ExtractGraphByName(path, name, c.String("output"))
					}
					return igv.ExtractGraphByIndex(path, index, c.String("output"))
				},
			},
			{
				Name:      "tree",
				Usage:     "Render the control skeleton of the first graph in an IGV XML file",
				ArgsUsage: "<igv-file>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("must provide an IGV file as argument")
					}

					parser := igv.NewParser(slog.Default())
					graph, err := parser.Parse(c.Args().First())
					if err != nil {
						return err
					}

					fmt.Print(renderControlTree(graph))
					return nil
				},
			},
		},
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

// renderControlTree prints the control-flow skeleton reachable from Start,
// following the same adjacency the interpreter traverses. A node reached a
// second time (by a loop back edge or a later arrival at a merge) is printed
// with a "(back edge)" note and not expanded again.
func renderControlTree(g *ir.Graph) string {
	succ := interp.ControlSuccessors(g)
	tree := treeprint.New()

	start := g.Start()
	if start == nil {
		return "no Start node\n"
	}

	visited := make(map[*ir.Node]bool)
	var add func(branch treeprint.Tree, n *ir.Node)
	add = func(branch treeprint.Tree, n *ir.Node) {
		label := fmt.Sprintf("%s [%d]", n.Op(), n.ID())
		if visited[n] {
			branch.AddNode(label + " (back edge)")
			return
		}
		visited[n] = true
		child := branch.AddBranch(label)
		for _, s := range succ[n] {
			add(child, s)
		}
	}

	root := tree.AddBranch(fmt.Sprintf("%s [%d]", start.Op(), start.ID()))
	visited[start] = true
	for _, s := range succ[start] {
		add(root, s)
	}
	return tree.String()
}
