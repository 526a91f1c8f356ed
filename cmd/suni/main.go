package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sunlang/suntv/pkg/igv"
	"github.com/sunlang/suntv/pkg/interp"
	"github.com/urfave/cli/v3"
)

func parseArg(raw string) (interp.Value, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return interp.Value{}, fmt.Errorf("invalid integer argument %q: %w", raw, err)
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return interp.I32(int32(v)), nil
	}
	return interp.I64(v), nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:      "suni",
		Usage:     "Concretely execute a C2 Sea-of-Nodes graph dump",
		ArgsUsage: "<graph.xml> [int-arg...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("must provide an IGV graph file as argument")
			}

			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			path := c.Args().First()
			var inputs []interp.Value
			for _, raw := range c.Args().Slice()[1:] {
				v, err := parseArg(raw)
				if err != nil {
					return err
				}
				inputs = append(inputs, v)
			}

			parser := igv.NewParser(logger)
			graph, err := parser.Parse(path)
			if err != nil {
				return fmt.Errorf("failed to load graph: %w", err)
			}

			interpreter := interp.New(logger, graph, interp.Config{})
			outcome, err := interpreter.Execute(inputs)
			if err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}

			fmt.Println(outcome)
			if outcome.Kind == interp.OutcomeThrow {
				return cli.Exit("", 1)
			}
			return nil
		},
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}
