// Command blz is the CLI front end over pkg/blz. It holds no business
// logic: every operation is a thin translation from CLI flags to an
// Engine call and from the result back to one of the --format
// renderings (spec §6 "CLI contract").
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/config"
	"github.com/outfitter-dev/blz/internal/types"
	"github.com/outfitter-dev/blz/internal/version"
	"github.com/outfitter-dev/blz/pkg/blz"
)

// exitUser and exitOperational are the two non-zero codes from spec §6.
const (
	exitUser        = 1
	exitOperational = 2
)

func main() {
	app := &cli.App{
		Name:    "blz",
		Usage:   "local-first documentation search cache",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "override data directory (BLZ_DATA_DIR)"},
			&cli.StringFlag{Name: "config-dir", Usage: "override config directory (BLZ_CONFIG_DIR)"},
			&cli.StringFlag{Name: "format", Value: "text", Usage: "output format: text, json, jsonl"},
			&cli.BoolFlag{Name: "json", Usage: "shorthand for --format json"},
		},
		Commands: []*cli.Command{
			addCommand,
			updateCommand,
			removeCommand,
			searchCommand,
			getCommand,
			listCommand,
			tocCommand,
			aliasCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, "error:", err.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a blzerrors.Kind to spec §6's two failure codes:
// user-caused errors exit 1, operational failures exit 2.
func exitCodeFor(err error) int {
	kinder, ok := err.(interface{ Kind() blzerrors.Kind })
	if !ok {
		return exitUser
	}
	switch kinder.Kind() {
	case blzerrors.KindNotFound, blzerrors.KindInvalid, blzerrors.KindExists:
		return exitUser
	default:
		return exitOperational
	}
}

func fail(err error) error {
	return cli.Exit(err.Error(), exitCodeFor(err))
}

// openEngine builds the engine from config.Load (built-in defaults and
// BLZ_DATA_DIR/BLZ_CONFIG_DIR, overlaid by blz.kdl, so a data_dir in
// blz.kdl wins over BLZ_DATA_DIR), then applies the global flags, which
// win over both. blz.kdl is read before the flags are applied, so
// --config-dir does not change which blz.kdl is loaded.
func openEngine(c *cli.Context) (*blz.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if v := c.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("config-dir"); v != "" {
		cfg.ConfigDir = v
	}
	return blz.Open(cfg, nil), cfg, nil
}

// outputFormat resolves --format/--json with --json taking precedence
// when both are set, matching spec §6 ("--json is a synonym for
// --format json").
func outputFormat(c *cli.Context) string {
	if c.Bool("json") {
		return "json"
	}
	f := c.String("format")
	if f == "" {
		return "text"
	}
	return f
}

func emit(c *cli.Context, textFn func(), v any) error {
	switch outputFormat(c) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "jsonl":
		items := toSlice(v)
		enc := json.NewEncoder(os.Stdout)
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	default:
		textFn()
		return nil
	}
}

// toSlice lets jsonl output one line per element for slice-shaped
// results, and a single line for scalar ones.
func toSlice(v any) []any {
	switch t := v.(type) {
	case []types.SourceSummary:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []*types.UpdateSummary:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []types.SearchHit:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "register and fetch a new source",
	ArgsUsage: "<source> <url>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "category"},
		&cli.StringSliceFlag{Name: "tag"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("usage: blz add <source> <url>", exitUser)
		}
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		source, url := c.Args().Get(0), c.Args().Get(1)
		desc := &types.Descriptor{
			Source:      source,
			URL:         url,
			Description: c.String("description"),
			Category:    c.String("category"),
			Tags:        c.StringSlice("tag"),
		}
		summary, err := engine.Add(c.Context, source, url, desc)
		if err != nil {
			return fail(err)
		}
		return emit(c, func() {
			fmt.Printf("added %s (%d blocks, %d lines)\n", summary.Source, summary.BlockCount, summary.LineCount)
		}, summary)
	},
}

var updateCommand = &cli.Command{
	Name:      "update",
	Usage:     "re-fetch one or all registered sources",
	ArgsUsage: "[source]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Usage: "update every registered source"},
	},
	Action: func(c *cli.Context) error {
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		if c.Bool("all") || c.Args().Len() == 0 {
			results, err := engine.UpdateAll(c.Context, nil)
			if err != nil {
				return fail(err)
			}
			return emit(c, func() {
				for _, r := range results {
					fmt.Printf("%s: %s (%d ms)\n", r.Source, r.Status, r.DurationMs)
				}
			}, results)
		}
		summary, err := engine.Update(c.Context, c.Args().Get(0))
		if err != nil {
			return fail(err)
		}
		return emit(c, func() {
			fmt.Printf("%s: %s (%d ms)\n", summary.Source, summary.Status, summary.DurationMs)
		}, []*types.UpdateSummary{summary})
	},
}

var removeCommand = &cli.Command{
	Name:      "remove",
	Usage:     "delete a registered source",
	ArgsUsage: "<source>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("usage: blz remove <source>", exitUser)
		}
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		if err := engine.Remove(c.Context, c.Args().Get(0)); err != nil {
			return fail(err)
		}
		return emit(c, func() { fmt.Println("removed") }, map[string]string{"status": "removed"})
	},
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "query indexed sources for ranked snippets",
	ArgsUsage: "<query>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "source", Usage: "restrict to these sources (repeatable)"},
		&cli.IntFlag{Name: "page", Value: 1},
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "results per page (must be > 0)"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("usage: blz search <query>", exitUser)
		}
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		resp, err := engine.Search(c.Context, c.Args().First(), c.StringSlice("source"), c.Int("page"), c.Int("limit"))
		if err != nil {
			return fail(err)
		}
		return emit(c, func() {
			fmt.Printf("%d result(s) for %q (page %d)\n", resp.TotalResults, resp.Query, resp.Page)
			for _, h := range resp.Results {
				fmt.Printf("  %s:%s [%s] score=%.3f\n", h.Source, h.LineRange.String(), strings.Join(h.HeadingPath, " > "), h.Score)
				fmt.Printf("    %s\n", h.Snippet)
			}
			for _, w := range resp.Errors {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
		}, resp)
	},
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "return exact text for a line range in a source",
	ArgsUsage: "<source> <start>[-<end>]",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("usage: blz get <source> <start>[-<end>]", exitUser)
		}
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		rng, err := parseLineRange(c.Args().Get(1))
		if err != nil {
			return cli.Exit(err.Error(), exitUser)
		}
		frag, err := engine.Get(c.Args().Get(0), rng)
		if err != nil {
			return fail(err)
		}
		return emit(c, func() {
			if frag.Clamped {
				fmt.Fprintf(os.Stderr, "warning: clamped to %s\n", frag.Range.String())
			}
			fmt.Println(frag.Text)
		}, frag)
	},
}

func parseLineRange(s string) (types.LineRange, error) {
	parts := strings.SplitN(s, "-", 2)
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return types.LineRange{}, fmt.Errorf("invalid line range %q", s)
	}
	end := start
	if len(parts) == 2 {
		end, err = strconv.Atoi(parts[1])
		if err != nil {
			return types.LineRange{}, fmt.Errorf("invalid line range %q", s)
		}
	}
	return types.LineRange{Start: start, End: end}, nil
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list every registered source",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "pattern", Usage: "glob filter over source identifiers (doublestar syntax)"},
	},
	Action: func(c *cli.Context) error {
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		var sources []types.SourceSummary
		if pattern := c.String("pattern"); pattern != "" {
			sources, err = engine.ListMatching(pattern)
		} else {
			sources, err = engine.List()
		}
		if err != nil {
			return fail(err)
		}
		return emit(c, func() {
			for _, s := range sources {
				fmt.Printf("%s\t%s\t%d blocks\t%d lines\n", s.Source, s.URL, s.BlockCount, s.LineCount)
			}
		}, sources)
	},
}

var tocCommand = &cli.Command{
	Name:      "toc",
	Usage:     "print a source's derived table of contents",
	ArgsUsage: "<source>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("usage: blz toc <source>", exitUser)
		}
		engine, _, err := openEngine(c)
		if err != nil {
			return fail(err)
		}
		toc, err := engine.TOC(c.Args().Get(0))
		if err != nil {
			return fail(err)
		}
		return emit(c, func() { printTOC(toc, 0) }, toc)
	},
}

func printTOC(nodes []*types.TOCNode, depth int) {
	for _, n := range nodes {
		fmt.Printf("%s%s (%s)\n", strings.Repeat("  ", depth), n.Title, n.Range.String())
		printTOC(n.Children, depth+1)
	}
}

var aliasCommand = &cli.Command{
	Name:  "alias",
	Usage: "manage source aliases",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			ArgsUsage: "<source> <alias>",
			Action: func(c *cli.Context) error {
				if c.Args().Len() < 2 {
					return cli.Exit("usage: blz alias add <source> <alias>", exitUser)
				}
				engine, _, err := openEngine(c)
				if err != nil {
					return fail(err)
				}
				if err := engine.AliasAdd(c.Args().Get(0), c.Args().Get(1)); err != nil {
					return fail(err)
				}
				return emit(c, func() { fmt.Println("alias added") }, map[string]string{"status": "added"})
			},
		},
		{
			Name:      "remove",
			ArgsUsage: "<source> <alias>",
			Action: func(c *cli.Context) error {
				if c.Args().Len() < 2 {
					return cli.Exit("usage: blz alias remove <source> <alias>", exitUser)
				}
				engine, _, err := openEngine(c)
				if err != nil {
					return fail(err)
				}
				if err := engine.AliasRemove(c.Args().Get(0), c.Args().Get(1)); err != nil {
					return fail(err)
				}
				return emit(c, func() { fmt.Println("alias removed") }, map[string]string{"status": "removed"})
			},
		},
		{
			Name:      "list",
			ArgsUsage: "<source>",
			Action: func(c *cli.Context) error {
				if c.Args().Len() < 1 {
					return cli.Exit("usage: blz alias list <source>", exitUser)
				}
				engine, _, err := openEngine(c)
				if err != nil {
					return fail(err)
				}
				aliases, err := engine.AliasList(c.Args().Get(0))
				if err != nil {
					return fail(err)
				}
				return emit(c, func() {
					for _, a := range aliases {
						fmt.Println(a)
					}
				}, aliases)
			},
		},
	},
}
