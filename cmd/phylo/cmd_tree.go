package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/render"
)

type treeFlags struct {
	newick  bool
	summary bool
	svg     string
	html    string
}

func newTreeCmd() *cobra.Command {
	var flags treeFlags

	cmd := &cobra.Command{
		Use:   "tree FILE",
		Short: "Convert a Newick tree file offline",
		Long: `Parses a Newick tree and prints its viewer JSON. --newick prints the
normalised Newick text instead, --summary prints size and branch length
statistics, and --svg / --html write a dendrogram or viewer page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd.OutOrStdout(), args[0], flags)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.newick, "newick", false, "print normalised Newick instead of JSON")
	f.BoolVar(&flags.summary, "summary", false, "print tree statistics")
	f.StringVar(&flags.svg, "svg", "", "write an SVG dendrogram to this file")
	f.StringVar(&flags.html, "html", "", "write an interactive viewer page to this file")
	return cmd
}

func runTree(out io.Writer, path string, flags treeFlags) error {
	root, err := newick.ParseFile(path)
	if err != nil {
		return err
	}

	switch {
	case flags.summary:
		s := newick.Summarize(root)
		fmt.Fprintf(out, "leaves:               %d\n", s.Leaves)
		fmt.Fprintf(out, "internal nodes:       %d\n", s.InternalNodes)
		fmt.Fprintf(out, "total length:         %g\n", s.TotalLength)
		fmt.Fprintf(out, "mean branch length:   %g\n", s.MeanBranchLength)
		fmt.Fprintf(out, "stddev branch length: %g\n", s.StdDevBranchLength)
		fmt.Fprintf(out, "max root-to-tip:      %g\n", s.MaxRootToTip)
	case flags.newick:
		fmt.Fprintln(out, newick.Format(root))
	default:
		data, err := json.MarshalIndent(newick.Encode(root), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if flags.svg != "" {
		var buf bytes.Buffer
		if err := render.WriteSVG(&buf, newick.Encode(root), title); err != nil {
			return err
		}
		if err := os.WriteFile(flags.svg, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write svg: %w", err)
		}
	}
	if flags.html != "" {
		var buf bytes.Buffer
		if err := render.WriteViewer(&buf, newick.Encode(root), title, path); err != nil {
			return err
		}
		if err := os.WriteFile(flags.html, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write viewer: %w", err)
		}
	}
	return nil
}
