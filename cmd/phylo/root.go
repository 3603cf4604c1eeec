// Command phylo serves the sequence-to-tree pipeline and offers a few
// offline helpers around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/phylo.report/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phylo",
		Short: "Build phylogenetic trees from uploaded FASTA sequences",
		Long: "phylo aligns uploaded sequences with Clustal Omega, infers a tree with\n" +
			"IQ-TREE and serves the result as Newick, viewer JSON and SVG.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      version.String(),
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTreeCmd())
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
