package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/phylo.report/internal/api"
)

const defaultServerURL = "http://localhost:8080"

func newSubmitCmd() *cobra.Command {
	var server, out string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Run a FASTA file through a phylo server",
		Long: `Uploads FILE to a running server, aligns it, builds the tree and prints
the tree summary. With --out the Newick tree is downloaded to that path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			c := api.NewClient(server, nil)

			up, err := c.Upload(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "request %s: uploaded\n", up.RequestID)

			aligned, err := c.Align(ctx, up.RequestID, up.Filepath)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "request %s: aligned\n", up.RequestID)

			built, err := c.BuildTree(ctx, up.RequestID, aligned.AlignedFilepath)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "request %s: tree built in %.1fs (%d leaves, %d internal nodes)\n",
				up.RequestID, built.ExecutionTime, built.Summary.Leaves, built.Summary.InternalNodes)

			if out != "" {
				data, err := c.Result(ctx, up.RequestID+"/tree.nwk")
				if err != nil {
					return fmt.Errorf("download tree: %w", err)
				}
				if err := os.WriteFile(out, data, 0644); err != nil {
					return err
				}
				fmt.Fprintf(w, "tree written to %s\n", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServerURL, "phylo server URL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the Newick tree to this file")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status [REQUEST_ID]",
		Short: "Show recent requests, or one request, on a phylo server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.NewClient(server, nil)

			var v interface{}
			var err error
			if len(args) == 1 {
				v, err = c.Status(cmd.Context(), args[0])
			} else {
				v, err = c.Recent(cmd.Context())
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServerURL, "phylo server URL")
	return cmd
}
