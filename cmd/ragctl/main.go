// Package main implements the ragctl CLI for manual operations against the raglab HTTP server.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the raglab HTTP server
	serverURL string
	// timeout bounds every request; ask and probe wait on the model
	timeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "CLI for raglab HTTP server operations",
	Long: `ragctl is a command-line interface for interacting with the raglab HTTP server.
It uploads documents, asks questions and checks server and model health.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8001", "raglab server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(probeCmd)
}

// ingestCmd uploads documents
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Upload documents to the index",
	Long: `Upload one or more text or PDF files. Each file is chunked, embedded
and stored under its base name.

Examples:
  # Index a paper
  ragctl ingest paper.pdf

  # Index several notes
  ragctl ingest notes/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

// askCmd asks a question
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Ask a question. The answer is printed followed by the source files
of the chunks it was grounded on.

Examples:
  ragctl ask "What is PageRank?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// healthCmd checks server liveness
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check raglab server health",
	Long: `Check that the raglab HTTP server is up. This does not contact the model.

Examples:
  ragctl health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// probeCmd checks the generation model end to end
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Round-trip a trivial prompt through the model",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func runIngest(cmd *cobra.Command, args []string) error {
	c := newClient(serverURL, timeout)
	total := 0
	for _, path := range args {
		n, err := c.Ingest(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		total += n
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, n)
	}
	if len(args) > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "total: %d chunks\n", total)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	c := newClient(serverURL, timeout)
	ans, err := c.Ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(ans.Sources, ", "))
	}
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	c := newClient(serverURL, 5*time.Second)
	st, err := c.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server Status: ok=%t model=%s\n", st.OK, st.Model)
	return nil
}

func runProbe(cmd *cobra.Command, _ []string) error {
	c := newClient(serverURL, timeout)
	st, err := c.Probe(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model %s responded\n", st.Model)
	return nil
}
