// Package main provides the corpusdb CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpusgraph/corpusdb/pkg/config"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/jsonquery"
	"github.com/corpusgraph/corpusdb/pkg/manager"
	"github.com/corpusgraph/corpusdb/pkg/query"
	"github.com/corpusgraph/corpusdb/pkg/relannis"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "corpusdb",
		Short: "corpusdb - an in-memory linguistic corpus graph database",
		Long: `corpusdb stores a linguistic corpus as a typed directed graph --
tokens, spans, and sub-documents connected by Coverage, Dominance,
Pointing, and Ordering edges -- with structural queries over it and
crash-safe snapshots to disk.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a corpusdb.yaml config file")

	rootCmd.AddCommand(
		versionCmd(),
		initCmd(),
		importCmd(),
		listCmd(),
		infoCmd(),
		queryCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, err
		}
	}
	cfg = config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("corpusdb v%s (%s)\n", version, commit)
		},
	}
}

func initCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "init <corpus-name>",
		Short: "Create an empty corpus directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			m := manager.New(cfg)
			if err := m.ImportCorpus(args[0], corpus.GraphUpdate{}); err != nil {
				return err
			}
			fmt.Printf("created empty corpus %q under %s\n", args[0], cfg.Storage.DataDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	return cmd
}

func importCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "import <corpus-name> <relannis-dir>",
		Short: "Import a relANNIS corpus directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}

			gu, err := relannis.Import(args[1])
			if err != nil {
				return fmt.Errorf("importing relANNIS directory: %w", err)
			}

			m := manager.New(cfg)
			start := time.Now()
			if err := m.ImportCorpus(args[0], gu); err != nil {
				return err
			}
			fmt.Printf("imported %q (%d events) in %v\n", args[0], len(gu.Events), time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	return cmd
}

func listCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every known corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			m := manager.New(cfg)
			names, err := m.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	return cmd
}

func infoCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "info <corpus-name>",
		Short: "Show a corpus's load status and estimated size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			m := manager.New(cfg)
			info := m.Info(args[0])
			fmt.Printf("corpus:      %s\n", info.Name)
			fmt.Printf("load status: %s\n", info.LoadStatus)
			fmt.Printf("est. size:   %s\n", info.HumanSize)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	return cmd
}

func queryCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "query <corpus-name> <query.json>",
		Short: "Run one JSON query document against a corpus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}

			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading query document: %w", err)
			}
			doc, err := jsonquery.Parse(raw)
			if err != nil {
				return err
			}

			m := manager.New(cfg)
			return m.Find(args[0], func(c *corpus.Corpus) error {
				plans, err := jsonquery.Compile(c, doc)
				if err != nil {
					return err
				}
				tuples := query.RunAlternatives(plans)
				for _, tup := range tuples {
					fmt.Println(formatTuple(c, tup))
				}
				fmt.Fprintf(os.Stderr, "%d matches\n", len(tuples))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	return cmd
}

// formatTuple renders a match tuple as salt:/<corpus>/<doc>#<local> paths
// (spec §6), one per space-separated position.
func formatTuple(c *corpus.Corpus, tup query.Tuple) string {
	out := ""
	for i, m := range tup {
		if i > 0 {
			out += " "
		}
		if path, ok := c.PathOf(m.Node); ok {
			out += "salt:/" + path
		} else {
			out += fmt.Sprintf("node#%d", m.Node)
		}
	}
	return out
}

func serveCmd() *cobra.Command {
	var dataDir string
	var writeInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the background writer and eviction sweep until interrupted",
		Long: `serve runs corpusdb's storage manager as a long-lived process: a
background writer periodically snapshots every loaded corpus, and a
periodic eviction sweep enforces the configured cache budget. This
command has no network surface of its own (spec.md's Non-goals exclude a
transport protocol); it exists to keep a manager alive for operators
driving it through a future RPC frontend or embedding it as a library.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			if writeInterval <= 0 {
				writeInterval = 30 * time.Second
			}

			m := manager.New(cfg)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			go m.RunBackgroundWriter(ctx, writeInterval)
			go m.RunEvictionSweep(ctx, writeInterval)

			fmt.Printf("corpusdb manager running, data dir %s, write interval %v\n", cfg.Storage.DataDir, writeInterval)
			<-ctx.Done()

			fmt.Println("shutting down, saving every loaded corpus...")
			if err := m.SaveAll(); err != nil {
				return fmt.Errorf("saving on shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	cmd.Flags().DurationVar(&writeInterval, "write-interval", 30*time.Second, "background snapshot interval")
	return cmd
}

var _ = json.Marshal // kept for future structured-output modes of `query`
