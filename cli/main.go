package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/nedpals/tla-sany-lsp/config"
	"github.com/nedpals/tla-sany-lsp/journal"
	"github.com/nedpals/tla-sany-lsp/lsp_server"
	"github.com/nedpals/tla-sany-lsp/release"
	"github.com/nedpals/tla-sany-lsp/sany"
	"github.com/nedpals/tla-sany-lsp/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "tla-sany-lsp",
	Version:      release.Describe(),
	Short:        "A language server for TLA+ specifications backed by the SANY analyzer.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// change data-dir if present
		if dataDir, _ := cmd.Flags().GetString("data-dir"); len(dataDir) != 0 {
			config.SetDataDirPath(dataDir)
		}

		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		isVerbose, _ := cmd.Flags().GetBool("verbose")
		logger, err = config.NewLogger(cfg.Log.Level, isVerbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func analyzer() (*sany.Command, error) {
	a := cfg.Command()
	if err := a.CheckAvailable(); err != nil {
		return nil, err
	}
	return a, nil
}

// errorPosition prefixes an analyzer error with its position, or with the
// file alone when the analyzer did not locate it.
func errorPosition(path string, e sany.ErrorRecord) string {
	if e.Location.IsZero() {
		return path
	}
	return fmt.Sprintf("%s:%d:%d", path, e.Location.BeginLine, e.Location.BeginColumn)
}

// exitCode maps how the language server stopped to a process exit status.
// err is only returned when it is not part of the shutdown protocol.
func exitCode(err error) (int, error) {
	switch {
	case err == nil, errors.Is(err, lsp_server.ErrExit):
		return 0, nil
	case errors.Is(err, lsp_server.ErrExitWithoutShutdown):
		return 1, nil
	}
	return 1, err
}

// cleanup releases what the deferred calls and PersistentPostRun would,
// for paths that leave through os.Exit.
func cleanup(j *journal.Journal) {
	if err := j.Close(); err != nil && logger != nil {
		logger.Warn("unable to close journal", zap.Error(err))
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func openJournal() (*journal.Journal, error) {
	if len(cfg.Journal.Path) == 0 {
		if _, err := config.GetOrInitializeDataDir(); err != nil {
			return nil, err
		}
	}
	return journal.Open(cfg.JournalPath())
}

// analyzeFile runs the analyzer on file and builds a session when it
// succeeds. Analysis errors come back in the result, not as an error.
func analyzeFile(ctx context.Context, a sany.Analyzer, file string) (*session.Session, *sany.Result, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return nil, nil, err
	}

	result, err := a.Analyze(ctx, path)
	if err != nil {
		return nil, nil, err
	} else if result == nil {
		return nil, nil, fmt.Errorf("no result for %s", path)
	}

	if !result.OK() {
		return nil, result, nil
	}
	return session.New(result.Tree, cfg.LibraryPaths...), result, nil
}

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Starts a language server to be consumed by LSP-supported editors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyzer()
		if err != nil {
			log.Fatalln(err)
		}

		if err := a.Probe(cmd.Context()); err != nil {
			log.Fatalln(err)
		}

		opts := lsp_server.Options{
			Analyzer:    a,
			SearchPaths: cfg.LibraryPaths,
			Logger:      logger,
			Version:     release.Version(),
		}

		var j *journal.Journal
		if cfg.Journal.Enabled {
			if j, err = openJournal(); err != nil {
				logger.Warn("journal disabled", zap.Error(err))
			} else {
				defer j.Close()
				opts.Recorder = j
			}
		}

		listen := cfg.Listen
		if addr, _ := cmd.Flags().GetString("listen"); len(addr) != 0 {
			listen = addr
		}

		if len(listen) != 0 {
			logger.Info("listening", zap.String("addr", listen))
			return lsp_server.Listen(cmd.Context(), listen, opts)
		}

		code, err := exitCode(lsp_server.Start(cmd.Context(), opts))
		if err == nil && code != 0 {
			cleanup(j)
			os.Exit(code)
		}
		return err
	},
}

type checkResult struct {
	path   string
	result *sany.Result
	err    error
}

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Analyzes specifications and prints their errors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyzer()
		if err != nil {
			log.Fatalln(err)
		}

		results := make([]checkResult, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(runtime.GOMAXPROCS(0))

		for i, file := range args {
			i, file := i, file
			g.Go(func() error {
				_, result, err := analyzeFile(ctx, a, file)
				results[i] = checkResult{path: file, result: result, err: err}
				if sany.IsStartupError(err) {
					return err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			log.Fatalln(err)
		}

		bold := color.New(color.Bold)
		red := color.New(color.FgRed, color.Bold)
		green := color.New(color.FgGreen)

		failed := 0
		for _, res := range results {
			switch {
			case res.err != nil:
				failed++
				fmt.Printf("%s: %s %s\n", bold.Sprint(res.path), red.Sprint("error:"), res.err)
			case !res.result.OK():
				failed++
				for _, e := range res.result.Errors {
					fmt.Printf("%s: %s %s\n",
						bold.Sprint(errorPosition(res.path, e)),
						red.Sprint("error:"),
						e.Message)
				}
			default:
				fmt.Printf("%s: %s\n", bold.Sprint(res.path), green.Sprint("ok"))
			}
		}

		if failed > 0 {
			os.Stderr.WriteString(fmt.Sprintf("\n%d of %d file/s failed.\n", failed, len(results)))
			os.Exit(1)
		}
		return nil
	},
}

func mustSession(cmd *cobra.Command, file string) *session.Session {
	a, err := analyzer()
	if err != nil {
		log.Fatalln(err)
	}

	sess, result, err := analyzeFile(cmd.Context(), a, file)
	if err != nil {
		log.Fatalln(err)
	} else if sess == nil {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s: error: %s\n", errorPosition(file, e), e.Message)
		}
		os.Exit(1)
	}
	return sess
}

var resolveCmd = &cobra.Command{
	Use:   "resolve FILE NAME",
	Short: "Prints where a name of the specification is defined",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := mustSession(cmd, args[0])
		name := args[1]

		node, ok := sess.ResolveSymbol(name)
		if !ok {
			fmt.Printf("no definition for %s\n", name)
			if suggestion, ok := sess.Suggest(name); ok {
				fmt.Printf("did you mean %s?\n", suggestion)
			}
			os.Exit(1)
		}

		fmt.Printf("%s:%d:%d\n", sess.PathOf(node.Location), node.Location.BeginLine, node.Location.BeginColumn)
		text, err := sess.Text(node, "  ")
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Prints the semantic tree of a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mustSession(cmd, args[0]).Dump(os.Stdout)
	},
}

func historyFilter(cmd *cobra.Command) journal.Filter {
	f := journal.Filter{}
	if u, _ := cmd.Flags().GetString("uri"); len(u) != 0 {
		f.URI = u
	}
	if p, _ := cmd.Flags().GetString("path"); len(p) != 0 {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		f.Path = p
	}
	f.FailedOnly, _ = cmd.Flags().GetBool("failed")
	f.Limit, _ = cmd.Flags().GetUint64("limit")
	return f
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Lists the analyses recorded by the language server",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			log.Fatalln(err)
		}
		defer j.Close()

		it, err := j.Entries(historyFilter(cmd))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ANALYZED AT\tPATH\tOK\tERRORS\tDURATION\tFIRST ERROR")
		for it.Next() {
			entry, err := it.Value()
			if err != nil {
				return err
			}

			analyzedAt := ""
			if entry.CreatedAt != nil && entry.CreatedAt.Valid {
				analyzedAt = entry.CreatedAt.Time.Local().Format(time.DateTime)
			}

			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%s\n",
				analyzedAt,
				entry.Path,
				entry.OK,
				entry.ErrorCount,
				time.Duration(entry.DurationMs)*time.Millisecond,
				entry.FirstError)
		}
		return w.Flush()
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export FILE.xlsx",
	Short: "Saves the recorded analyses to an excel file, one sheet per document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			log.Fatalln(err)
		}
		defer j.Close()

		if err := j.Export(args[0], historyFilter(cmd)); err != nil {
			return err
		}

		fmt.Println("saved to", args[0])
		return nil
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Deletes every recorded analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			log.Fatalln(err)
		}
		defer j.Close()

		if err := j.Reset(); err != nil {
			return err
		}

		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyResetCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "the configuration file to use. Defaults to $"+config.ConfigEnv+", then config.yaml in the data directory.")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose mode")
	rootCmd.PersistentFlags().String("data-dir", "", "the directory for the configuration and the journal. To override the default directory, set the "+config.DataDirEnv+" environment variable.")
	lspCmd.Flags().String("listen", "", "serve over TCP on the given address instead of stdio")

	historyCmd.PersistentFlags().String("uri", "", "only list analyses of this document URI")
	historyCmd.PersistentFlags().String("path", "", "only list analyses of this file")
	historyCmd.PersistentFlags().Bool("failed", false, "only list failed analyses")
	historyCmd.PersistentFlags().Uint64("limit", 0, "list at most this many analyses")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}
