package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/config"
	"github.com/aleksaelezovic/trigofed/internal/encoding"
	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/internal/server"
	"github.com/aleksaelezovic/trigofed/internal/service"
	"github.com/aleksaelezovic/trigofed/internal/sparql/parser"
	"github.com/aleksaelezovic/trigofed/internal/storage"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/aleksaelezovic/trigofed/pkg/results"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "trigofed",
		Short:         "Federated execution of SPARQL SERVICE clauses.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file with runtime parameters")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServiceCommand(&configPath))
	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newVocabCommand(&configPath))
	return rootCmd
}

// setup loads the parameters and a logger writing to the command's stderr
func setup(cmd *cobra.Command, configPath string) (config.RuntimeParameters, *log.Logger, error) {
	params, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return config.RuntimeParameters{}, nil, err
	}
	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	level, err := log.ParseLevel(params.LogLevel)
	if err != nil {
		return config.RuntimeParameters{}, nil, fmt.Errorf("invalid log level %q: %w", params.LogLevel, err)
	}
	logger.SetLevel(level)
	return params, logger, nil
}

func openVocabulary(path string) (*vocab.Vocabulary, func(), error) {
	st, err := storage.NewBadgerStorage(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vocabulary at %s: %w", path, err)
	}
	return vocab.NewVocabulary(st), func() { st.Close() }, nil
}

func readResultsFile(path string) (*results.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table, err := results.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

func newServiceCommand(configPath *string) *cobra.Command {
	var (
		file        string
		siblingPath string
		format      string
		lazy        bool
		printQuery  bool
	)
	cmd := &cobra.Command{
		Use:   "service [clause]",
		Short: "Execute a SERVICE clause against its endpoint",
		Long: `Execute a single SERVICE clause, optionally preceded by PREFIX and BASE
declarations. With --sibling, the SPARQL JSON results in the given file are
treated as the operation next to the SERVICE: if small enough they are pushed
into the remote query as a VALUES clause.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := clauseText(args, file)
			if err != nil {
				return err
			}
			params, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			clause, err := parser.ParseService(text)
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}

			v, closeVocab, err := openVocabulary(params.VocabPath)
			if err != nil {
				return err
			}
			defer closeVocab()

			ec, err := engine.NewExecutionContext(v, params, engine.WithLogger(logger))
			if err != nil {
				return err
			}
			defer ec.Close()

			ctx := cmd.Context()
			svc := service.New(ec, clause, nil)
			if siblingPath != "" {
				table, err := readResultsFile(siblingPath)
				if err != nil {
					return err
				}
				sibling, err := engine.NewValues(ec, table.Variables, table.Rows)
				if err != nil {
					return err
				}
				if err := service.PrecomputeSiblingResult(ctx, sibling, svc, false, lazy); err != nil {
					return err
				}
			}

			if printQuery {
				query, err := svc.Query(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), query)
				return err
			}

			mode := engine.FullyMaterialized
			if lazy {
				mode = engine.LazyIfSupported
			}
			res, err := engine.GetResult(ctx, svc, mode)
			if err != nil {
				return err
			}
			chunk, err := engine.Materialize(ctx, res.Chunks(), svc.ResultWidth(), ec.Allocator)
			if err != nil {
				return err
			}
			table, err := toResultsTable(ec, svc.VariableColumns().Variables(), chunk)
			if err != nil {
				return err
			}

			logger.WithFields(log.Fields{
				"rows":    humanize.Comma(int64(len(table.Rows))),
				"runtime": svc.RuntimeInfo().String(),
			}).Info("SERVICE finished")
			return render(cmd.OutOrStdout(), table, format)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the clause from a file")
	cmd.Flags().StringVar(&siblingPath, "sibling", "", "SPARQL JSON results of the sibling operation")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json, csv or tsv")
	cmd.Flags().BoolVar(&lazy, "lazy", false, "decode the response lazily, fragment by fragment")
	cmd.Flags().BoolVar(&printQuery, "print-query", false, "print the remote query instead of sending it")
	return cmd
}

func clauseText(args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("give the clause either as argument or with --file")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("no SERVICE clause given")
}

func newServeCommand(configPath *string) *cobra.Command {
	var (
		addr        string
		resultsPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a fixed result table as a SPARQL endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			table, err := readResultsFile(resultsPath)
			if err != nil {
				return err
			}
			return server.NewServer(table, addr, logger).Start()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	cmd.Flags().StringVar(&resultsPath, "results", "", "SPARQL JSON results to answer every query with")
	_ = cmd.MarkFlagRequired("results")
	return cmd
}

func newVocabCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage the vocabulary of known IRIs and literals",
	}

	var reset bool
	load := &cobra.Command{
		Use:   "load <file>...",
		Short: "Add every IRI and literal of SPARQL JSON results, or of a file with one word per line (.txt)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			v, closeVocab, err := openVocabulary(params.VocabPath)
			if err != nil {
				return err
			}
			defer closeVocab()

			if reset {
				if err := v.Reset(); err != nil {
					return err
				}
				logger.Info("vocabulary reset")
			}
			for _, path := range args {
				words, err := wordsOf(path)
				if err != nil {
					return err
				}
				added, err := v.Add(words...)
				if err != nil {
					return err
				}
				logger.WithField("file", path).Infof("added %s of %s words",
					humanize.Comma(int64(added)), humanize.Comma(int64(len(words))))
			}
			if err := v.Sync(); err != nil {
				return err
			}
			size, err := v.Size()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "vocabulary size: %s\n", humanize.Comma(int64(size)))
			return err
		},
	}
	load.Flags().BoolVar(&reset, "reset", false, "remove all words before loading")

	lookup := &cobra.Command{
		Use:   "lookup <word>...",
		Short: "Print the index of each word, e.g. '<http://example.org/a>'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, _, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			v, closeVocab, err := openVocabulary(params.VocabPath)
			if err != nil {
				return err
			}
			defer closeVocab()

			for _, word := range args {
				idx, ok, err := v.Index(word)
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", word, idx)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tnot found\n", word)
				}
			}
			return nil
		},
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print every word with its index, in index order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, _, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			v, closeVocab, err := openVocabulary(params.VocabPath)
			if err != nil {
				return err
			}
			defer closeVocab()

			out := cmd.OutOrStdout()
			return v.Each(func(idx uint64, word string) error {
				_, err := fmt.Fprintf(out, "%d\t%s\n", idx, word)
				return err
			})
		},
	}

	cmd.AddCommand(load, lookup, dump)
	return cmd
}

// wordsOf reads the vocabulary words of a file. Blank nodes are skipped.
func wordsOf(path string) ([]string, error) {
	if strings.HasSuffix(path, ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLines(f)
	}

	table, err := readResultsFile(path)
	if err != nil {
		return nil, err
	}
	enc := encoding.NewTermEncoder()
	var words []string
	for _, row := range table.Rows {
		for _, term := range row {
			switch term.(type) {
			case nil, *rdf.BlankNode:
				continue
			}
			word, err := enc.EncodeTerm(term)
			if err != nil {
				return nil, err
			}
			words = append(words, word)
		}
	}
	return words, nil
}

func readLines(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			words = append(words, line)
		}
	}
	return words, scanner.Err()
}
