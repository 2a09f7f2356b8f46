package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sambeau/cmarkup/pkg/catalog"
	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/pkg/logging"
	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/help"
	"github.com/sambeau/cmarkup/pkg/markup/render"
	"github.com/sambeau/cmarkup/pkg/markup/repl"
	"github.com/sambeau/cmarkup/pkg/markup/scanner"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
	"github.com/sambeau/cmarkup/server"
	"github.com/sambeau/cmarkup/server/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app carries the process streams and global flags shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	verbosity  int
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cmarkup",
		Short: "Render custom markup tags into live components",
		Long: `cmarkup renders rich text that embeds custom tags such as <video-preview>
or <call-to-action-button>. Each tag is validated, its data is fetched from
the catalog and a component is mounted in its place. Tags that cannot be
rendered degrade to fallback markers; the rest of the document still renders.

Config resolution:
  1. --config flag
  2. CMARKUP_CONFIG environment variable
  3. ./cmarkup.yaml
  4. ~/.config/cmarkup/cmarkup.yaml
  5. built-in defaults`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: auto-detect)")
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	root.AddCommand(
		a.serveCmd(),
		a.renderCmd(),
		a.scanCmd(),
		a.tagsCmd(),
		a.replCmd(),
		a.configCmd(),
		a.importCmd(),
		a.versionCmd(),
	)
	return root
}

// loadConfig resolves and validates configuration. apply runs before
// validation so flag overrides are checked too.
func (a *app) loadConfig(apply func(*config.Config)) (*config.Config, string, error) {
	cfg, path, err := config.LoadWithPath(a.configPath, a.getenv)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	if apply != nil {
		apply(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config validation: %w", err)
	}
	return cfg, path, nil
}

// logger builds the process logger from config and -v flags. The returned
// function closes a log file, if one was opened.
func (a *app) logger(cfg *config.Config) (zerolog.Logger, func() error, error) {
	out, closeFn, err := logging.OpenOutput(cfg.Logging.Output, a.stdout, a.stderr)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	level := cfg.Logging.Level
	switch {
	case a.verbosity >= 2:
		level = "trace"
	case a.verbosity == 1:
		level = "debug"
	}
	return logging.New(out, logging.Options{Level: level, Format: cfg.Logging.Format}), closeFn, nil
}

// withEngine loads config, builds a logger and an engine, and runs fn.
func (a *app) withEngine(cmd *cobra.Command, apply func(*config.Config), fn func(*config.Config, *server.Engine, zerolog.Logger) error) error {
	cfg, path, err := a.loadConfig(apply)
	if err != nil {
		return err
	}
	log, closeLog, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if path != "" {
		log.Debug().Str("path", path).Msg("config loaded")
	}
	for _, w := range config.Warnings(cfg) {
		log.Warn().Msg(w)
	}

	engine, err := server.NewEngine(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn().Err(err).Msg("engine teardown reported failures")
		}
	}()
	return fn(cfg, engine, log)
}

func (a *app) serveCmd() *cobra.Command {
	var (
		dev  bool
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the render server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apply := func(cfg *config.Config) {
				if dev {
					cfg.Server.Dev = true
				}
				if port != 0 {
					cfg.Server.Port = port
				}
			}
			return a.withEngine(cmd, apply, func(cfg *config.Config, engine *server.Engine, log zerolog.Logger) error {
				if !cfg.Server.Dev {
					gin.SetMode(gin.ReleaseMode)
				}
				srv, err := server.New(cfg, engine, log)
				if err != nil {
					return fmt.Errorf("creating server: %w", err)
				}
				return srv.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode (no caching, gin debug output)")
	cmd.Flags().IntVar(&port, "port", 0, "Override listen port")
	return cmd
}

// readSource reads a file, or standard input for "-".
func (a *app) readSource(name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(a.stdin)
		return string(data), err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sourceFormat(name, flag string) (content.Format, error) {
	if flag != "" {
		return content.ParseFormat(flag)
	}
	if f, ok := content.FormatForPath(name); ok {
		return f, nil
	}
	return content.HTML, nil
}

func (a *app) renderCmd() *cobra.Command {
	var (
		format string
		tree   bool
		asJSON bool
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a document and print the result",
		Long: `Render a markdown or HTML document (or - for standard input) and print the
resulting HTML. Fallbacks and fetch failures are reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sourceFormat(args[0], format)
			if err != nil {
				return err
			}
			src, err := a.readSource(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, nil, func(_ *config.Config, engine *server.Engine, _ zerolog.Logger) error {
				res, err := engine.Render(cmd.Context(), "cli", src, f)
				if err != nil {
					return err
				}
				if err := a.printResult(res, tree, asJSON); err != nil {
					return err
				}
				fallbacks := res.Output.Count(render.NodeFallback)
				if strict && fallbacks > 0 {
					return fmt.Errorf("%d tag(s) rendered as fallbacks", fallbacks)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Source format: markdown or html (default: from file extension)")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the output tree instead of HTML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print HTML, instances and diagnostics as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when any tag falls back")
	return cmd
}

type renderJSON struct {
	HTML          string         `json:"html"`
	Instances     []instanceJSON `json:"instances"`
	Fallbacks     []fallbackJSON `json:"fallbacks"`
	Warnings      []string       `json:"warnings"`
	FetchFailures []string       `json:"fetch_failures"`
}

type instanceJSON struct {
	Tag    string `json:"tag"`
	Anchor string `json:"anchor"`
}

type fallbackJSON struct {
	Tag    string `json:"tag"`
	Anchor string `json:"anchor"`
	Reason string `json:"reason"`
}

func (a *app) printResult(res *render.Result, tree, asJSON bool) error {
	if tree {
		if err := res.Output.WriteTree(a.stdout); err != nil {
			return err
		}
	} else {
		out, err := res.HTML()
		if err != nil {
			return err
		}
		if asJSON {
			return a.printResultJSON(res, out)
		}
		io.WriteString(a.stdout, out)
		if !strings.HasSuffix(out, "\n") {
			io.WriteString(a.stdout, "\n")
		}
	}

	res.Output.Walk(func(n *render.Node) {
		if n.Kind == render.NodeFallback {
			fmt.Fprintf(a.stderr, "fallback: <%s> at %s: %s\n", n.Tag, n.Anchor, n.Reason)
		}
	})
	for _, w := range res.Warnings {
		fmt.Fprintf(a.stderr, "warning: %v\n", w)
	}
	for _, f := range res.FetchFailures {
		fmt.Fprintf(a.stderr, "fetch failed: %v\n", f)
	}
	return nil
}

func (a *app) printResultJSON(res *render.Result, html string) error {
	out := renderJSON{
		HTML:          html,
		Instances:     []instanceJSON{},
		Fallbacks:     []fallbackJSON{},
		Warnings:      []string{},
		FetchFailures: []string{},
	}
	res.Output.Walk(func(n *render.Node) {
		switch n.Kind {
		case render.NodeAnchor:
			out.Instances = append(out.Instances, instanceJSON{Tag: n.Tag, Anchor: n.Anchor})
		case render.NodeFallback:
			out.Fallbacks = append(out.Fallbacks, fallbackJSON{Tag: n.Tag, Anchor: n.Anchor, Reason: n.Reason})
		}
	})
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	for _, f := range res.FetchFailures {
		out.FetchFailures = append(out.FetchFailures, f.Error())
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

// scanEntry is one tag occurrence as reported by `cmarkup scan`.
type scanEntry struct {
	Tag    string         `json:"tag"`
	Path   string         `json:"path"`
	Line   int            `json:"line"`
	Column int            `json:"column"`
	Closed bool           `json:"closed"`
	Attrs  map[string]any `json:"attrs,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// scanDocument lists every custom tag in text with its decoded attributes
// or the reason it would fall back. Nothing is fetched or mounted.
func scanDocument(reg *tags.Registry, lookup scanner.Lookup, text string) []scanEntry {
	var entries []scanEntry
	scanner.Walk(scanner.ScanAll(text, lookup), func(seg scanner.Segment) bool {
		occ, ok := seg.(*scanner.TagOccurrence)
		if !ok {
			return true
		}
		var d decode.Occurrence
		if desc, known := reg.Resolve(occ.Name); known {
			d = decode.Decode(occ, desc)
		} else {
			d = decode.Unknown(occ)
		}
		e := scanEntry{
			Tag:    occ.Name,
			Path:   occ.Position.ID(),
			Line:   occ.Position.Line,
			Column: occ.Position.Column,
			Closed: occ.Closed || occ.SelfClosing,
		}
		if d.OK() {
			e.Attrs = d.Attrs
		} else {
			e.Reason = d.Rejected.Reason
			e.Error = d.Rejected.Err.Error()
		}
		entries = append(entries, e)
		return true
	})
	return entries
}

func (a *app) scanCmd() *cobra.Command {
	var (
		format string
		asJSON bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "List the custom tags in a document without rendering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sourceFormat(args[0], format)
			if err != nil {
				return err
			}
			src, err := a.readSource(args[0])
			if err != nil {
				return err
			}
			reg := tags.Default()
			prepared, err := content.NewConverter(reg).Prepare(src, f)
			if err != nil {
				return err
			}

			var lookup scanner.Lookup = reg
			if all {
				// Any custom element name, so misspelled tags are reported.
				lookup = scanner.LookupFunc(func(name string) bool { return strings.Contains(name, "-") })
			}
			entries := scanDocument(reg, lookup, prepared)
			if asJSON {
				if entries == nil {
					entries = []scanEntry{}
				}
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s\n", data)
				return nil
			}
			for _, e := range entries {
				status := "ok"
				if e.Reason != "" {
					status = "fallback " + e.Reason
				}
				fmt.Fprintf(a.stdout, "%d:%d\t%s\t<%s>\t%s\n", e.Line, e.Column, e.Path, e.Tag, status)
			}
			fmt.Fprintf(a.stdout, "%d tag(s)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Source format: markdown or html (default: from file extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print occurrences as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Also report unregistered custom elements")
	return cmd
}

func (a *app) tagsCmd() *cobra.Command {
	var (
		asJSON bool
		asHTML bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "tags [TAG]",
		Short: "Describe the registered custom tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := tags.Default()
			if asHTML {
				topics := help.All(reg)
				if len(args) == 1 {
					t, err := help.Describe(reg, args[0])
					if err != nil {
						return err
					}
					topics = []*help.Topic{t}
				}
				return help.WriteHTML(a.stdout, topics)
			}

			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}
			t, err := help.Describe(reg, topic)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := help.FormatJSON(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s\n", data)
				return nil
			}
			io.WriteString(a.stdout, help.FormatText(t, width))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print an HTML documentation fragment")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap text output at this width")
	return cmd
}

func (a *app) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Render markup interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, nil, func(_ *config.Config, engine *server.Engine, _ zerolog.Logger) error {
				repl.Start(cmd.Context(), engine.Orchestrator, engine.Registry, a.stdout, Version)
				return nil
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets hidden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := a.loadConfig(nil)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(a.stdout, "# no config file found, using defaults")
			} else {
				fmt.Fprintf(a.stdout, "# %s\n", path)
			}
			for _, w := range config.Warnings(cfg) {
				fmt.Fprintf(a.stdout, "# warning: %s\n", w)
			}
			data, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import DATASET",
		Short: "Import a JSON dataset into the configured catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(nil)
			if err != nil {
				return err
			}
			if cfg.UsesRemote() {
				return errors.New("remote.base_url is set: tag data comes from the remote API, there is no catalog to import into")
			}
			if cfg.Catalog.Driver == "sqlite" && strings.Contains(cfg.Catalog.DSN.Value(), ":memory:") {
				return errors.New("catalog.dsn is an in-memory database: an import would be lost on exit")
			}

			ctx := cmd.Context()
			store, err := catalog.Open(ctx, cfg.Catalog.Driver, cfg.Catalog.DSN.Value())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if err := server.ImportDataset(ctx, store, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "imported %s into %s catalog %s\n", args[0], cfg.Catalog.Driver, cfg.Catalog.DSN)
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "cmarkup version %s\n", Version)
			fmt.Fprintf(a.stdout, "  commit: %s\n", Commit)
		},
	}
}
