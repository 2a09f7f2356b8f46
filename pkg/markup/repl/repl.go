// Package repl is an interactive prompt that renders custom markup as it is
// typed. Each complete input replaces the previous pass of the REPL's host,
// so the units of the last input stay mounted until the next one.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/cmarkup/pkg/markup/help"
	"github.com/sambeau/cmarkup/pkg/markup/render"
	"github.com/sambeau/cmarkup/pkg/markup/scanner"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

const (
	Prompt             = "md> "
	PromptTree         = "tr> "
	ContinuationPrompt = "..> "
)

const logo = `
█▀▀ █▀▄▀█ ▄▀█ █▀█ █▄▀ █░█ █▀█
█▄▄ █░▀░█ █▀█ █▀▄ █░█ █▄█ █▀▀ `

// HostID is the host every REPL input renders into.
const HostID = "repl"

// Session holds the state of one REPL independent of the terminal.
type Session struct {
	orch *render.Orchestrator
	reg  *tags.Registry
	out  io.Writer
	host render.Host
	tree bool // print the output tree instead of HTML
}

// NewSession creates a session rendering into orch.
func NewSession(orch *render.Orchestrator, reg *tags.Registry, out io.Writer) *Session {
	return &Session{orch: orch, reg: reg, out: out, host: render.Host{ID: HostID}}
}

// Prompt returns the prompt for the current output mode.
func (s *Session) Prompt() string {
	if s.tree {
		return PromptTree
	}
	return Prompt
}

// Eval renders input and prints the result.
func (s *Session) Eval(ctx context.Context, input string) {
	res, err := s.orch.Render(ctx, input, s.host)
	if err != nil {
		fmt.Fprintf(s.out, "Render error: %v\n", err)
		return
	}

	if s.tree {
		res.Output.WriteTree(s.out)
	} else {
		html, err := res.HTML()
		if err != nil {
			fmt.Fprintf(s.out, "Render error: %v\n", err)
			return
		}
		io.WriteString(s.out, html)
		if !strings.HasSuffix(html, "\n") {
			io.WriteString(s.out, "\n")
		}
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(s.out, "warning: %v\n", w)
	}
	for _, f := range res.FetchFailures {
		fmt.Fprintf(s.out, "fetch failed: %v\n", f)
	}
}

// Command handles a meta-command starting with ':'. It reports false for
// input that is not a command.
func (s *Session) Command(cmd string) bool {
	if !strings.HasPrefix(cmd, ":") {
		return false
	}
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":help", ":h", ":?":
		if arg != "" {
			topic, err := help.Describe(s.reg, arg)
			if err != nil {
				fmt.Fprintln(s.out, err)
				return true
			}
			io.WriteString(s.out, help.FormatText(topic, 80))
			return true
		}
		fmt.Fprintln(s.out, "REPL Commands:")
		fmt.Fprintln(s.out, "  :help, :h, :?    Show this help")
		fmt.Fprintln(s.out, "  :help <tag>      Show the attributes of a tag")
		fmt.Fprintln(s.out, "  :tags            List the custom tags")
		fmt.Fprintln(s.out, "  :tree            Toggle output tree mode")
		fmt.Fprintln(s.out, "  :stats           Show live units and pass counts")
		fmt.Fprintln(s.out, "  :clear           Release the units of the last input")
		fmt.Fprintln(s.out, "  exit, quit       Exit the REPL")

	case ":tags":
		topic, _ := help.Describe(s.reg, "tags")
		io.WriteString(s.out, help.FormatText(topic, 80))

	case ":tree":
		s.tree = !s.tree
		if s.tree {
			fmt.Fprintln(s.out, "Tree output mode ON")
		} else {
			fmt.Fprintln(s.out, "Tree output mode OFF (HTML output)")
		}

	case ":stats":
		st := s.orch.Stats()
		fmt.Fprintf(s.out, "hosts: %d  passes: %d  superseded: %d\n", st.Hosts, st.Passes, st.Superseded)
		fmt.Fprintf(s.out, "units: %d live, %d mounted, %d destroyed, %d failed\n",
			st.Units.Live, st.Units.Mounted, st.Units.Destroyed, st.Units.Failed)

	case ":clear":
		td := s.orch.Release(s.host.ID)
		fmt.Fprintf(s.out, "Released %d units\n", td.Destroyed)
		for _, f := range td.Failures {
			fmt.Fprintf(s.out, "teardown failed: %v\n", f)
		}

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
	return true
}

// Close releases the session's host.
func (s *Session) Close() {
	s.orch.Release(s.host.ID)
}

// NeedsMoreInput reports whether input opens a registered tag it does not
// close.
func (s *Session) NeedsMoreInput(input string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}
	open := false
	scanner.Walk(scanner.ScanAll(input, s.reg), func(seg scanner.Segment) bool {
		if occ, ok := seg.(*scanner.TagOccurrence); ok && !occ.Closed {
			open = true
		}
		return !open
	})
	return open
}

// Complete returns completions for the word being typed: tag names after
// '<' or '</', REPL commands after ':'.
func (s *Session) Complete(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if c := line[len(line)-1]; c == ' ' || c == '\t' {
		return nil
	}

	if strings.HasPrefix(line, ":") && !strings.Contains(line, " ") {
		var matches []string
		for _, c := range []string{":help", ":tags", ":tree", ":stats", ":clear"} {
			if strings.HasPrefix(c, line) {
				matches = append(matches, c)
			}
		}
		return matches
	}

	at := strings.LastIndexByte(line, '<')
	if at < 0 {
		return nil
	}
	word := line[at+1:]
	prefix := line[:at+1]
	if strings.HasPrefix(word, "/") {
		word = word[1:]
		prefix += "/"
	}
	if strings.ContainsAny(word, " \t>") {
		return nil
	}

	var matches []string
	for _, name := range s.reg.Names() {
		if strings.HasPrefix(name, word) {
			matches = append(matches, prefix+name)
		}
	}
	return matches
}

// Start runs the REPL on the terminal with line editing, history and tab
// completion until the user exits.
func Start(ctx context.Context, orch *render.Orchestrator, reg *tags.Registry, out io.Writer, version string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s := NewSession(orch, reg, out)
	defer s.Close()
	line.SetCompleter(s.Complete)

	historyFile := filepath.Join(os.TempDir(), ".cmarkup_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "%s", logo)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "Use Tab to complete tag names, ↑↓ for history")
	fmt.Fprintln(out, "Type ':help' for REPL commands")
	fmt.Fprintln(out, "")

	var buf strings.Builder
	for {
		if ctx.Err() != nil {
			return
		}
		prompt := s.Prompt()
		if buf.Len() > 0 {
			prompt = ContinuationPrompt
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				if buf.Len() > 0 {
					fmt.Fprintln(out, "^C (cleared)")
				} else {
					fmt.Fprintln(out, "^C")
				}
				buf.Reset()
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		trimmed := strings.TrimSpace(input)
		if buf.Len() == 0 {
			if trimmed == "exit" || trimmed == "quit" {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
			if s.Command(trimmed) {
				continue
			}
			if trimmed == "" {
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(input)

		full := buf.String()
		if s.NeedsMoreInput(full) {
			continue
		}
		line.AppendHistory(full)
		s.Eval(ctx, full)
		buf.Reset()
	}
}
