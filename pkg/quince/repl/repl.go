// Package repl is an interactive shell for the Quince expression language,
// with line editing, history and tab completion.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/scope"
)

const PROMPT = ">> "

const QUINCE_LOGO = `
█▀█ █░█ █ █▄░█ █▀▀ █▀▀
▀▀█ █▄█ █ █░▀█ █▄▄ ██▄ `

// keywords and scope prefixes for tab completion; builtins are appended at
// startup.
var completionWords = []string{
	"and", "or", "not",
	"true", "false", "null",
	"session.", "application.", "request.",
}

// Start runs the REPL until exit or Ctrl+D. Assignments of the form
// `name = expr` write into the scope chain; anything else evaluates and
// prints.
func Start(out io.Writer, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	words := append([]string{}, completionWords...)
	words = append(words, expr.Builtins()...)
	sort.Strings(words)
	line.SetCompleter(func(line string) []string {
		return filterCompletions(words, line)
	})

	historyFile := filepath.Join(os.TempDir(), ".quince_history")
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

	fmt.Fprintf(out, "%s", QUINCE_LOGO)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "Use Tab for completion, ↑↓ for history")
	fmt.Fprintln(out, "")

	sc := scope.NewContext(scope.NewStore(), scope.NewStore())
	cache := expr.NewCache(256)

	for {
		input, err := line.Prompt(PROMPT)
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(out, "^C")
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		if trimmed == "exit" || trimmed == "quit" {
			fmt.Fprintln(out, "Goodbye!")
			return
		}
		line.AppendHistory(input)

		if name, rhs, ok := splitAssignment(trimmed); ok {
			v, err := cache.Evaluate(rhs, sc)
			if err != nil {
				printError(out, err)
				continue
			}
			sc.Assign(name, v)
			fmt.Fprintln(out, v.Inspect())
			continue
		}

		v, err := cache.Evaluate(trimmed, sc)
		if err != nil {
			printError(out, err)
			continue
		}
		fmt.Fprintln(out, v.Inspect())
	}
}

// splitAssignment recognizes `name = expr` where name is a plain or
// scope-prefixed identifier and the = is not part of ==, <=, >= or !=.
func splitAssignment(input string) (name, rhs string, ok bool) {
	i := strings.IndexByte(input, '=')
	if i <= 0 || i == len(input)-1 {
		return "", "", false
	}
	if input[i+1] == '=' || input[i-1] == '<' || input[i-1] == '>' || input[i-1] == '!' {
		return "", "", false
	}
	name = strings.TrimSpace(input[:i])
	if !isAssignable(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(input[i+1:]), true
}

func isAssignable(name string) bool {
	if name == "" {
		return false
	}
	dots := 0
	for i, r := range name {
		switch {
		case r == '.':
			dots++
			if dots > 1 || i == 0 || i == len(name)-1 {
				return false
			}
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func filterCompletions(words []string, line string) []string {
	// Complete only the last space-separated token.
	start := strings.LastIndexByte(line, ' ') + 1
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	var out []string
	for _, w := range words {
		if strings.HasPrefix(w, prefix) {
			out = append(out, line[:start]+w)
		}
	}
	return out
}

func printError(out io.Writer, err error) {
	qe := errors.AsQuince(err)
	fmt.Fprintln(out, qe.PrettyString())
}
