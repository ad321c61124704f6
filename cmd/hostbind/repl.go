package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/feather-lang/hostbind"
	"github.com/feather-lang/hostbind/internal/script"
)

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hostbind_history")
}

func runREPL(interp *hostbind.Interp) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completer(interp))

	hist := historyPath()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	var input string
	for {
		prompt := "% "
		if input != "" {
			prompt = "> "
		}
		text, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			input = ""
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			break
		}
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}

		if input != "" {
			input += "\n" + text
		} else {
			input = text
		}

		// wait for the rest of an open block or string
		if _, err := script.Parse(input, "(repl)", "main"); err != nil {
			var se *script.SyntaxError
			if errors.As(err, &se) && se.Incomplete {
				continue
			}
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			line.AppendHistory(input)
			input = ""
			continue
		}

		line.AppendHistory(input)
		if err := interp.Engine().Eval(input, "main", "(repl)"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s", withNewline(err.Error()))
		}
		input = ""
	}

	if hist != "" {
		if f, err := os.Create(hist); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

// completer completes the last word of the line against the sub names of
// every package.
func completer(interp *hostbind.Interp) liner.Completer {
	return func(text string) []string {
		start := strings.LastIndexAny(text, " \t(,;{") + 1
		prefix, word := text[:start], text[start:]
		if word == "" {
			return nil
		}

		e := interp.Engine()
		var out []string
		for _, pkg := range e.StashNames() {
			qual := pkg + "::"
			if pkg == "main" {
				qual = ""
			}
			for _, name := range e.Stash(pkg, false).SubNames() {
				if full := qual + name; strings.HasPrefix(full, word) {
					out = append(out, prefix+full)
				}
			}
		}
		sort.Strings(out)
		return out
	}
}
