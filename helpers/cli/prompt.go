package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

func IsInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// Ask shows question and returns one answer line without surrounding space.
// Empty answer or closed input gives def.
// Terminal gets line editor, otherwise one line is read from stdin.
func Ask(question string, def string, suggest ...string) string {
	var line string
	if IsInteractive() {
		line = prompt.Input(question, completer(suggest))
	} else {
		os.Stdout.WriteString(question)
		line = ReadLine(os.Stdin)
	}
	if line = strings.TrimSpace(line); line == "" {
		return def
	}
	return line
}

// ReadLine returns first line of r, without line terminator.
func ReadLine(r io.Reader) string {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

func completer(suggest []string) prompt.Completer {
	suggests := make([]prompt.Suggest, 0, len(suggest))
	for _, s := range suggest {
		suggests = append(suggests, prompt.Suggest{Text: s})
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}
