package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"vaultx/internal/domain"
)

// terminal reads answers from the user and writes progress. Prompts go to out
// so that piped stdin still sees them.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

// readLine returns the next line without its terminator. io.EOF is returned
// only when nothing was read.
func (t *terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// askSuggestion asks whether to use the corrected prompt. Anything other than
// an explicit yes keeps the original, as does a closed stdin.
func (t *terminal) askSuggestion(s *domain.SpellingSuggestion) domain.Decision {
	if s == nil {
		return domain.DecisionReject
	}
	fmt.Fprintf(t.out, "Did you mean: %q? [y/N] ", s.Corrected)
	answer, err := t.readLine()
	if err != nil {
		fmt.Fprintln(t.out)
		return domain.DecisionReject
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return domain.DecisionAccept
	default:
		return domain.DecisionReject
	}
}
