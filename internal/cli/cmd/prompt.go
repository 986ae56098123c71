package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the terminal, or line by line from a pipe
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	if out == nil {
		out = os.Stdout
	}
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *prompter) String(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password reads without echo when attached to a terminal
func (p *prompter) Password(label string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	return p.String(label)
}
