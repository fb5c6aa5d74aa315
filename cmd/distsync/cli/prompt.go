package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	startPrompt = "Please input start date in YYYY-MM-DD format: "
	endPrompt   = "Please input end date in YYYY-MM-DD format: "
)

// StdinPrompter asks the operator for a sales period on a terminal.
type StdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdinPrompter wraps in and out. Reuse one prompter per command so
// buffered input is not lost between attempts.
func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	return &StdinPrompter{in: bufio.NewReader(in), out: out}
}

// PromptDates reads a raw start and end date.
func (p *StdinPrompter) PromptDates(ctx context.Context) (string, string, error) {
	start, err := p.ask(ctx, startPrompt)
	if err != nil {
		return "", "", err
	}
	end, err := p.ask(ctx, endPrompt)
	if err != nil {
		return "", "", err
	}
	return start, end, nil
}

func (p *StdinPrompter) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", io.ErrUnexpectedEOF
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}
