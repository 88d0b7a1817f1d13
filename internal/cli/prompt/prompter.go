package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for values. Implementations block until a full line
// is read and return ErrAborted on EOF or interrupt.
type Prompter interface {
	Input(label, defaultValue string) (string, error)
	Password(label string) (string, error)
	Confirm(label string, defaultYes bool) (bool, error)
}

// New returns a Terminal prompter when in is a terminal, and a Reader
// otherwise.
func New(in io.Reader, out io.Writer) Prompter {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return Terminal{}
	}
	return NewReader(in, out)
}

// Terminal prompts through promptui on the process terminal.
type Terminal struct{}

func (Terminal) Input(label, defaultValue string) (string, error) {
	return Input(label, defaultValue)
}

func (Terminal) Password(label string) (string, error) {
	return Password(label)
}

func (Terminal) Confirm(label string, defaultYes bool) (bool, error) {
	return Confirm(label, defaultYes)
}

// Reader prompts on a plain line stream, as used for piped input and scripts.
// Passwords are read as ordinary lines.
type Reader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewReader wraps in. An in that already is a *bufio.Reader is shared, so a
// script driver and the prompter can consume the same stream.
func NewReader(in io.Reader, out io.Writer) *Reader {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}
	return &Reader{in: br, out: out}
}

func (r *Reader) Input(label, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(r.out, "%s: [%s] ", label, defaultValue)
	} else {
		fmt.Fprintf(r.out, "%s: ", label)
	}
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

func (r *Reader) Password(label string) (string, error) {
	fmt.Fprintf(r.out, "%s: ", label)
	return r.readLine()
}

func (r *Reader) Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}
	fmt.Fprintf(r.out, "%s [%s]: ", label, defaultStr)
	line, err := r.readLine()
	if err != nil {
		return false, err
	}
	return parseYes(line, defaultYes), nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			fmt.Fprintln(r.out)
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
