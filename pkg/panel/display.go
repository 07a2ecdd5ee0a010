package panel

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	ModeStatus = "status"
	ModeDialog = "dialog"
)

// Display shows one formatted message to the operator.
type Display interface {
	Show(message string) error
}

// StatusLine keeps a single line on the terminal and overwrites it with
// every message.
type StatusLine struct {
	w io.Writer
}

func NewStatusLine(w io.Writer) *StatusLine {
	return &StatusLine{w: w}
}

func (s *StatusLine) Show(message string) error {
	_, err := fmt.Fprintf(s.w, "\r\x1b[2K%s", message)
	return err
}

// Dialog prints every message as its own framed block.
type Dialog struct {
	w io.Writer
}

func NewDialog(w io.Writer) *Dialog {
	return &Dialog{w: w}
}

func (d *Dialog) Show(message string) error {
	width := utf8.RuneCountInString(message)
	border := "+" + strings.Repeat("-", width+2) + "+\n"

	_, err := fmt.Fprintf(d.w, "%s| %s |\n%s", border, message, border)
	return err
}

func NewDisplay(mode string, w io.Writer) (Display, error) {
	switch mode {
	case ModeStatus, "":
		return NewStatusLine(w), nil
	case ModeDialog:
		return NewDialog(w), nil
	default:
		return nil, errors.Errorf("unknown display mode %q", mode)
	}
}
