package panel

import (
	"context"
	"io"

	"github.com/manifoldco/promptui"
	"github.com/pkg/errors"
)

const defaultAltitudeText = "10"

// Prompter asks the operator questions. Terminal is the promptui one.
type Prompter interface {
	Select(label string, items []string) (int, error)
	Ask(label, def string) (string, error)
}

type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (t Terminal) Select(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label:  label,
		Items:  items,
		Size:   len(items),
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
	}
	idx, _, err := prompt.Run()
	return idx, err
}

func (t Terminal) Ask(label, def string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: def,
		Stdin:   t.Stdin,
		Stdout:  t.Stdout,
	}
	return prompt.Run()
}

var menu = []string{ActionHealth, ActionArm, ActionTakeoff, ActionLand, keyLanguage, keyQuit}

// Interactive runs the action menu until the operator quits, interrupts
// the prompt or ctx is cancelled.
func (p *Panel) Interactive(ctx context.Context, prompter Prompter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items := make([]string, len(menu))
		for i, key := range menu {
			items[i] = Label(p.lang, key)
		}

		idx, err := prompter.Select(Label(p.lang, keyMenu), items)
		if err != nil {
			return promptDone(err)
		}

		switch menu[idx] {
		case ActionHealth:
			p.CheckHealth(ctx)
		case ActionArm:
			p.Arm(ctx)
		case ActionTakeoff:
			alt, err := prompter.Ask(Label(p.lang, keyAltitude), defaultAltitudeText)
			if err != nil {
				return promptDone(err)
			}
			p.Takeoff(ctx, alt)
		case ActionLand:
			p.Land(ctx)
		case keyLanguage:
			langs := Languages()
			li, err := prompter.Select(Label(p.lang, keyLanguage), langs)
			if err != nil {
				return promptDone(err)
			}
			p.SetLanguage(langs[li])
		case keyQuit:
			return nil
		}
	}
}

func promptDone(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.Wrap(err, "prompt failed")
}
