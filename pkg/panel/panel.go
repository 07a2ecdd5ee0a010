// Package panel is the operator-facing side of the control panel: it wires
// the health, arm, takeoff and land actions to the backend and shows every
// result as "<label>: <json>".
package panel

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dronectl/pkg/client"
)

// Backend is the subset of the client the panel drives.
type Backend interface {
	Health(ctx context.Context) client.Result
	Arm(ctx context.Context) client.Result
	Takeoff(ctx context.Context, alt *float64) client.Result
	Land(ctx context.Context) client.Result
}

type Panel struct {
	backend Backend
	display Display
	lang    string
	log     *zap.SugaredLogger
}

func New(backend Backend, display Display, lang string, log *zap.SugaredLogger) *Panel {
	p := &Panel{backend: backend, display: display, log: log}
	p.SetLanguage(lang)
	return p
}

// SetLanguage switches the label table. Unknown languages fall back to
// English.
func (p *Panel) SetLanguage(lang string) {
	if _, ok := labels[lang]; !ok {
		if lang != "" {
			p.log.Warnw("unknown language, using default", "language", lang, "default", DefaultLanguage)
		}
		lang = DefaultLanguage
	}
	p.lang = lang
}

func (p *Panel) Language() string {
	return p.lang
}

func (p *Panel) CheckHealth(ctx context.Context) client.Result {
	return p.show(ActionHealth, p.backend.Health(ctx))
}

func (p *Panel) Arm(ctx context.Context) client.Result {
	return p.show(ActionArm, p.backend.Arm(ctx))
}

// Takeoff sends the altitude typed by the operator. Text that is not a
// number is sent as no altitude at all so the backend default applies.
func (p *Panel) Takeoff(ctx context.Context, altText string) client.Result {
	return p.show(ActionTakeoff, p.backend.Takeoff(ctx, ParseAltitude(altText)))
}

func (p *Panel) Land(ctx context.Context) client.Result {
	return p.show(ActionLand, p.backend.Land(ctx))
}

// Show displays the result of any backend call under the label for action.
func (p *Panel) Show(action string, result client.Result) client.Result {
	return p.show(action, result)
}

func (p *Panel) show(action string, result client.Result) client.Result {
	if err := p.display.Show(Format(Label(p.lang, action), result)); err != nil {
		p.log.Warnw("could not display result", "action", action, "error", err)
	}
	return result
}

func ParseAltitude(text string) *float64 {
	alt, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(alt) || math.IsInf(alt, 0) {
		return nil
	}
	return &alt
}
