package effects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/satindergrewal/blancdj/internal/graph"
)

// ErrUnknownBand is returned by ParseBand.
var ErrUnknownBand = errors.New("unknown isolator band")

// Band names an isolator band.
type Band int

const (
	Low Band = iota
	Mid
	High
)

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case Mid:
		return "mid"
	case High:
		return "high"
	}
	return fmt.Sprintf("band(%d)", int(b))
}

// ParseBand parses "low", "mid" or "high".
func ParseBand(s string) (Band, error) {
	switch strings.ToLower(s) {
	case "low":
		return Low, nil
	case "mid":
		return Mid, nil
	case "high":
		return High, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBand, s)
}

const (
	// KillDB is the isolator floor; a killed band is treated as silent.
	KillDB = -40.0
	// BoostDB is the isolator ceiling at full knob.
	BoostDB = 6.0

	isolatorRamp = 0.05
)

// Isolator is a 3-band kill EQ: low shelf at 250 Hz, mid peak at 1 kHz and
// high shelf at 4 kHz.
type Isolator struct {
	ctx   *graph.Context
	in    *graph.GainNode
	out   *graph.GainNode
	bands [3]*graph.BiquadNode
}

// NewIsolator builds an isolator with every band at 0 dB.
func NewIsolator(ctx *graph.Context) *Isolator {
	iso := &Isolator{ctx: ctx, in: ctx.NewGain(), out: ctx.NewGain()}
	iso.bands[Low] = ctx.NewBiquad(graph.Lowshelf, 250)
	iso.bands[Mid] = ctx.NewBiquad(graph.Peaking, 1000)
	iso.bands[High] = ctx.NewBiquad(graph.Highshelf, 4000)
	iso.bands[Mid].Q.SetValue(1.0)

	iso.in.Connect(iso.bands[Low])
	iso.bands[Low].Connect(iso.bands[Mid])
	iso.bands[Mid].Connect(iso.bands[High])
	iso.bands[High].Connect(iso.out)
	return iso
}

func (iso *Isolator) Input() graph.Node  { return iso.in }
func (iso *Isolator) Output() graph.Node { return iso.out }

// SetGain maps knob value v in [0,1] to dB and ramps band there over 50ms.
func (iso *Isolator) SetGain(band Band, v float64) {
	if band < Low || band > High {
		return
	}
	db := KnobToDB(v)
	p := iso.bands[band].Gain
	now := iso.ctx.CurrentTime()
	p.CancelAndHold()
	p.LinearRampToValueAtTime(db, now+isolatorRamp)
}

// Gain returns band's current gain in dB.
func (iso *Isolator) Gain(band Band) float64 {
	return iso.bands[band].Gain.Value()
}

// Filter exposes a band filter for response inspection.
func (iso *Isolator) Filter(band Band) *graph.BiquadNode { return iso.bands[band] }

// KnobToDB maps a normalized knob to isolator gain: v ≤ 0.01 kills at
// -40 dB, the lower half rises linearly to 0 dB at 0.5, the upper half rises
// to +6 dB at 1.
func KnobToDB(v float64) float64 {
	switch {
	case v <= 0.01:
		return KillDB
	case v == 0.5:
		return 0
	case v >= 1:
		return BoostDB
	case v < 0.5:
		return KillDB + v*2*-KillDB
	default:
		return (v - 0.5) * 2 * BoostDB
	}
}
