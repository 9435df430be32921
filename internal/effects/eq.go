package effects

import "github.com/satindergrewal/blancdj/internal/graph"

// EQFrequencies are the graphic EQ band centers in Hz.
var EQFrequencies = [8]float64{60, 150, 400, 1000, 2400, 6000, 12000, 15000}

const (
	eqPeakQ = 1.4
	eqMaxDB = 12.0
	eqMinDB = -40.0
)

// EQ is an 8-band graphic equalizer: a low shelf, six peaking bands and a
// high shelf in series.
type EQ struct {
	ctx   *graph.Context
	in    *graph.GainNode
	out   *graph.GainNode
	bands [8]*graph.BiquadNode
}

// NewEQ builds a flat EQ.
func NewEQ(ctx *graph.Context) *EQ {
	e := &EQ{ctx: ctx, in: ctx.NewGain(), out: ctx.NewGain()}
	var prev graph.Node = e.in
	for i, f := range EQFrequencies {
		t := graph.Peaking
		switch i {
		case 0:
			t = graph.Lowshelf
		case len(EQFrequencies) - 1:
			t = graph.Highshelf
		}
		b := ctx.NewBiquad(t, f)
		if t == graph.Peaking {
			b.Q.SetValue(eqPeakQ)
		}
		prev.Connect(b)
		prev = b
		e.bands[i] = b
	}
	prev.Connect(e.out)
	return e
}

func (e *EQ) Input() graph.Node  { return e.in }
func (e *EQ) Output() graph.Node { return e.out }

// SetGain sets band's gain in dB. Out of range bands are ignored.
func (e *EQ) SetGain(band int, db float64) {
	if band < 0 || band >= len(e.bands) {
		return
	}
	e.bands[band].Gain.SetValue(clamp(db, eqMinDB, eqMaxDB))
}

// Gain returns band's current gain in dB.
func (e *EQ) Gain(band int) float64 {
	if band < 0 || band >= len(e.bands) {
		return 0
	}
	return e.bands[band].Gain.Value()
}

// Band exposes a band filter, mainly for response inspection.
func (e *EQ) Band(i int) *graph.BiquadNode { return e.bands[i] }

// Apply sets all bands from a preset.
func (e *EQ) Apply(p Preset) {
	for i, v := range p.Values {
		e.SetGain(i, PresetValueToDB(v))
	}
}
