package effects

import (
	"errors"
	"math"
	"testing"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

const testRate = 48000

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// feed plays a constant-level buffer into u and routes u to the destination.
func feed(ctx *graph.Context, u Unit, level float32, seconds float64) *graph.BufferSourceNode {
	b := audio.NewBuffer(testRate, int(seconds*testRate))
	for ch := range b.Data {
		for i := range b.Data[ch] {
			b.Data[ch][i] = level
		}
	}
	src := ctx.NewBufferSource(b)
	src.Connect(u.Input())
	u.Output().Connect(ctx.Destination())
	src.Start(0)
	return src
}

// --- Isolator ---

func TestKnobToDB(t *testing.T) {
	tests := []struct {
		v    float64
		want float64
	}{
		{0, -40},
		{0.005, -40},
		{0.01, -40},
		{0.25, -20},
		{0.5, 0},
		{0.75, 3},
		{1, 6},
		{1.5, 6},
	}
	for _, tt := range tests {
		if got := KnobToDB(tt.v); !near(got, tt.want, 1e-9) {
			t.Errorf("KnobToDB(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestKnobToDBContinuousAtCenter(t *testing.T) {
	below := KnobToDB(0.5 - 1e-9)
	above := KnobToDB(0.5 + 1e-9)
	if !near(below, 0, 1e-6) || !near(above, 0, 1e-6) {
		t.Errorf("KnobToDB around 0.5 = %v / %v, want ~0", below, above)
	}
}

func TestKnobToDBMonotonic(t *testing.T) {
	prev := KnobToDB(0)
	for i := 1; i <= 100; i++ {
		v := KnobToDB(float64(i) / 100)
		if v < prev {
			t.Fatalf("KnobToDB decreasing at %v: %v < %v", float64(i)/100, v, prev)
		}
		prev = v
	}
}

func TestIsolatorRampsToKill(t *testing.T) {
	ctx := graph.NewContext(testRate)
	iso := NewIsolator(ctx)
	feed(ctx, iso, 0.1, 1)

	iso.SetGain(Low, 0)
	ctx.Advance(0.02)
	mid := iso.Gain(Low)
	if mid <= -40 || mid >= 0 {
		t.Errorf("Gain(Low) during ramp = %v, want between -40 and 0", mid)
	}
	ctx.Advance(0.05)
	if got := iso.Gain(Low); got != -40 {
		t.Errorf("Gain(Low) after ramp = %v, want -40", got)
	}
	if got := iso.Filter(Low).Response(20); !near(got, -40, 2) {
		t.Errorf("low band response at 20Hz = %v dB, want ~-40", got)
	}
	if got := iso.Gain(Mid); got != 0 {
		t.Errorf("Gain(Mid) = %v, want untouched 0", got)
	}
}

func TestIsolatorFullBoost(t *testing.T) {
	ctx := graph.NewContext(testRate)
	iso := NewIsolator(ctx)
	feed(ctx, iso, 0.1, 1)
	iso.SetGain(High, 1)
	ctx.Advance(0.1)
	if got := iso.Gain(High); got != 6 {
		t.Errorf("Gain(High) = %v, want 6", got)
	}
}

func TestParseBand(t *testing.T) {
	for _, b := range []Band{Low, Mid, High} {
		got, err := ParseBand(b.String())
		if err != nil || got != b {
			t.Errorf("ParseBand(%q) = %v, %v", b.String(), got, err)
		}
	}
	if _, err := ParseBand("sub"); !errors.Is(err, ErrUnknownBand) {
		t.Errorf("ParseBand(sub) error = %v, want ErrUnknownBand", err)
	}
}

// --- EQ ---

func TestEQDefaultsFlat(t *testing.T) {
	ctx := graph.NewContext(testRate)
	eq := NewEQ(ctx)
	for i := range EQFrequencies {
		if got := eq.Gain(i); got != 0 {
			t.Errorf("band %d gain = %v, want 0", i, got)
		}
	}
	if eq.Band(0).Type != graph.Lowshelf {
		t.Errorf("band 0 type = %v, want lowshelf", eq.Band(0).Type)
	}
	if eq.Band(7).Type != graph.Highshelf {
		t.Errorf("band 7 type = %v, want highshelf", eq.Band(7).Type)
	}
	for i := 1; i < 7; i++ {
		if eq.Band(i).Type != graph.Peaking {
			t.Errorf("band %d type = %v, want peaking", i, eq.Band(i).Type)
		}
		if q := eq.Band(i).Q.Value(); q != 1.4 {
			t.Errorf("band %d Q = %v, want 1.4", i, q)
		}
	}
}

func TestEQSetGain(t *testing.T) {
	ctx := graph.NewContext(testRate)
	eq := NewEQ(ctx)
	eq.SetGain(3, 6)
	eq.SetGain(-1, 6)
	eq.SetGain(8, 6)
	if got := eq.Gain(3); got != 6 {
		t.Errorf("Gain(3) = %v, want 6", got)
	}
	if got := eq.Band(3).Response(1000); !near(got, 6, 0.01) {
		t.Errorf("response at 1kHz = %v dB, want 6", got)
	}
}

func TestPresets(t *testing.T) {
	ps := Presets()
	if len(ps) != 8 {
		t.Fatalf("len(Presets()) = %d, want 8", len(ps))
	}
	if ps[0].Name != "Flat" {
		t.Errorf("first preset = %q, want Flat", ps[0].Name)
	}
	bass, err := LookupPreset("bass boost")
	if err != nil {
		t.Fatalf("LookupPreset(bass boost) error = %v", err)
	}
	if bass.Values[0] != 1.8 {
		t.Errorf("Bass Boost band 0 = %v, want 1.8", bass.Values[0])
	}
	if _, err := LookupPreset("nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("LookupPreset(nope) error = %v, want ErrUnknownPreset", err)
	}
}

func TestParsePresetsRejectsShortPreset(t *testing.T) {
	_, err := ParsePresets([]byte("presets:\n  - name: Bad\n    values: [1, 1]\n"))
	if err == nil {
		t.Error("ParsePresets should reject a preset with 2 values")
	}
}

func TestPresetValueToDB(t *testing.T) {
	tests := []struct{ v, want float64 }{
		{0, -26}, {0.5, -13}, {1, 0}, {1.5, 3}, {2, 6}, {3, 6}, {-1, -26},
	}
	for _, tt := range tests {
		if got := PresetValueToDB(tt.v); !near(got, tt.want, 1e-9) {
			t.Errorf("PresetValueToDB(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEQApplyPreset(t *testing.T) {
	ctx := graph.NewContext(testRate)
	eq := NewEQ(ctx)
	p, _ := LookupPreset("Techno")
	eq.Apply(p)
	for i, v := range p.Values {
		if got := eq.Gain(i); !near(got, PresetValueToDB(v), 1e-9) {
			t.Errorf("band %d = %v dB, want %v", i, got, PresetValueToDB(v))
		}
	}
}

// --- Delay ---

func TestDelayDefaults(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx)
	if got := d.Time(); got != 0.5 {
		t.Errorf("Time() = %v, want 0.5", got)
	}
	if got := d.Feedback(); got != 0.4 {
		t.Errorf("Feedback() = %v, want 0.4", got)
	}
	if wet, dry := d.Mix(); wet != 0 || dry != 1 {
		t.Errorf("Mix() = (%v, %v), want (0, 1)", wet, dry)
	}
}

func TestDelayMixDipsDry(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx)
	d.SetMix(1)
	if wet, dry := d.Mix(); wet != 1 || !near(dry, 0.8, 1e-12) {
		t.Errorf("Mix() at full wet = (%v, %v), want (1, 0.8)", wet, dry)
	}
	d.SetMix(2)
	if wet, _ := d.Mix(); wet != 1 {
		t.Errorf("wet clamps to 1, got %v", wet)
	}
}

func TestDelayFeedbackCapped(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx)
	feed(ctx, d, 0, 1)
	d.SetFeedback(5)
	ctx.Advance(2)
	if got := d.Feedback(); got > MaxFeedback+1e-9 || got < MaxFeedback-1e-3 {
		t.Errorf("Feedback() = %v, want ~%v", got, MaxFeedback)
	}
}

func TestDelayTimeGlides(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx)
	feed(ctx, d, 0, 2)
	d.SetTime(10)
	ctx.Advance(0.1)
	mid := d.Time()
	if mid <= 0.5 || mid >= MaxDelayTime {
		t.Errorf("Time() mid-glide = %v, want between 0.5 and 5", mid)
	}
	ctx.Advance(2)
	if got := d.Time(); !near(got, MaxDelayTime, 1e-3) {
		t.Errorf("Time() = %v, want ~5", got)
	}
	d.SetTime(0)
	ctx.Advance(0.5)
	if got := d.Time(); !near(got, MaxDelayTime, 1e-3) {
		t.Errorf("SetTime(0) should be ignored, Time() = %v", got)
	}
}

func TestDelayProducesEcho(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx)
	d.SetMix(1)

	b := audio.NewBuffer(testRate, testRate)
	b.Data[0][0], b.Data[1][0] = 1, 1
	src := ctx.NewBufferSource(b)
	src.Connect(d.Input())
	d.Output().Connect(ctx.Destination())
	src.Start(0)

	out := make([]float32, 2*testRate)
	ctx.Render(out)
	echo := int(DefaultDelay * testRate)
	if got := out[2*echo]; !near(float64(got), 1, 1e-4) {
		t.Errorf("echo at %d = %v, want 1", echo, got)
	}
	if got := out[0]; !near(float64(got), 0.8, 1e-4) {
		t.Errorf("dry impulse = %v, want 0.8", got)
	}
}

// --- Reverb ---

func TestImpulseShape(t *testing.T) {
	ir := Impulse(1000, 2, 2, func() float64 { return 1 })
	if len(ir[0]) != 2000 || len(ir[1]) != 2000 {
		t.Fatalf("impulse length = %d/%d, want 2000", len(ir[0]), len(ir[1]))
	}
	if ir[0][0] != 1 {
		t.Errorf("ir[0] = %v, want 1", ir[0][0])
	}
	if got := ir[0][1000]; !near(got, 0.25, 1e-12) {
		t.Errorf("ir at half length = %v, want 0.25", got)
	}
	for i := 1; i < len(ir[0]); i++ {
		if ir[0][i] > ir[0][i-1] {
			t.Fatalf("envelope increases at %d", i)
		}
	}
}

func TestReverbMix(t *testing.T) {
	ctx := graph.NewContext(testRate)
	r := NewReverb(ctx)
	if wet, dry := r.Mix(); wet != 0 || dry != 1 {
		t.Errorf("default Mix() = (%v, %v), want (0, 1)", wet, dry)
	}
	r.SetMix(1)
	if wet, dry := r.Mix(); wet != 1 || dry != 0.5 {
		t.Errorf("Mix() at full wet = (%v, %v), want (1, 0.5)", wet, dry)
	}
}

func TestReverbAddsTail(t *testing.T) {
	ctx := graph.NewContext(testRate)
	r := NewReverb(ctx)
	r.SetMix(1)
	feed(ctx, r, 0.5, 0.1)

	ctx.Advance(0.3)
	out := make([]float32, 2*1024)
	ctx.Render(out)
	var energy float64
	for _, v := range out {
		energy += float64(v * v)
	}
	if energy == 0 {
		t.Error("no reverb tail after the dry signal ended")
	}
}

// --- Noise gate ---

func TestGateThresholdClamp(t *testing.T) {
	ctx := graph.NewContext(testRate)
	g := NewNoiseGate(ctx)
	defer g.Close()
	if got := g.Threshold(); got != -50 {
		t.Errorf("default Threshold() = %v, want -50", got)
	}
	g.SetThreshold(-100)
	if got := g.Threshold(); got != -60 {
		t.Errorf("Threshold() = %v, want -60", got)
	}
	g.SetThreshold(0)
	if got := g.Threshold(); got != -10 {
		t.Errorf("Threshold() = %v, want -10", got)
	}
}

func TestGateClosesOnQuietInput(t *testing.T) {
	ctx := graph.NewContext(testRate)
	g := NewNoiseGate(ctx)
	defer g.Close()
	// -60 dBFS, below the -50 dB default threshold
	feed(ctx, g, 0.001, 3)
	ctx.Advance(2)
	if got := g.Level(); got > 0.01 {
		t.Errorf("gate level on quiet input = %v, want ~0", got)
	}
}

func TestGateOpensOnLoudInput(t *testing.T) {
	ctx := graph.NewContext(testRate)
	g := NewNoiseGate(ctx)
	defer g.Close()
	feed(ctx, g, 0.5, 1)
	ctx.Advance(0.5)
	if got := g.Level(); !near(got, 1, 1e-3) {
		t.Errorf("gate level on loud input = %v, want 1", got)
	}
}

func TestGateDisableOpens(t *testing.T) {
	ctx := graph.NewContext(testRate)
	g := NewNoiseGate(ctx)
	defer g.Close()
	feed(ctx, g, 0, 3)
	ctx.Advance(2)
	if got := g.Level(); got > 0.01 {
		t.Fatalf("gate level on silence = %v, want ~0", got)
	}
	g.SetEnabled(false)
	ctx.Advance(0.2)
	if got := g.Level(); !near(got, 1, 1e-3) {
		t.Errorf("disabled gate level = %v, want 1", got)
	}
	if g.Enabled() {
		t.Error("Enabled() = true after SetEnabled(false)")
	}
}

func TestChainOrder(t *testing.T) {
	ctx := graph.NewContext(testRate)
	eq := NewEQ(ctx)
	iso := NewIsolator(ctx)
	in, out := Chain(eq, iso)
	if in != eq.Input() || out != iso.Output() {
		t.Error("Chain returned wrong ports")
	}
}
