package deck

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

const rate = 48000

// quantum is one graph pass in seconds, the clock's resolution.
const quantum = float64(graph.Quantum) / rate

func tone(seconds float64) *audio.Buffer {
	b := audio.NewBuffer(rate, int(seconds*rate))
	for i := range b.Data[0] {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
		b.Data[0][i], b.Data[1][i] = v, v
	}
	return b
}

func newDeck(t *testing.T, seconds float64) (*graph.Context, *Deck) {
	t.Helper()
	ctx := graph.NewContext(rate)
	d := New(ctx, "a", Options{})
	d.Output().Connect(ctx.Destination())
	if seconds > 0 {
		d.LoadBuffer(tone(seconds))
	}
	t.Cleanup(d.Close)
	return ctx, d
}

func wavBytes(t *testing.T, seconds float64) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	frames := int(seconds * rate)
	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	data := make([]int, 2*frames)
	for i := 0; i < frames; i++ {
		v := int(8000 * math.Sin(2*math.Pi*220*float64(i)/rate))
		data[2*i], data[2*i+1] = v, v
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// readHead returns the running source's own position, which the transport
// formula must agree with.
func readHead(t *testing.T, d *Deck) float64 {
	t.Helper()
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		t.Fatal("no running source")
	}
	return src.Position()
}

func TestPlayWithoutSourceIsNoop(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 0)
	d.Play()
	ctx.Advance(0.1)
	if d.State() != Stopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
	if got := d.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() = %v, want 0", got)
	}
}

func TestPlayAdvancesWithClock(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	if d.State() != Playing {
		t.Fatalf("State() = %v, want playing", d.State())
	}
	ctx.Advance(1)
	if got := d.CurrentTime(); !near(got, 1, 1e-9) {
		t.Errorf("CurrentTime() = %v, want 1", got)
	}
	if got := readHead(t, d); !near(got, d.CurrentTime(), 1e-6) {
		t.Errorf("source position %v disagrees with CurrentTime %v", got, d.CurrentTime())
	}
	if got := d.Duration(); !near(got, 10, 1e-9) {
		t.Errorf("Duration() = %v, want 10", got)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(2)
	d.Pause()
	if d.State() != Paused {
		t.Fatalf("State() = %v, want paused", d.State())
	}
	paused := d.CurrentTime()
	if !near(paused, 2, 1e-9) {
		t.Errorf("paused at %v, want 2", paused)
	}
	ctx.Advance(1)
	if got := d.CurrentTime(); got != paused {
		t.Errorf("CurrentTime() while paused = %v, want %v", got, paused)
	}
	d.Play()
	ctx.Advance(1)
	if got := d.CurrentTime(); !near(got, 3, 1e-9) {
		t.Errorf("CurrentTime() after resume = %v, want 3", got)
	}
}

func TestPlayWhilePlayingKeepsPosition(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(1)
	d.Play()
	if got := d.CurrentTime(); !near(got, 1, 1e-9) {
		t.Errorf("CurrentTime() = %v, want 1", got)
	}
}

func TestStopRewinds(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(1)
	d.Stop()
	d.Stop()
	if d.State() != Stopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
	if got := d.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() = %v, want 0", got)
	}
}

func TestSeekClamps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		seek float64
		want float64
	}{
		{-5, 0},
		{0, 0},
		{3.25, 3.25},
		{10, 10},
		{100, 10},
	}
	for _, tt := range tests {
		_, d := newDeck(t, 10)
		d.Play()
		d.Pause()
		d.Seek(tt.seek)
		if got := d.CurrentTime(); got != tt.want {
			t.Errorf("Seek(%v): CurrentTime() = %v, want %v", tt.seek, got, tt.want)
		}
	}
}

func TestSeekWhilePlayingRestarts(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.SetSpeed(1.5)
	d.Play()
	ctx.Advance(1)
	d.Seek(4)
	if d.State() != Playing {
		t.Fatalf("State() = %v, want playing", d.State())
	}
	ctx.Advance(1)
	if got := d.CurrentTime(); !near(got, 5.5, 1e-9) {
		t.Errorf("CurrentTime() = %v, want 5.5", got)
	}
	if got := d.Rate(); got != 1.5 {
		t.Errorf("Rate() = %v, want 1.5 after seek", got)
	}
}

func TestTimeMonotonicAcrossRates(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{0.5, 0.75, 1, 1.25, 1.5} {
		ctx, d := newDeck(t, 30)
		d.SetSpeed(r)
		d.Play()
		prev := d.CurrentTime()
		for i := 1; i <= 40; i++ {
			ctx.Advance(0.05)
			got := d.CurrentTime()
			if got < prev {
				t.Fatalf("rate %v: time went backwards %v -> %v", r, prev, got)
			}
			want := ctx.CurrentTime() * r
			if !near(got, want, 1e-9) {
				t.Fatalf("rate %v: CurrentTime() = %v, want %v", r, got, want)
			}
			prev = got
		}
		if got := readHead(t, d); !near(got, prev, 1e-6) {
			t.Errorf("rate %v: source position %v, formula %v", r, got, prev)
		}
	}
}

func TestSpeedChangeMidTrack(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(5)
	before := d.CurrentTime()
	if !near(before, 5, quantum) {
		t.Fatalf("CurrentTime() = %v, want ~5", before)
	}

	d.SetSpeed(2.0)
	after := d.CurrentTime()
	if !near(after, before, 1e-9) {
		t.Errorf("speed change jumped %v -> %v", before, after)
	}

	ctx.Advance(1)
	if got := d.CurrentTime(); !near(got, before+2, 1e-6) {
		t.Errorf("CurrentTime() one second at 2x = %v, want %v", got, before+2)
	}
	if got := readHead(t, d); !near(got, d.CurrentTime(), 1e-6) {
		t.Errorf("source position %v disagrees with CurrentTime %v", got, d.CurrentTime())
	}
}

func TestSpeedWhilePausedAppliesOnPlay(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.SetSpeed(0.5)
	if got := d.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() = %v, want 0", got)
	}
	d.Play()
	ctx.Advance(2)
	if got := d.CurrentTime(); !near(got, 1, 1e-9) {
		t.Errorf("CurrentTime() = %v, want 1", got)
	}
}

func TestSetSpeedRejectsInvalid(t *testing.T) {
	t.Parallel()
	_, d := newDeck(t, 10)
	d.SetSpeed(0)
	d.SetSpeed(-1)
	d.SetSpeed(math.NaN())
	if got := d.Rate(); got != 1 {
		t.Errorf("Rate() = %v, want 1", got)
	}
	d.SetSpeed(100)
	if got := d.Rate(); got != MaxRate {
		t.Errorf("Rate() = %v, want %v", got, MaxRate)
	}
}

func TestBrake(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(2)
	d.Brake()
	if !d.Braking() {
		t.Fatal("Braking() = false after Brake")
	}

	ctx.Advance(0.5)
	// linear ramp from 1 toward 0.001 over 1s, integrated
	tb := ctx.CurrentTime() - 2
	want := 2 + tb - 0.999*tb*tb/2
	if got := d.CurrentTime(); !near(got, want, 1e-9) {
		t.Errorf("CurrentTime() mid-brake = %v, want %v", got, want)
	}
	if got := readHead(t, d); !near(got, want, 1e-3) {
		t.Errorf("source position mid-brake = %v, want ~%v", got, want)
	}

	ctx.Advance(0.6)
	if d.State() != Paused {
		t.Fatalf("State() after brake = %v, want paused", d.State())
	}
	if d.Braking() {
		t.Error("Braking() = true after brake finished")
	}
	if got := d.Rate(); got != 1 {
		t.Errorf("Rate() after brake = %v, want restored 1", got)
	}
	stopped := d.CurrentTime()
	if !near(stopped, 2+0.5005, 1e-3) {
		t.Errorf("paused at %v, want ~2.5005", stopped)
	}

	d.Play()
	t0 := ctx.CurrentTime()
	ctx.Advance(1)
	want = stopped + ctx.CurrentTime() - t0
	if got := d.CurrentTime(); !near(got, want, 1e-6) {
		t.Errorf("CurrentTime() after replay = %v, want %v", got, want)
	}
}

func TestPauseDuringBrakeRestoresRate(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.SetSpeed(1.2)
	d.Play()
	ctx.Advance(1)
	d.Brake()
	ctx.Advance(0.3)
	d.Pause()
	ctx.Advance(1)
	if d.State() != Paused {
		t.Errorf("State() = %v, want paused", d.State())
	}
	if got := d.Rate(); got != 1.2 {
		t.Errorf("Rate() = %v, want 1.2", got)
	}
}

func TestTrackEnd(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 1)
	ends := 0
	d.SetEvents(Events{OnTrackEnd: func() { ends++ }})
	d.Play()
	ctx.Advance(1.5)
	if ends != 1 {
		t.Fatalf("OnTrackEnd fired %d times, want 1", ends)
	}
	if d.State() != Stopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
	if got := d.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() = %v, want 0", got)
	}
}

func TestTrackEndCanReloadAndPlay(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 0.5)
	d.SetEvents(Events{OnTrackEnd: func() {
		d.LoadBuffer(tone(5))
		d.Play()
	}})
	d.Play()
	ctx.Advance(1)
	if d.State() != Playing {
		t.Fatalf("State() = %v, want playing after reload", d.State())
	}
	if got := d.Duration(); !near(got, 5, 1e-9) {
		t.Errorf("Duration() = %v, want 5", got)
	}
}

func TestStopSuppressesTrackEnd(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 1)
	ends := 0
	d.SetEvents(Events{OnTrackEnd: func() { ends++ }})
	d.Play()
	ctx.Advance(0.5)
	d.Stop()
	ctx.Advance(1)
	if ends != 0 {
		t.Errorf("OnTrackEnd fired %d times after Stop, want 0", ends)
	}
}

func TestLoopOutWithoutLoopInIgnored(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(1)
	d.SetLoopOut()
	if _, _, active := d.Loop(); active {
		t.Error("loop armed without a loop in")
	}
}

func TestLoopOutNotAfterLoopInIgnored(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	d.Play()
	ctx.Advance(1)
	d.Pause()
	d.SetLoopIn()
	d.SetLoopOut()
	if _, _, active := d.Loop(); active {
		t.Error("loop armed with loop out equal to loop in")
	}
	d.Seek(0.5)
	d.SetLoopOut()
	if _, _, active := d.Loop(); active {
		t.Error("loop armed with loop out before loop in")
	}
}

func armLoop(t *testing.T, ctx *graph.Context, d *Deck) (start, end float64) {
	t.Helper()
	d.Play()
	ctx.Advance(1)
	d.SetLoopIn()
	ctx.Advance(0.48)
	d.SetLoopOut()
	start, end, active := d.Loop()
	if !active {
		t.Fatal("loop not armed")
	}
	if !near(start, 1, 1e-9) || !near(end, 1.48, 1e-9) {
		t.Fatalf("Loop() = [%v, %v), want [1, 1.48)", start, end)
	}
	return start, end
}

func TestLoopWrapsPosition(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	start, end := armLoop(t, ctx, d)
	for i := 0; i < 100; i++ {
		ctx.Advance(0.037)
		got := d.CurrentTime()
		if got < start || got >= end {
			t.Fatalf("poll %d: CurrentTime() = %v outside [%v, %v)", i, got, start, end)
		}
		if head := readHead(t, d); !near(head, got, 1e-6) {
			t.Fatalf("poll %d: source position %v, formula %v", i, head, got)
		}
	}
}

func TestLoopRateChangeInsideLoop(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	start, end := armLoop(t, ctx, d)
	speeds := []float64{1.5, 0.5, 1.25, 0.75, 1}
	for i := 0; i < 60; i++ {
		ctx.Advance(0.043)
		if i%12 == 0 {
			before := d.CurrentTime()
			d.SetSpeed(speeds[i/12])
			if after := d.CurrentTime(); !near(after, before, 1e-9) {
				t.Fatalf("speed change moved position %v -> %v", before, after)
			}
		}
		got := d.CurrentTime()
		if got < start || got >= end {
			t.Fatalf("poll %d: CurrentTime() = %v outside [%v, %v)", i, got, start, end)
		}
		if head := readHead(t, d); !near(head, got, 1e-6) {
			t.Fatalf("poll %d: source position %v, formula %v", i, head, got)
		}
	}
}

func TestLoopRateChangeAtBoundary(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	start, end := armLoop(t, ctx, d)
	// land just past the loop end so the first wrap has happened
	ctx.Advance(end - start + 2*quantum)
	d.SetSpeed(1.5)
	got := d.CurrentTime()
	if got < start || got >= start+0.01 {
		t.Fatalf("CurrentTime() = %v, want just past loop start %v", got, start)
	}
	t0 := ctx.CurrentTime()
	ctx.Advance(0.2)
	want := got + (ctx.CurrentTime()-t0)*1.5
	if !near(d.CurrentTime(), want, 1e-6) {
		t.Errorf("CurrentTime() = %v, want %v", d.CurrentTime(), want)
	}
	if head := readHead(t, d); !near(head, want, 1e-6) {
		t.Errorf("source position %v, want %v", head, want)
	}
}

func TestLoopOutAgainShrinksActiveLoop(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	start, _ := armLoop(t, ctx, d)
	ctx.Advance(1.3)
	d.SetLoopOut()
	_, end, active := d.Loop()
	if !active || end >= 1.48 || end <= start {
		t.Fatalf("Loop() = [%v, %v) active=%v, want a shorter armed loop", start, end, active)
	}
	for i := 0; i < 40; i++ {
		ctx.Advance(0.043)
		got := d.CurrentTime()
		if got < start || got >= end {
			t.Fatalf("poll %d: CurrentTime() = %v outside [%v, %v)", i, got, start, end)
		}
		if head := readHead(t, d); !near(head, got, 1e-6) {
			t.Fatalf("poll %d: source position %v, formula %v", i, head, got)
		}
	}
}

func TestExitLoopContinuesFromWrappedPosition(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	armLoop(t, ctx, d)
	ctx.Advance(0.7)
	inside := d.CurrentTime()
	d.ExitLoop()
	if s, e, active := d.Loop(); active || s != 0 || e != 0 {
		t.Errorf("Loop() after exit = (%v, %v, %v), want cleared", s, e, active)
	}
	if got := d.CurrentTime(); !near(got, inside, 1e-9) {
		t.Errorf("exit moved position %v -> %v", inside, got)
	}
	t0 := ctx.CurrentTime()
	ctx.Advance(1)
	want := inside + ctx.CurrentTime() - t0
	if got := d.CurrentTime(); !near(got, want, 1e-6) {
		t.Errorf("CurrentTime() = %v, want %v", got, want)
	}
	if head := readHead(t, d); !near(head, d.CurrentTime(), 1e-6) {
		t.Errorf("source position %v, formula %v", head, d.CurrentTime())
	}
}

func TestLoopSurvivesPauseResume(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	start, end := armLoop(t, ctx, d)
	ctx.Advance(0.8)
	d.Pause()
	d.Play()
	ctx.Advance(0.9)
	if got := d.CurrentTime(); got < start || got >= end {
		t.Errorf("CurrentTime() = %v outside [%v, %v)", got, start, end)
	}
}

func TestLoadClearsLoop(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	armLoop(t, ctx, d)
	d.LoadBuffer(tone(3))
	if _, _, active := d.Loop(); active {
		t.Error("loop still armed after load")
	}
	if d.State() != Stopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
}

func TestLoadDecodeErrorLeavesDeck(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	var reported error
	d.SetEvents(Events{OnDecodeError: func(err error) { reported = err }})
	d.Play()
	ctx.Advance(1)

	err := d.Load([]byte("definitely not audio"))
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Load() error = %v, want *audio.DecodeError", err)
	}
	if reported == nil {
		t.Error("OnDecodeError not called")
	}
	if d.State() != Playing {
		t.Errorf("State() = %v, want still playing", d.State())
	}
	if got := d.Duration(); !near(got, 10, 1e-9) {
		t.Errorf("Duration() = %v, want 10", got)
	}
}

func TestLoadWAV(t *testing.T) {
	t.Parallel()
	_, d := newDeck(t, 0)
	if err := d.Load(wavBytes(t, 0.25)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := d.Duration(); !near(got, 0.25, 1e-3) {
		t.Errorf("Duration() = %v, want 0.25", got)
	}
}

func TestLiveStream(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	ends := 0
	d.SetEvents(Events{OnTrackEnd: func() { ends++ }})
	d.LoadStream(beep.Silence(rate))
	if !d.Live() {
		t.Fatal("Live() = false")
	}
	if got := d.Duration(); got != 0 {
		t.Errorf("Duration() = %v, want 0", got)
	}
	d.Play()
	ctx.Advance(0.5)
	d.Pause()
	if d.State() != Playing {
		t.Errorf("Pause on live stream changed state to %v", d.State())
	}
	if got := d.CurrentTime(); !near(got, 0.5, quantum) {
		t.Errorf("CurrentTime() = %v, want 0.5", got)
	}
	ctx.Advance(1)
	if ends != 1 {
		t.Errorf("OnTrackEnd fired %d times when the stream drained, want 1", ends)
	}
	if d.State() != Stopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 0)
	if err := d.LoadSample(0, wavBytes(t, 1)); err != nil {
		t.Fatal(err)
	}
	if err := d.LoadSample(1, wavBytes(t, 0.25)); err != nil {
		t.Fatal(err)
	}

	d.PlaySample(0)
	d.PlaySample(0)
	d.PlaySample(1)
	d.PlaySample(2) // empty slot
	ctx.Advance(0.1)
	if got := d.SampleVoices(0); got != 2 {
		t.Errorf("SampleVoices(0) = %d, want 2", got)
	}
	if got := d.SampleVoices(1); got != 1 {
		t.Errorf("SampleVoices(1) = %d, want 1", got)
	}
	if got := d.SampleVoices(2); got != 0 {
		t.Errorf("SampleVoices(2) = %d, want 0", got)
	}

	d.UnloadSample(0)
	if got := d.SampleVoices(0); got != 0 {
		t.Errorf("SampleVoices(0) after unload = %d, want 0", got)
	}
	if got := d.SampleVoices(1); got != 1 {
		t.Errorf("unload of slot 0 touched slot 1: %d voices", got)
	}
	d.PlaySample(0)
	if got := d.SampleVoices(0); got != 0 {
		t.Errorf("PlaySample on unloaded slot started %d voices", got)
	}

	ctx.Advance(0.3)
	if got := d.SampleVoices(1); got != 0 {
		t.Errorf("SampleVoices(1) after completion = %d, want 0", got)
	}
}

func TestSamplerReloadStopsOnlyThatSlot(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 0)
	sample := wavBytes(t, 1)
	for i := 0; i < 2; i++ {
		if err := d.LoadSample(i, sample); err != nil {
			t.Fatal(err)
		}
		d.PlaySample(i)
	}
	ctx.Advance(0.1)
	if err := d.LoadSample(0, sample); err != nil {
		t.Fatal(err)
	}
	if got := d.SampleVoices(0); got != 0 {
		t.Errorf("SampleVoices(0) after reload = %d, want 0", got)
	}
	if got := d.SampleVoices(1); got != 1 {
		t.Errorf("SampleVoices(1) = %d, want 1", got)
	}
}

func TestSamplerBadInput(t *testing.T) {
	t.Parallel()
	_, d := newDeck(t, 0)
	if err := d.LoadSample(NumSlots, nil); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("LoadSample(out of range) error = %v, want ErrInvalidSlot", err)
	}
	var de *audio.DecodeError
	if err := d.LoadSample(0, []byte{1, 2, 3}); !errors.As(err, &de) {
		t.Errorf("LoadSample(garbage) error = %v, want *audio.DecodeError", err)
	}
	if d.SampleLoaded(0) {
		t.Error("slot 0 loaded after a decode error")
	}
	d.PlaySample(-1)
	d.UnloadSample(99)
}

func TestSamplerBypassesChain(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 0)
	d.SetVolume(0)
	ctx.Advance(0.2)
	if err := d.LoadSample(0, wavBytes(t, 1)); err != nil {
		t.Fatal(err)
	}
	d.PlaySample(0)
	out := make([]float32, 2*4096)
	ctx.Render(out)
	var peak float32
	for _, v := range out {
		peak = max(peak, v, -v)
	}
	if peak < 0.1 {
		t.Errorf("sampler output peak = %v with deck volume 0, want audible", peak)
	}
}

func TestVolume(t *testing.T) {
	t.Parallel()
	ctx, d := newDeck(t, 10)
	if got := d.Volume(); got != DefaultVolume {
		t.Errorf("Volume() = %v, want %v", got, DefaultVolume)
	}
	d.SetVolume(3)
	if got := d.Volume(); got != 1 {
		t.Errorf("Volume() = %v, want 1", got)
	}
	ctx.Advance(0.2)
	if got := d.volume.Gain.Value(); !near(got, 1, 1e-3) {
		t.Errorf("volume gain = %v, want ~1", got)
	}
}

func TestApplyEQPreset(t *testing.T) {
	t.Parallel()
	_, d := newDeck(t, 0)
	if err := d.ApplyEQPreset("bass boost"); err != nil {
		t.Fatalf("ApplyEQPreset() error = %v", err)
	}
	if got := d.EQGain(0); got <= 0 {
		t.Errorf("EQGain(0) = %v, want a boost", got)
	}
	if err := d.ApplyEQPreset("nope"); err == nil {
		t.Error("ApplyEQPreset(nope) should fail")
	}
}

func TestMeters(t *testing.T) {
	t.Parallel()
	ctx := graph.NewContext(rate)
	d := New(ctx, "a", Options{MeterRate: 50})
	defer d.Close()
	d.Output().Connect(ctx.Destination())
	d.LoadBuffer(tone(5))

	var levels, times int
	var lastLevel, lastPos float64
	d.SetEvents(Events{
		OnLevel: func(v float64) { levels++; lastLevel = v },
		OnTime:  func(pos, dur float64) { times++; lastPos = pos },
	})
	d.Play()
	ctx.Advance(1)
	if levels < 45 || times < 45 {
		t.Errorf("meter callbacks = %d/%d over 1s at 50Hz", levels, times)
	}
	if lastLevel <= 0 {
		t.Errorf("last level = %v, want > 0 while playing a tone", lastLevel)
	}
	if !near(lastPos, 1, 0.03) {
		t.Errorf("last position = %v, want ~1", lastPos)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	if Stopped.String() != "stopped" || Playing.String() != "playing" || Paused.String() != "paused" {
		t.Error("unexpected state names")
	}
}
