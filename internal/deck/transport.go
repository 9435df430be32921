package deck

import (
	"log/slog"
	"math"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

type loopRegion struct {
	start, end float64
	hasStart   bool
	active     bool
}

// wrap folds an elapsed position that has run past the loop end back into
// [start, end).
func (l loopRegion) wrap(elapsed float64) float64 {
	if !l.active || elapsed < l.end {
		return elapsed
	}
	return l.start + math.Mod(elapsed-l.start, l.end-l.start)
}

// brakeState records a running brake so the elapsed position can be
// integrated over the linear rate ramp.
type brakeState struct {
	at    float64 // graph time the ramp began
	from  float64 // elapsed position at that time
	rate  float64 // rate before the brake, restored afterwards
	timer *graph.Timer
}

// position integrates the rate ramp from b.rate to the floor over the brake
// window and holds the floor afterwards.
func (b *brakeState) position(now float64) float64 {
	t := max(0, now-b.at)
	if t <= brakeDuration {
		return b.from + b.rate*t + (brakeFloor-b.rate)*t*t/(2*brakeDuration)
	}
	ramp := (b.rate + brakeFloor) / 2 * brakeDuration
	return b.from + ramp + brakeFloor*(t-brakeDuration)
}

// Load decodes data and makes it the deck's source. Playback stops first.
// On a decode error the deck is left unchanged and the error, an
// *audio.DecodeError, is also reported through OnDecodeError.
func (d *Deck) Load(data []byte) error {
	buf, err := audio.Decode(data, d.ctx.SampleRate())
	if err != nil {
		d.decodeFailed(err)
		return err
	}
	d.LoadBuffer(buf)
	return nil
}

// LoadBuffer makes an already decoded buffer the deck's source.
func (d *Deck) LoadBuffer(buf *audio.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.buffer = buf
	d.live = nil
	d.loop = loopRegion{}
	slog.Debug("deck loaded", "deck", d.id, "duration", buf.Duration())
}

// LoadStream makes a live stream the deck's source. Live sources have no
// duration, ignore seek, pause and speed, and play until the stream drains.
func (d *Deck) LoadStream(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.buffer = nil
	d.live = s
	d.loop = loopRegion{}
	slog.Debug("deck loaded live stream", "deck", d.id)
}

// Loaded reports whether the deck has a source.
func (d *Deck) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffer != nil || d.live != nil
}

// Live reports whether the source is a live stream.
func (d *Deck) Live() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live != nil
}

// Play starts or resumes playback from the paused position. It is a no-op
// without a source or while already playing.
func (d *Deck) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Playing {
		return
	}
	switch {
	case d.buffer != nil:
		d.startLocked()
	case d.live != nil:
		d.startLiveLocked()
	default:
		return
	}
	d.state = Playing
	slog.Debug("deck play", "deck", d.id, "at", d.pausedAt, "rate", d.rate)
}

func (d *Deck) startLocked() {
	now := d.ctx.CurrentTime()
	src := d.ctx.NewBufferSource(d.buffer)
	src.PlaybackRate.SetValue(d.rate)
	if d.loop.active {
		src.SetLoop(d.loop.start, d.loop.end)
	}
	src.OnEnded(func() { d.ended(src) })
	src.Connect(d.chainIn)
	src.Start(d.pausedAt)
	d.src = src
	d.startedAt = now - d.pausedAt/d.rate
}

func (d *Deck) startLiveLocked() {
	live := d.live
	src := d.ctx.NewStreamSource(live)
	src.OnEnded(func() { d.liveEnded(src) })
	src.Connect(d.chainIn)
	src.Start()
	d.liveSrc = src
	d.startedAt = d.ctx.CurrentTime()
}

// releaseLocked stops and unhooks the current source instance, if any.
func (d *Deck) releaseLocked() {
	if d.src != nil {
		d.src.Stop()
		d.src.Disconnect()
		d.src = nil
	}
	if d.liveSrc != nil {
		d.liveSrc.Stop()
		d.liveSrc.Disconnect()
		d.liveSrc = nil
	}
	d.cancelBrakeLocked()
}

// Pause suspends playback and keeps the position. Live streams cannot be
// paused; pausing one is a no-op.
func (d *Deck) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pauseLocked()
}

func (d *Deck) pauseLocked() {
	if d.state != Playing || d.live != nil {
		return
	}
	d.pausedAt = d.clampPos(d.currentTimeLocked())
	d.releaseLocked()
	d.state = Paused
	slog.Debug("deck pause", "deck", d.id, "at", d.pausedAt)
}

// Stop halts playback and rewinds to the start.
func (d *Deck) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Deck) stopLocked() {
	d.releaseLocked()
	d.pausedAt = 0
	d.startedAt = 0
	d.state = Stopped
}

// Seek moves to t seconds, clamped into [0, duration]. While playing the
// source restarts at t with the current rate and loop.
func (d *Deck) Seek(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffer == nil || math.IsNaN(t) {
		return
	}
	t = d.clampPos(t)
	if d.state == Playing {
		d.releaseLocked()
		d.pausedAt = t
		d.startLocked()
		return
	}
	d.pausedAt = t
}

// SetSpeed changes the playback rate without moving the position. Rates
// outside [MinRate, MaxRate] are clamped; a running brake is cancelled.
func (d *Deck) SetSpeed(rate float64) {
	if math.IsNaN(rate) || rate <= 0 {
		return
	}
	rate = clamp(rate, MinRate, MaxRate)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Playing || d.src == nil {
		d.rate = rate
		return
	}
	elapsed := d.currentTimeLocked()
	d.cancelBrakeLocked()
	d.rate = rate
	d.startedAt = d.ctx.CurrentTime() - elapsed/rate
	d.src.PlaybackRate.SetValue(rate)
}

// Rate returns the playback rate used for the next play or the current one.
// During a brake it reports the rate that will be restored.
func (d *Deck) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Braking reports whether a brake ramp is running.
func (d *Deck) Braking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brake != nil
}

// Brake slows playback to a near stop over one second, then pauses and
// restores the previous rate for the next play.
func (d *Deck) Brake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Playing || d.src == nil || d.brake != nil {
		return
	}
	now := d.ctx.CurrentTime()
	b := &brakeState{at: now, from: d.currentTimeLocked(), rate: d.rate}
	p := d.src.PlaybackRate
	p.CancelAndHold()
	p.LinearRampToValueAtTime(brakeFloor, now+brakeDuration)
	b.timer = d.ctx.At(now+brakeDuration, func() { d.finishBrake(b) })
	d.brake = b
	slog.Debug("deck brake", "deck", d.id, "from", b.from)
}

func (d *Deck) finishBrake(b *brakeState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.brake != b {
		return
	}
	d.pauseLocked()
}

// cancelBrakeLocked drops a running brake and restores its starting rate.
func (d *Deck) cancelBrakeLocked() {
	b := d.brake
	if b == nil {
		return
	}
	d.brake = nil
	b.timer.Stop()
	d.rate = b.rate
}

// SetLoopIn marks the current position as the loop start. Any armed loop
// is disarmed until a new loop out is set.
func (d *Deck) SetLoopIn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffer == nil {
		return
	}
	t := d.currentTimeLocked()
	if d.loop.active {
		d.unloopLocked()
	}
	d.loop = loopRegion{start: t, hasStart: true}
}

// SetLoopOut marks the current position as the loop end and arms the loop.
// It is ignored without a loop start or when not after it. Setting it again
// on an armed loop moves the end.
func (d *Deck) SetLoopOut() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loop.hasStart {
		return
	}
	t := d.currentTimeLocked()
	if t <= d.loop.start {
		return
	}
	if d.loop.active {
		d.unloopLocked()
	}
	d.loop.end = t
	d.loop.active = true
	if d.src != nil {
		d.src.SetLoop(d.loop.start, d.loop.end)
	}
	slog.Debug("deck loop", "deck", d.id, "start", d.loop.start, "end", d.loop.end)
}

// ExitLoop disarms looping and clears both loop points. Playback continues
// from the position inside the loop.
func (d *Deck) ExitLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loop.active {
		d.unloopLocked()
	}
	d.loop = loopRegion{}
}

// unloopLocked turns the wrapped position into a plain one so the formula
// stays continuous once the loop no longer folds it.
func (d *Deck) unloopLocked() {
	if d.state == Playing && d.src != nil {
		elapsed := d.currentTimeLocked()
		if b := d.brake; b != nil {
			b.from += elapsed - b.position(d.ctx.CurrentTime())
		} else {
			d.startedAt = d.ctx.CurrentTime() - elapsed/d.rate
		}
		d.src.ClearLoop()
	}
	if d.state != Playing {
		d.pausedAt = d.loop.wrap(d.pausedAt)
	}
	d.loop.active = false
}

// Loop returns the loop points and whether the loop is armed.
func (d *Deck) Loop() (start, end float64, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loop.start, d.loop.end, d.loop.active
}

// CurrentTime returns the transport position in seconds.
func (d *Deck) CurrentTime() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentTimeLocked()
}

func (d *Deck) currentTimeLocked() float64 {
	if d.state != Playing {
		return d.pausedAt
	}
	now := d.ctx.CurrentTime()
	if d.live != nil {
		return now - d.startedAt
	}
	var elapsed float64
	if d.brake != nil {
		elapsed = d.brake.position(now)
	} else {
		elapsed = (now - d.startedAt) * d.rate
	}
	return d.clampPos(d.loop.wrap(elapsed))
}

// Duration returns the buffer length in seconds, or 0 for a live stream or
// an empty deck.
func (d *Deck) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffer == nil {
		return 0
	}
	return d.buffer.Duration()
}

// State returns the transport state.
func (d *Deck) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Deck) clampPos(t float64) float64 {
	if d.buffer == nil {
		return max(0, t)
	}
	return clamp(t, 0, d.buffer.Duration())
}

// ended runs when a buffer source plays out. Stale instances are ignored.
func (d *Deck) ended(src *graph.BufferSourceNode) {
	d.mu.Lock()
	if d.src != src {
		d.mu.Unlock()
		return
	}
	src.Disconnect()
	d.src = nil
	d.cancelBrakeLocked()
	d.pausedAt = 0
	d.startedAt = 0
	d.state = Stopped
	fn := d.events.OnTrackEnd
	d.mu.Unlock()

	slog.Debug("deck track end", "deck", d.id)
	if fn != nil {
		fn()
	}
}

func (d *Deck) liveEnded(src *graph.StreamSourceNode) {
	d.mu.Lock()
	if d.liveSrc != src {
		d.mu.Unlock()
		return
	}
	src.Disconnect()
	d.liveSrc = nil
	d.live = nil
	d.pausedAt = 0
	d.startedAt = 0
	d.state = Stopped
	fn := d.events.OnTrackEnd
	d.mu.Unlock()

	slog.Debug("deck live stream ended", "deck", d.id)
	if fn != nil {
		fn()
	}
}
