package audio

// Resample converts b to dstRate using cubic interpolation. When
// downsampling, a one-pole low-pass runs first to tame aliasing.
func Resample(b *Buffer, dstRate int) *Buffer {
	if b.SampleRate == dstRate || b.Frames() == 0 {
		out := *b
		out.SampleRate = dstRate
		return &out
	}
	ratio := float64(b.SampleRate) / float64(dstRate)
	frames := int(int64(b.Frames()) * int64(dstRate) / int64(b.SampleRate))
	out := NewBuffer(dstRate, frames)

	for ch := range b.Data {
		src := b.Data[ch]
		if ratio > 1 {
			src = lowPass(src, 0.5)
		}
		last := len(src) - 1
		at := func(i int) float32 {
			return src[max(0, min(i, last))]
		}
		for i := 0; i < frames; i++ {
			pos := float64(i) * ratio
			base := int(pos)
			t := float32(pos - float64(base))
			out.Data[ch][i] = CubicInterpolate(at(base-1), at(base), at(base+1), at(base+2), t)
		}
	}
	return out
}

func lowPass(src []float32, alpha float32) []float32 {
	out := make([]float32, len(src))
	if len(src) == 0 {
		return out
	}
	state := src[0]
	for i, v := range src {
		state = alpha*v + (1-alpha)*state
		out[i] = state
	}
	return out
}

// CubicInterpolate evaluates the Catmull-Rom spline through y0..y3 at t in
// [0,1) between y1 and y2.
func CubicInterpolate(y0, y1, y2, y3, t float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	return ((a0*t+a1)*t+a2)*t + y1
}
