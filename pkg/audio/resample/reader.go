// ABOUTME: Streaming resampler over a sample source
// ABOUTME: Pulls chunks from the source and serves them at the output rate
package resample

// SampleSource produces interleaved samples
type SampleSource interface {
	ReadSamples(dst []int32) (int, error)
}

// Reader resamples a SampleSource on the fly
type Reader struct {
	src      SampleSource
	rs       *Resampler
	channels int
	in       []int32
	out      []int32
	pending  []int32
	err      error
}

// NewReader returns src converted from inputRate to outputRate
func NewReader(src SampleSource, inputRate, outputRate, channels int) *Reader {
	return &Reader{
		src:      src,
		rs:       New(inputRate, outputRate, channels),
		channels: channels,
		in:       make([]int32, 4096*channels),
	}
}

// ReadSamples fills dst with whole frames at the output rate; the source's error is returned once drained
func (r *Reader) ReadSamples(dst []int32) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}

		n, err := r.src.ReadSamples(r.in)
		n -= n % r.channels
		if n > 0 {
			// the carried frame can add one output frame beyond the estimate
			need := r.rs.OutputSamplesNeeded(n) + 2*r.channels
			if cap(r.out) < need {
				r.out = make([]int32, need)
			}
			m := r.rs.Resample(r.in[:n], r.out[:need])
			r.pending = r.out[:m]
		}
		if err != nil {
			r.err = err
		}
		if n == 0 && err == nil {
			return 0, nil
		}
	}

	whole := len(dst) - len(dst)%r.channels
	k := copy(dst[:whole], r.pending)
	r.pending = r.pending[k:]
	return k, nil
}
