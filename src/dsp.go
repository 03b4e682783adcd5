package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Fixed-point sample primitives for the modem DSP chain.
 *
 *		Everything here operates on 16 bit signed PCM samples
 *		with 32 bit intermediates.  The magnitude and arctangent
 *		approximations are integer formulas; the downstream
 *		filter responses depend on their exact rounding
 *		behaviour, so they must not be replaced with the
 *		floating point equivalents.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"math"
)

/*------------------------------------------------------------------
 *
 * Name:	NewSineTable
 *
 * Purpose:	Precompute one full cycle of a sine wave, scaled to
 *		the given peak amplitude.
 *
 * Inputs:	amplitude	- Peak value, up to 32767 for full scale.
 *
 *		n		- Samples per cycle.  Use the sample rate
 *				  so oscillator frequencies are in Hz.
 *
 * Returns:	The table, immutable once built and shared by all
 *		oscillators for the life of the program.
 *
 *---------------------------------------------------------------*/

type SineTable struct {
	samples []int16
}

func NewSineTable(amplitude float64, n int) (*SineTable, error) {
	if n < 4 {
		return nil, fmt.Errorf("sine table needs at least 4 samples per cycle, got %d", n)
	}

	var t = &SineTable{
		samples: make([]int16, n),
	}

	for i := 0; i < n; i++ {
		var x = 2.0 * math.Pi * float64(i) / float64(n)
		var s = math.Round(amplitude * math.Sin(x))
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		t.samples[i] = int16(s)
	}

	return t, nil
}

func (t *SineTable) Len() int {
	return len(t.samples)
}

// getSamples reads samples at the given frequency, advancing the
// caller's phase variable.
func (t *SineTable) getSamples(p *int, freqhz int, out []int16) {
	var phase = *p
	for i := range out {
		out[i] = t.samples[phase]

		phase += freqhz
		for phase >= len(t.samples) {
			phase -= len(t.samples)
		}
	}
	*p = phase
}

/*------------------------------------------------------------------
 *
 * Name:	MulSamples
 *
 * Purpose:	Elementwise multiply with 15 bit fractional scaling:
 *		out = (a * b) / 32768, saturated to +/-32767.
 *
 *---------------------------------------------------------------*/

func MulSamples(a []int16, b []int16, out []int16) {
	for i := range out {
		var product = (int32(a[i]) * int32(b[i])) / 32768
		if product > 32767 {
			logger.Warn("mul: clipped")
			product = 32767
		} else if product < -32767 {
			logger.Warn("mul: clipped")
			product = -32767
		}
		out[i] = int16(product)
	}
}

// SubSamples subtracts elementwise.  Halves the magnitude of both
// inputs first so the result cannot overflow.
func SubSamples(a []int16, b []int16, out []int16) {
	for i := range out {
		out[i] = a[i]/2 - b[i]/2
	}
}

// Differentiator computes the first difference of a sample stream,
// keeping the last sample across calls.
type Differentiator struct {
	last int16
}

func (d *Differentiator) Process(in []int16, out []int16) {
	var last = d.last
	for i := range in {
		out[i] = in[i] - last
		last = in[i]
	}
	d.last = last
}

// SgnSamples maps each sample to +1, 0 or -1.
func SgnSamples(in []int16, out []int16) {
	for i := range in {
		switch {
		case in[i] > 0:
			out[i] = 1
		case in[i] < 0:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	MagComplexSamples
 *
 * Purpose:	Fast vector magnitude of (I,Q) pairs:
 *		15 * (max + min/2) / 16, saturated at 32767.
 *
 * 		http://www.embedded.com/design/real-time-and-performance/4007218/Digital-Signal-Processing-Tricks--High-speed-vector-magnitude-approximation
 *
 *---------------------------------------------------------------*/

func MagComplexSamples(samplesI []int16, samplesQ []int16, out []int16) {
	for i := range out {
		var x = int32(samplesI[i])
		var y = int32(samplesQ[i])

		if x < 0 {
			x = -x
		}
		if y < 0 {
			y = -y
		}

		var maxv, minv int32
		if x > y {
			maxv, minv = x, y
		} else {
			maxv, minv = y, x
		}

		var mag = (15 * (maxv + minv/2)) / 16

		if mag > 32767 {
			logger.Warn("mag: clipped")
			out[i] = 32767
		} else {
			out[i] = int16(mag)
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	AngComplexSamples
 *
 * Purpose:	Fast arctangent of (I,Q) pairs.
 *
 *		Output units are 1/65536 of a revolution, so the 16 bit
 *		result wraps exactly once per cycle.  The 16384 offset
 *		in the second branch swaps quadrants so the result is
 *		continuous modulo 65536 across the diagonal.
 *
 *---------------------------------------------------------------*/

func AngComplexSamples(samplesI []int16, samplesQ []int16, out []int16) {
	for i := range out {
		var x = int32(samplesI[i])
		var y = int32(samplesQ[i])

		if x == 0 && y == 0 {
			out[i] = 0
			continue
		}

		var absX, absY = x, y
		if absX < 0 {
			absX = -absX
		}
		if absY < 0 {
			absY = -absY
		}

		var angle int32
		if absX > absY {
			angle = (8192 * y) / x
			if x < 0 {
				angle += 32768
			}
		} else {
			angle = 16384 - (8192*x)/y
			if y < 0 {
				angle += 32768
			}
		}

		out[i] = int16(angle)
	}
}
