package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	FSK demodulator.
 *
 *		Coherent I/Q downconversion against a local oscillator
 *		at the centre of the mark/space pair, moving-average
 *		filtering, phase differentiation, and sign-based bit
 *		timing recovery feeding an asynchronous framing state
 *		machine.
 *
 *		The chain, per block of input samples:
 *
 *		in -> mix with LO -> MAF(I), MAF(Q) -> phase angle
 *		   -> first difference -> MAF -> sign -> MAF(timing)
 *		   -> bit timing -> shift register -> framing -> bytes
 *
 *		The phase difference wraps through 16 bit modular
 *		arithmetic, so small differences come out correctly
 *		signed while the wrong-signed spikes from boundary
 *		crossings are suppressed by the output filter and the
 *		sign operation.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"io"
)

// demodBlockSize is the maximum number of samples taken per pass.
const demodBlockSize = 1024

type Demodulator struct {
	cfg ModemConfig
	ff  *FrameFormat

	lo   *Osc
	diff Differentiator

	mafI, mafQ, mafOut, mafBit *MAF

	bufIn, bufI, bufQ, bufAng          []int16
	bufWork, bufOut, bufSign, bufTiming []int16

	out     io.Writer // Decoded bytes
	monitor io.Writer // Optional interleaved debug stream

	// Meaning of positive / negative phase change.  Only changes if
	// the tone frequencies are reordered; V.23 always has mark below
	// space, so a positive rate is a 1.
	phasePos, phaseNeg int32

	// Bit timing.
	bitWait  int
	state    int
	lineIdle bool

	// Framing.
	outShift  int32
	frameHold int

	// Quality monitoring.
	numTransitions int
	totalSkew      int
	errCount       int
	errTimeout     int
}

/*------------------------------------------------------------------
 *
 * Name:	NewDemodulator
 *
 * Purpose:	Set up the oscillator, filters and framing state.
 *
 * Inputs:	table	- Shared sine table; its length must equal the
 *			  sample rate.
 *
 *		cfg	- Modem configuration.
 *
 *		out	- Destination for decoded bytes.
 *
 *---------------------------------------------------------------*/

func NewDemodulator(table *SineTable, cfg ModemConfig, out io.Writer) (*Demodulator, error) {
	var d = &Demodulator{
		cfg:      cfg,
		ff:       cfg.Format,
		out:      out,
		outShift: -1,
		lineIdle: true,
		bitWait:  cfg.SamplesPerBit,
	}

	d.lo = NewOsc(table, (cfg.MarkFreqHz+cfg.SpaceFreqHz)/2)
	d.frameHold = d.ff.FrameSize

	// Place the first null for the input MAFs.
	var inputMAFSamples = cfg.SampleRate / cfg.FirstNull

	logger.Debug("demodulator filters",
		"lo_centre_hz", d.lo.FreqHz,
		"iq_maf_samples", inputMAFSamples,
		"null_hz", cfg.FirstNull)

	var err error
	if d.mafI, err = NewMAF(inputMAFSamples); err != nil {
		return nil, err
	}
	if d.mafQ, err = NewMAF(inputMAFSamples); err != nil {
		return nil, err
	}
	if d.mafOut, err = NewMAF(cfg.SamplesPerBit); err != nil {
		return nil, err
	}
	if d.mafBit, err = NewMAF(cfg.SamplesPerBit); err != nil {
		return nil, err
	}

	d.bufIn = make([]int16, demodBlockSize)
	d.bufI = make([]int16, demodBlockSize)
	d.bufQ = make([]int16, demodBlockSize)
	d.bufAng = make([]int16, demodBlockSize)
	d.bufWork = make([]int16, demodBlockSize)
	d.bufOut = make([]int16, demodBlockSize)
	d.bufSign = make([]int16, demodBlockSize)
	d.bufTiming = make([]int16, demodBlockSize)

	if cfg.MarkFreqHz > cfg.SpaceFreqHz {
		d.phasePos, d.phaseNeg = 0, 1
	} else {
		d.phasePos, d.phaseNeg = 1, 0
	}

	return d, nil
}

// SetMonitor enables the interleaved 8-channel debug stream:
// raw, I, Q, angle, work, out, sign, timing.
func (d *Demodulator) SetMonitor(w io.Writer) {
	d.monitor = w
}

// Process runs samples through the DSP chain and framing machine,
// writing any decoded bytes to the output.
func (d *Demodulator) Process(in []int16) error {
	for len(in) > 0 {
		var n = len(in)
		if n > demodBlockSize {
			n = demodBlockSize
		}
		if err := d.processBlock(in[:n]); err != nil {
			return err
		}
		in = in[n:]
	}
	return nil
}

func (d *Demodulator) processBlock(in []int16) error {
	var n = len(in)
	copy(d.bufIn, in)

	// Mix and filter the local oscillator.
	d.lo.GetComplexSamples(d.bufI[:n], d.bufQ[:n])
	MulSamples(d.bufIn[:n], d.bufI[:n], d.bufWork[:n])
	d.mafI.Process(d.bufWork[:n], d.bufI[:n], false)
	MulSamples(d.bufIn[:n], d.bufQ[:n], d.bufWork[:n])
	d.mafQ.Process(d.bufWork[:n], d.bufQ[:n], false)

	// Determine the phase, phase change, then filter it.
	AngComplexSamples(d.bufI[:n], d.bufQ[:n], d.bufAng[:n])
	d.diff.Process(d.bufAng[:n], d.bufWork[:n])
	d.mafOut.Process(d.bufWork[:n], d.bufOut[:n], false)

	// Sign sampling and filtering to inform timing.
	SgnSamples(d.bufOut[:n], d.bufSign[:n])
	d.mafBit.Process(d.bufSign[:n], d.bufTiming[:n], true)

	if d.monitor != nil {
		if err := d.writeMonitor(n); err != nil {
			return err
		}
	}

	// Run through the output samples.
	for i := 0; i < n; i++ {
		var last = d.state
		if d.bufTiming[i] > 0 {
			d.state = 1
		} else {
			d.state = 0
		}

		// Edge detected in timing buffer - re-align.
		if last != d.state {
			d.transition()
		}

		d.bitWait--
		if d.bitWait <= 0 {
			if err := d.latchBit(d.bufOut[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	transition
 *
 * Purpose:	Re-align the bit clock on a timing-signal edge.
 *
 * Description:	The raw skew is how far the clock is from the ideal
 *		mid-bit alignment; its sign says whether we sampled
 *		early or late.  The first edge out of idle corrects
 *		completely and is not counted.  Later edges accumulate
 *		into the quality figures and correct fractionally,
 *		always in the right direction and always by at least
 *		one sample.
 *
 *---------------------------------------------------------------*/

func (d *Demodulator) transition() {
	var adj = skewAdjust(d.bitWait, d.cfg.SamplesPerBit)

	if verbosity > 2 {
		logger.Debug("transition", "skew_samples", adj)
	}

	if d.lineIdle {
		d.lineIdle = false
	} else {
		if adj >= 0 {
			d.totalSkew += adj
		} else {
			d.totalSkew -= adj
		}
		d.numTransitions++

		if adj > 0 {
			adj = adj/SkewCorrectFactor + 1
		} else if adj < 0 {
			adj = adj/SkewCorrectFactor - 1
		}
	}

	if verbosity > 2 {
		logger.Debug("adjusting", "samples", adj)
	}

	d.bitWait += adj
}

// skewAdjust computes the signed bit-clock error at an edge: positive
// when we sampled too early, negative when we are about to sample.
func skewAdjust(bitWait int, samplesPerBit int) int {
	if bitWait > samplesPerBit/2 {
		return samplesPerBit - bitWait
	}
	return -bitWait
}

func (d *Demodulator) latchBit(out int16) error {
	var outbit = d.phaseNeg
	if out > 0 {
		outbit = d.phasePos
	}
	if verbosity > 3 {
		logger.Debug("read bit", "bit", outbit)
	}

	d.outShift <<= 1
	d.outShift += outbit

	// If the shift register is all ones or all zeros, the line is
	// holding a constant tone.
	if !d.lineIdle && (d.outShift == -1 || d.outShift == 0) {
		d.lineIdle = true
		if verbosity > 1 {
			logger.Debug("line idle", "shift", uint32(d.outShift))
		}
	}

	if d.lineIdle {
		// Nothing
	} else {
		d.frameHold--
		switch {
		case d.frameHold > 0:
			if verbosity > 2 {
				logger.Debug("frame hold", "left", d.frameHold)
			}
		case d.outShift&d.ff.FrameMask == d.ff.FramePattern:
			if err := d.processFrame(); err != nil {
				return err
			}
		default:
			if verbosity > 2 {
				logger.Debug("waiting for a valid frame")
			}
		}
	}

	// If the line is in idle state, reset the skew and transition
	// count.  The reseed keeps one bit beyond the frame size: the
	// previous stop / idle overlap bit.
	if d.lineIdle {
		d.outShift &= (2 << uint(d.ff.FrameSize)) - 1
		d.totalSkew = 0
		d.numTransitions = 0
		d.frameHold = d.ff.FrameSize - 1
		if d.errTimeout > 0 {
			d.errTimeout--
		} else {
			d.errCount = 0
		}
	}

	d.bitWait += d.cfg.SamplesPerBit

	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	processFrame
 *
 * Purpose:	Handle a shift register matching the frame pattern.
 *
 * Description:	A frame with average skew beyond the limit is dropped
 *		as untrustworthy.  Otherwise the data byte is extracted
 *		and parity checked.  Errors accumulate with hysteresis:
 *		once ErrorLimit frames in a row have faulted, output is
 *		suppressed until the counter decays, so a lost carrier
 *		does not spray garbage.  Each clean frame pays one
 *		error back.
 *
 *---------------------------------------------------------------*/

func (d *Demodulator) processFrame() error {
	// We can't measure skew of a frame with no observed transitions.
	var avgSkew = 0
	if d.numTransitions > 0 {
		avgSkew = d.totalSkew / d.numTransitions
	}

	// Set line idle as we don't want to rehandle this frame.
	d.lineIdle = true

	if avgSkew > d.cfg.MaxSkew {
		if verbosity > 1 {
			logger.Debug("dropping frame with high skew", "avg_skew", avgSkew, "max_skew", d.cfg.MaxSkew)
		}
		d.errCount++
		d.errTimeout = 10 * d.ff.FrameSize
		return nil
	}

	var data, parityOK = extractFrame(d.ff, d.outShift)

	if verbosity > 1 {
		logger.Debug("processing frame",
			"shift", uint32(d.outShift)&(1<<uint(d.ff.FrameSize+1)-1),
			"avg_skew", avgSkew)
	}

	if !parityOK {
		if verbosity > 1 {
			logger.Debug("dropping frame with bad parity")
		}
		var suppressed = d.errCount >= ErrorLimit
		d.errCount++
		d.errTimeout = 10 * d.ff.FrameSize
		if !suppressed && d.cfg.ErrChar != 0 {
			return d.emit(d.cfg.ErrChar)
		}
		return nil
	}

	if d.errCount > 0 {
		d.errCount--
	}

	if d.errCount >= ErrorLimit {
		if verbosity > 1 {
			logger.Debug("dropping apparently valid frame due to errors")
		}
		return nil
	}

	if verbosity > 1 {
		logger.Debug("got byte", "byte", data)
	}

	return d.emit(data)
}

func (d *Demodulator) emit(b byte) error {
	var _, err = d.out.Write([]byte{b})
	return err
}

// writeMonitor interleaves the eight working buffers sample by sample
// as native-endian int16, one record per input sample.
func (d *Demodulator) writeMonitor(n int) error {
	var bufs = [8][]int16{
		d.bufIn, d.bufI, d.bufQ, d.bufAng,
		d.bufWork, d.bufOut, d.bufSign, d.bufTiming,
	}

	var rec [16]byte
	for i := 0; i < n; i++ {
		for j, b := range bufs {
			binary.NativeEndian.PutUint16(rec[2*j:], uint16(b[i]))
		}
		if _, err := d.monitor.Write(rec[:]); err != nil {
			return err
		}
	}

	return nil
}
