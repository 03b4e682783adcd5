package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	FSK modulator.
 *
 *		Reads bytes from a non-blocking source, builds serial
 *		frames and clocks them out of a shift register, one bit
 *		period at a time, switching the oscillator between the
 *		mark and space tones.  The line rests at mark, starting
 *		with a full second of leader tone so the far end can
 *		settle before the first start bit.
 *
 *---------------------------------------------------------------*/

// ByteSource supplies bytes to transmit without blocking: ok is false
// when nothing is available right now.
type ByteSource interface {
	ReadByte() (b byte, ok bool)
}

type Modulator struct {
	cfg ModemConfig
	ff  *FrameFormat
	osc *Osc
	src ByteSource

	outShift     int32
	bitsInBuffer int
	leader       int // Mark leader samples still to send
}

func NewModulator(table *SineTable, cfg ModemConfig, src ByteSource) *Modulator {
	return &Modulator{
		cfg:    cfg,
		ff:     cfg.Format,
		osc:    NewOsc(table, cfg.MarkFreqHz),
		src:    src,
		leader: cfg.SampleRate, // At least 1s leader tone
	}
}

/*------------------------------------------------------------------
 *
 * Name:	NextBlock
 *
 * Purpose:	Produce one bit period of audio.
 *
 * Inputs:	out	- Buffer of SamplesPerBit samples to fill.
 *
 * Description:	When the shift register runs dry, one byte is pulled
 *		from the source and framed: fixed pattern, parity,
 *		data reversed for LSB-first formats, then the whole
 *		register shifted up so the first transmitted bit sits
 *		at bit 31.  With nothing to send the line holds mark.
 *
 *---------------------------------------------------------------*/

func (m *Modulator) NextBlock(out []int16) {
	if m.leader > 0 {
		m.leader -= len(out)
		m.osc.FreqHz = m.cfg.MarkFreqHz
		m.osc.GetSamples(out)
		return
	}

	// Time for another byte?
	if m.bitsInBuffer < 1 {
		if b, ok := m.src.ReadByte(); ok {
			m.outShift = makeFrame(m.ff, b)
			m.bitsInBuffer = m.ff.FrameSize

			if verbosity > 1 {
				logger.Debug("frame for input",
					"byte", b,
					"frame", uint32(m.outShift)&(1<<uint(m.ff.FrameSize+1)-1))
			}

			// Shift the frame to the top of the word.
			m.outShift <<= uint(32 - m.ff.FrameSize)
		}
	}

	if m.bitsInBuffer > 0 {
		// Get next bit
		if uint32(m.outShift)&0x80000000 != 0 {
			m.osc.FreqHz = m.cfg.MarkFreqHz
		} else {
			m.osc.FreqHz = m.cfg.SpaceFreqHz
		}

		m.outShift <<= 1
		m.bitsInBuffer--
	} else {
		m.osc.FreqHz = m.cfg.MarkFreqHz // Idle
	}

	m.osc.GetSamples(out)
}
