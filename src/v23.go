package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Top level orchestration of the V.23 softmodem.
 *
 *		A Modem owns the shared sine table and runs either the
 *		demodulate or modulate loop, block synchronous, until
 *		the sample stream ends or a stop is requested.  The
 *		stop flag is polled once per block, so an interrupt
 *		takes effect within one block of audio.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"io"
	"sync/atomic"
)

type Modem struct {
	cfg   ModemConfig
	table *SineTable
	quit  atomic.Bool
}

/*------------------------------------------------------------------
 *
 * Name:	NewModem
 *
 * Purpose:	Build the sine table and bind the configuration.
 *
 * Inputs:	cfg		- Modem configuration.
 *
 *		amplitude	- Peak output amplitude.  Demodulation
 *				  expects a full-scale table, 32767.
 *
 *---------------------------------------------------------------*/

func NewModem(cfg ModemConfig, amplitude float64) (*Modem, error) {
	var table, err = NewSineTable(amplitude, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	return &Modem{
		cfg:   cfg,
		table: table,
	}, nil
}

// RequestStop asks the running loop to finish after the current
// block.  Safe from any goroutine.
func (m *Modem) RequestStop() {
	m.quit.Store(true)
}

// LogConfig reports the resolved configuration, the way the modem
// has always announced itself on startup.
func (m *Modem) LogConfig(demodulate bool, channel string, pattern string) {
	var what = "modulating"
	if demodulate {
		what = "demodulating"
	}

	var ff = m.cfg.Format
	var parityName = "no"
	if ff.ParityEnable {
		parityName = "odd"
		if ff.ParityEven {
			parityName = "even"
		}
	}
	var order = "msb"
	if ff.LSBFirst {
		order = "lsb"
	}

	logger.Info(what, "channel", channel)
	logger.Info("tones", "mark_hz", m.cfg.MarkFreqHz, "space_hz", m.cfg.SpaceFreqHz)
	logger.Info("bit period", "samples", m.cfg.SamplesPerBit, "max_skew", m.cfg.MaxSkew)
	logger.Info("frame", "size", ff.FrameSize, "format", pattern)
	logger.Info("data", "bits", ff.DataSize, "first", order, "parity", parityName)
	logger.Info("sample rate", "hz", m.cfg.SampleRate)
}

/*------------------------------------------------------------------
 *
 * Name:	Demodulate
 *
 * Purpose:	Pull sample blocks from the input and run them through
 *		the demodulator until end of stream.
 *
 * Inputs:	in	- Sample source, normally the audio device.
 *
 *		out	- Decoded byte destination.
 *
 *		monitor	- Optional destination for the interleaved
 *			  debug stream; nil to disable.
 *
 *---------------------------------------------------------------*/

func (m *Modem) Demodulate(in SampleReader, out io.Writer, monitor io.Writer) error {
	var d, err = NewDemodulator(m.table, m.cfg, out)
	if err != nil {
		return err
	}
	if monitor != nil {
		d.SetMonitor(monitor)
	}

	logger.Info("initialized, processing samples")

	var buf = make([]int16, demodBlockSize)
	for !m.quit.Load() {
		var n, readErr = in.ReadSamples(buf)
		if n > 0 {
			if verbosity > 3 {
				logger.Debug("got samples", "n", n)
			}
			if err := d.Process(buf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}

	return nil
}

// Modulate reads bytes from the source and writes modulated audio
// until stopped.
func (m *Modem) Modulate(src ByteSource, out SampleWriter) error {
	var mod = NewModulator(m.table, m.cfg, src)

	logger.Info("initialized, generating samples")

	var block = make([]int16, m.cfg.SamplesPerBit)
	for !m.quit.Load() {
		mod.NextBlock(block)

		var written = 0
		for written < len(block) {
			var n, err = out.WriteSamples(block[written:])
			written += n
			if errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	return nil
}
