package v23

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
 * End to end exercises: modulated audio fed straight back into the
 * demodulator at matching configuration.  The backward channel (75
 * baud) keeps the sample counts manageable.
 */

// modulateBytes runs the real modulator over the queued bytes and
// returns its audio, including the one second leader and a trailing
// second of mark to flush the receive filters.
func modulateBytes(t *testing.T, cfg ModemConfig, table *SineTable, data []byte) []int16 {
	t.Helper()

	var mod = NewModulator(table, cfg, &queueSource{data: data})

	var leaderBlocks = cfg.SampleRate / cfg.SamplesPerBit
	var blocks = leaderBlocks + len(data)*cfg.Format.FrameSize + leaderBlocks

	var out = make([]int16, 0, blocks*cfg.SamplesPerBit)
	var block = make([]int16, cfg.SamplesPerBit)
	for i := 0; i < blocks; i++ {
		mod.NextBlock(block)
		out = append(out, block...)
	}
	return out
}

// bitsToAudio clocks raw bits out at the given bit period, bracketed
// by mark leader and tail, for frames the modulator would not send.
func bitsToAudio(t *testing.T, cfg ModemConfig, table *SineTable, bits []int, samplesPerBit int, leadBits int, tailBits int) []int16 {
	t.Helper()

	var o = NewOsc(table, cfg.MarkFreqHz)
	var out = make([]int16, 0, (leadBits+len(bits)+tailBits)*samplesPerBit)
	var block = make([]int16, samplesPerBit)

	var emit = func(freqhz int, n int) {
		o.FreqHz = freqhz
		for i := 0; i < n; i++ {
			o.GetSamples(block)
			out = append(out, block...)
		}
	}

	emit(cfg.MarkFreqHz, leadBits)
	for _, b := range bits {
		if b != 0 {
			emit(cfg.MarkFreqHz, 1)
		} else {
			emit(cfg.SpaceFreqHz, 1)
		}
	}
	emit(cfg.MarkFreqHz, tailBits)

	return out
}

// frameBits expands a compiled frame value into transmission order.
func frameBits(ff *FrameFormat, frame int32) []int {
	var bits = make([]int, ff.FrameSize)
	var sh = frame << uint(32-ff.FrameSize)
	for i := range bits {
		if uint32(sh)&0x80000000 != 0 {
			bits[i] = 1
		}
		sh <<= 1
	}
	return bits
}

func demodulateAll(t *testing.T, cfg ModemConfig, table *SineTable, samples []int16) []byte {
	t.Helper()

	var buf bytes.Buffer
	var d, err = NewDemodulator(table, cfg, &buf)
	require.NoError(t, err)
	require.NoError(t, d.Process(samples))
	return buf.Bytes()
}

func TestRoundTripBackwardChannel(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var audio = modulateBytes(t, cfg, table, []byte("Hi"))

	// At least one second of leader plus two frames of payload.
	assert.GreaterOrEqual(t, len(audio), cfg.SampleRate+2*cfg.Format.FrameSize*cfg.SamplesPerBit)

	assert.Equal(t, []byte("Hi"), demodulateAll(t, cfg, table, audio))
}

func TestRoundTripForwardChannel(t *testing.T) {
	var ff, err = CompileFrameFormat(DefaultFrameFormat, 1)
	require.NoError(t, err)
	cfg, err := NewModemConfig(BuiltinChannels()["f"], DefaultSampleRate, ff)
	require.NoError(t, err)
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var audio = modulateBytes(t, cfg, table, []byte("Hi"))

	assert.Equal(t, []byte("Hi"), demodulateAll(t, cfg, table, audio))
}

func TestRoundTripAllValuesEightBitNoParity(t *testing.T) {
	var cfg = backwardTestConfig(t, "10dddddddd1")
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var data = make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}

	var audio = modulateBytes(t, cfg, table, data)

	assert.Equal(t, data, demodulateAll(t, cfg, table, audio))
}

func TestParityErrorEmitsErrorCharacter(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	cfg.ErrChar = 'X'
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var bad = makeFrame(cfg.Format, 0x41) ^ cfg.Format.ParityMask
	var audio = bitsToAudio(t, cfg, table, frameBits(cfg.Format, bad), cfg.SamplesPerBit, 75, 75)

	assert.Equal(t, []byte("X"), demodulateAll(t, cfg, table, audio))
}

func TestErrorLimitSuppressesOutput(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	cfg.ErrChar = 'X'
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var bad = frameBits(cfg.Format, makeFrame(cfg.Format, 0x41)^cfg.Format.ParityMask)
	var bits []int
	for i := 0; i < 4; i++ {
		bits = append(bits, bad...)
	}
	var audio = bitsToAudio(t, cfg, table, bits, cfg.SamplesPerBit, 75, 75)

	// Three faults report; the fourth crosses the error limit and is
	// swallowed.
	assert.Equal(t, []byte("XXX"), demodulateAll(t, cfg, table, audio))
}

func TestIdleResyncRecoversAfterErrors(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	cfg.ErrChar = 'X'
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var bad = frameBits(cfg.Format, makeFrame(cfg.Format, 0x41)^cfg.Format.ParityMask)
	var good = frameBits(cfg.Format, makeFrame(cfg.Format, 0x42))

	var bits []int
	for i := 0; i < 3; i++ {
		bits = append(bits, bad...)
	}
	// One second of mark, then a clean frame.
	for i := 0; i < 75; i++ {
		bits = append(bits, 1)
	}
	bits = append(bits, good...)

	var audio = bitsToAudio(t, cfg, table, bits, cfg.SamplesPerBit, 75, 75)

	assert.Equal(t, []byte("XXXB"), demodulateAll(t, cfg, table, audio))
}

/*
 * Bit clock skew.  Stretching the bit period while keeping the tones
 * on frequency models a slow sender clock.  A 5% stretch is inside
 * what the correction loop can track; at 25% the accumulated skew
 * trips the quality gate and the frame is dropped.
 */

func TestSkewToleratedWhenSmall(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var bits = frameBits(cfg.Format, makeFrame(cfg.Format, 0x41))
	var stretched = cfg.SamplesPerBit * 105 / 100

	var audio = bitsToAudio(t, cfg, table, bits, stretched, 75, 75)

	assert.Equal(t, []byte{0x41}, demodulateAll(t, cfg, table, audio))
}

func TestSkewRejectedWhenLarge(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	cfg.ErrChar = 'X'
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var bits = frameBits(cfg.Format, makeFrame(cfg.Format, 0x41))
	var stretched = cfg.SamplesPerBit * 125 / 100

	var audio = bitsToAudio(t, cfg, table, bits, stretched, 75, 75)

	assert.Empty(t, demodulateAll(t, cfg, table, audio))
}

func TestAllStopsPatternNeverLeavesIdle(t *testing.T) {
	var cfg = backwardTestConfig(t, "1111111111")
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var o = NewOsc(table, cfg.MarkFreqHz)
	var audio = make([]int16, 3*cfg.SampleRate)
	o.GetSamples(audio)

	assert.Empty(t, demodulateAll(t, cfg, table, audio))
}

func TestSilenceProducesNothing(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	var table = testTable(t, 32767.0, cfg.SampleRate)

	assert.Empty(t, demodulateAll(t, cfg, table, make([]int16, 2*cfg.SampleRate)))
}

// The raw edge error from the adjustment formula points the right way
// and never exceeds half a bit period.
func TestSkewAdjustBounds(t *testing.T) {
	var spb = 588
	for bitWait := 0; bitWait <= spb; bitWait++ {
		var adj = skewAdjust(bitWait, spb)
		if bitWait > spb/2 {
			assert.Equal(t, spb-bitWait, adj)
			assert.GreaterOrEqual(t, adj, 0)
		} else {
			assert.Equal(t, -bitWait, adj)
			assert.LessOrEqual(t, adj, 0)
		}
		assert.LessOrEqual(t, abs(adj), spb/2)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestMonitorStreamShape(t *testing.T) {
	var cfg = backwardTestConfig(t, DefaultFrameFormat)
	var table = testTable(t, 32767.0, cfg.SampleRate)

	var sink bytes.Buffer
	var d, err = NewDemodulator(table, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	d.SetMonitor(&sink)

	var in = make([]int16, 1500)
	require.NoError(t, d.Process(in))

	// Eight interleaved int16 channels per input sample.
	assert.Equal(t, 1500*8*2, sink.Len())
}
