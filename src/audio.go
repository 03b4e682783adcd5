package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Interface to the audio device, via portaudio.
 *
 *		The device callback runs on its own thread; a single
 *		producer / single consumer ring sits between it and the
 *		DSP loop, which sees a plain blocking read or write of
 *		16 bit signed mono PCM.
 *
 *		The ring holds 2 * latency worth of samples and starts
 *		half full of silence.  Input overflow drops samples but
 *		remembers how many, and the reader pays them back as
 *		silence, so the demodulator briefly sees zero signal
 *		but never misaligns in time.  Output underflow plays
 *		silence.  Both are counted and logged, never fatal.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

type AudioMode int

const (
	AudioRead AudioMode = iota
	AudioWrite
)

// SampleReader is a blocking source of PCM samples.  ReadSamples
// returns at least one sample unless the stream has ended.
type SampleReader interface {
	ReadSamples(buf []int16) (int, error)
}

// SampleWriter is a blocking sink for PCM samples.
type SampleWriter interface {
	WriteSamples(buf []int16) (int, error)
}

/* The ring proper, separated from the device for testing. */

type sampleRing struct {
	ch   chan int16
	done chan struct{}

	overflows  atomic.Int64 // Input samples dropped by the callback
	underflows atomic.Int64 // Output samples played as silence

	silenceDebt int // Reader-owned: silence still owed from drops
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{
		ch:   make(chan int16, capacity),
		done: make(chan struct{}),
	}
}

// prefillSilence half-fills the ring, the startup condition for both
// directions.
func (r *sampleRing) prefillSilence() {
	for i := 0; i < cap(r.ch)/2; i++ {
		r.ch <- 0
	}
}

// push is the input callback half: queue what fits, count the rest.
func (r *sampleRing) push(in []int16) {
	for _, s := range in {
		select {
		case r.ch <- s:
		default:
			r.overflows.Add(1)
		}
	}
}

// pull is the output callback half: play what we have, silence for
// the rest.
func (r *sampleRing) pull(out []int16) {
	for i := range out {
		select {
		case s := <-r.ch:
			out[i] = s
		default:
			out[i] = 0
			r.underflows.Add(1)
		}
	}
}

func (r *sampleRing) ReadSamples(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	var n = 0

	// Pay back dropped samples as silence first, keeping the sample
	// count aligned with real time.
	var owed = r.overflows.Swap(0)
	r.silenceDebt += int(owed)
	for n < len(buf) && r.silenceDebt > 0 {
		buf[n] = 0
		n++
		r.silenceDebt--
	}

	if n == 0 {
		select {
		case s := <-r.ch:
			buf[0] = s
			n = 1
		case <-r.done:
			return 0, io.EOF
		}
	}

	// Drain whatever else is ready without blocking.
	for n < len(buf) {
		select {
		case s := <-r.ch:
			buf[n] = s
			n++
		default:
			return n, nil
		}
	}

	return n, nil
}

func (r *sampleRing) WriteSamples(buf []int16) (int, error) {
	for n, s := range buf {
		select {
		case r.ch <- s:
		case <-r.done:
			return n, io.ErrClosedPipe
		}
	}
	return len(buf), nil
}

func (r *sampleRing) close() {
	close(r.done)
}

/* The device. */

type AudioIO struct {
	mode   AudioMode
	ring   *sampleRing
	stream *portaudio.Stream
	once   sync.Once
}

/*------------------------------------------------------------------
 *
 * Name:	OpenAudio
 *
 * Purpose:	Open an audio stream for reading or writing.
 *
 * Inputs:	device	- Device name substring, or "" for the default.
 *
 *		sampleRate - In Hz.
 *
 *		latencyMS  - Requested device latency; also sizes the
 *			     ring at 2 * latency worth of samples.
 *
 *		mode	- AudioRead or AudioWrite.
 *
 *---------------------------------------------------------------*/

func OpenAudio(device string, sampleRate int, latencyMS int, mode AudioMode) (*AudioIO, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	var a = &AudioIO{
		mode: mode,
		ring: newSampleRing(2 * latencyMS * sampleRate / 1000),
	}

	var dev, err = findDevice(device, mode)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	var params portaudio.StreamParameters
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = portaudio.FramesPerBufferUnspecified

	var devParams = portaudio.StreamDeviceParameters{
		Device:   dev,
		Channels: 1,
		Latency:  time.Duration(latencyMS) * time.Millisecond,
	}

	if mode == AudioRead {
		params.Input = devParams
		a.stream, err = portaudio.OpenStream(params, a.ring.push)
	} else {
		params.Output = devParams
		a.stream, err = portaudio.OpenStream(params, a.ring.pull)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening audio stream: %w", err)
	}

	a.ring.prefillSilence()

	if err := a.stream.Start(); err != nil {
		a.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting audio stream: %w", err)
	}

	logger.Debug("audio stream open",
		"device", dev.Name,
		"rate_hz", sampleRate,
		"latency_ms", latencyMS,
		"ring_samples", cap(a.ring.ch))

	return a, nil
}

func findDevice(name string, mode AudioMode) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if mode == AudioRead {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	var devs, err = portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing audio devices: %w", err)
	}

	for _, d := range devs {
		if !strings.Contains(d.Name, name) {
			continue
		}
		if mode == AudioRead && d.MaxInputChannels < 1 {
			continue
		}
		if mode == AudioWrite && d.MaxOutputChannels < 1 {
			continue
		}
		return d, nil
	}

	return nil, fmt.Errorf("no %s audio device matching %q", direction(mode), name)
}

func direction(mode AudioMode) string {
	if mode == AudioRead {
		return "input"
	}
	return "output"
}

func (a *AudioIO) ReadSamples(buf []int16) (int, error) {
	return a.ring.ReadSamples(buf)
}

func (a *AudioIO) WriteSamples(buf []int16) (int, error) {
	return a.ring.WriteSamples(buf)
}

// Close tears the stream down.  Safe to call from a signal handler
// goroutine while the DSP loop is blocked on the ring; a blocked
// read returns io.EOF, a blocked write io.ErrClosedPipe.
func (a *AudioIO) Close() error {
	var err error
	a.once.Do(func() {
		a.ring.close()

		if stopErr := a.stream.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		if closeErr := a.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		portaudio.Terminate()

		if n := a.ring.overflows.Load(); n > 0 {
			logger.Info("audio input overflowed", "samples_dropped", n)
		}
		if n := a.ring.underflows.Load(); n > 0 {
			logger.Info("audio output underflowed", "samples_silenced", n)
		}
	})
	return err
}
