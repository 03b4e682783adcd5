package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Command line front end for the V.23 softmodem.
 *
 *		Demodulates the backward channel by default.  Decoded
 *		bytes go to stdout; all diagnostics go to stderr.  In
 *		monitor mode stdout instead carries the interleaved
 *		debug sample stream and decoded bytes move to stderr.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func V23Main() {
	var amplitudeDB = pflag.Float64P("amplitude", "A", 0, "Modulation amplitude in dB below full scale, e.g. -A3 for -3dBFS.")
	var channelName = pflag.StringP("channel", "c", "b", "Channel: f = forward (1200 Bd), b = backward (75 Bd), or a name from --config.")
	var mode = pflag.StringP("mode", "m", "d", "Mode: m = modulate, d = demodulate.")
	var debug = pflag.CountP("debug", "d", "Verbose output.  Repeat for more detail.")
	var quiet = pflag.BoolP("quiet", "q", false, "Errors only.")
	var sampleRate = pflag.IntP("sample-rate", "r", DefaultSampleRate, "Audio sample rate in Hz.")
	var errCharStr = pflag.StringP("error-char", "e", "", "Character to output in place of a frame with bad parity.")
	var framePattern = pflag.StringP("frame-format", "f", DefaultFrameFormat, "Frame format: 0/1 fixed bits, d/D data (lsb/msb first), p/P odd/even parity.")
	var monitor = pflag.BoolP("monitor", "M", false, "Write the 8-channel debug sample stream to stdout; decoded bytes go to stderr.")
	var device = pflag.StringP("device", "D", "", "Audio device name, or empty for the default.")
	var latency = pflag.IntP("latency", "L", DefaultAudioLatency, "Audio latency in milliseconds.")
	var configFile = pflag.String("config", "", "YAML file of additional channel profiles.")
	var usePty = pflag.Bool("pty", false, "Put a pseudo-terminal on the line instead of stdin/stdout.")
	var logDir = pflag.String("log-dir", "", "Also append decoded bytes to daily transcript files in this directory.")

	pflag.Parse()

	SetVerbosity(*debug, *quiet)

	var demodulate bool
	switch *mode {
	case "d":
		demodulate = true
	case "m":
		demodulate = false
	default:
		logger.Fatal("use -mm to modulate or -md to demodulate", "mode", *mode)
	}

	var amplitude = 32767.0
	if *amplitudeDB > 0 {
		amplitude = 32767.0 / math.Pow(10.0, *amplitudeDB/20.0)
		logger.Info("set amplitude", "db_below_fs", *amplitudeDB, "peak", amplitude)
	}
	// Demodulation expects a full-scale local oscillator.
	if demodulate {
		amplitude = 32767.0
	}

	var channels = BuiltinChannels()
	if *configFile != "" {
		var extra, err = LoadChannelProfiles(*configFile)
		if err != nil {
			logger.Fatal("loading channel profiles", "error", err)
		}
		for name, p := range extra {
			channels[name] = p
		}
	}

	var profile, known = channels[*channelName]
	if !known {
		logger.Fatal("unknown channel", "channel", *channelName)
	}

	var format, err = CompileFrameFormat(*framePattern, 1)
	if err != nil {
		logger.Fatal("bad frame format", "error", err)
	}

	cfg, err := NewModemConfig(profile, *sampleRate, format)
	if err != nil {
		logger.Fatal("bad configuration", "error", err)
	}
	if *errCharStr != "" {
		cfg.ErrChar = (*errCharStr)[0]
	}

	modem, err := NewModem(cfg, amplitude)
	if err != nil {
		logger.Fatal("initializing modem", "error", err)
	}

	modem.LogConfig(demodulate, *channelName, *framePattern)

	var audioMode = AudioWrite
	if demodulate {
		audioMode = AudioRead
	}
	audio, err := OpenAudio(*device, *sampleRate, *latency, audioMode)
	if err != nil {
		logger.Fatal("failed to open the audio device", "error", err)
	}
	defer audio.Close()

	var endpoint *PtyEndpoint
	if *usePty {
		if endpoint, err = OpenPtyEndpoint(); err != nil {
			logger.Fatal("failed to open a pty", "error", err)
		}
		defer endpoint.Close()
		logger.Info("pty on the line", "path", endpoint.Name())
	}

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		var s = <-sigs
		logger.Info("caught signal, shutting down", "signal", s)
		modem.RequestStop()
		audio.Close() // Unblocks the DSP loop.
	}()

	if demodulate {
		err = runDemodulate(modem, audio, endpoint, *monitor, *logDir)
	} else {
		err = runModulate(modem, audio, endpoint)
	}
	if err != nil {
		logger.Fatal("modem stopped", "error", err)
	}
}

func runDemodulate(modem *Modem, audio *AudioIO, endpoint *PtyEndpoint, monitor bool, logDir string) error {
	var byteOut io.Writer = os.Stdout
	var monitorOut io.Writer

	if monitor {
		// Sample stream owns stdout; bytes move aside.
		byteOut = os.Stderr
		var bw = bufio.NewWriter(os.Stdout)
		defer bw.Flush()
		monitorOut = bw
	}

	if endpoint != nil {
		byteOut = endpoint
	}

	if logDir != "" {
		var transcript, err = NewTranscriptWriter(logDir)
		if err != nil {
			return err
		}
		defer transcript.Close()
		byteOut = io.MultiWriter(byteOut, transcript)
	}

	return modem.Demodulate(audio, byteOut, monitorOut)
}

func runModulate(modem *Modem, audio *AudioIO, endpoint *PtyEndpoint) error {
	var src ByteSource
	var err error

	if endpoint != nil {
		src, err = endpoint.Source()
	} else {
		src, err = NewFDByteSource(os.Stdin)
	}
	if err != nil {
		return err
	}

	return modem.Modulate(src, audio)
}
