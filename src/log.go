package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Diagnostics and the receive transcript.
 *
 *		All diagnostics go to stderr so they never mix with
 *		decoded bytes or the monitor stream on stdout.  The
 *		verbosity ladder follows the historical flags: -q for
 *		errors only, -d repeated for progressively noisier
 *		traces down to per-bit detail.
 *
 *		The transcript writer saves decoded bytes into daily
 *		files, named by a strftime pattern, for later reading.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

var logger = log.New(os.Stderr)

// verbosity is the raw -d count.  Levels above Debug gate the
// per-frame and per-bit traces, which are too hot for the logger's
// level check alone.
var verbosity int

func SetVerbosity(debug int, quiet bool) {
	verbosity = debug

	switch {
	case quiet:
		logger.SetLevel(log.ErrorLevel)
	case debug > 0:
		logger.SetLevel(log.DebugLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

/*------------------------------------------------------------------
 *
 * Name:	TranscriptWriter
 *
 * Purpose:	Append decoded bytes to a daily file in the given
 *		directory.  Files roll over at midnight local time.
 *
 *---------------------------------------------------------------*/

type TranscriptWriter struct {
	dir     string
	pattern *strftime.Strftime
	name    string
	f       *os.File
}

func NewTranscriptWriter(dir string) (*TranscriptWriter, error) {
	var info, err = os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("transcript directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("transcript path %s is not a directory", dir)
	}

	pattern, err := strftime.New("%Y-%m-%d.log")
	if err != nil {
		return nil, err
	}

	return &TranscriptWriter{
		dir:     dir,
		pattern: pattern,
	}, nil
}

func (t *TranscriptWriter) Write(p []byte) (int, error) {
	var name = t.pattern.FormatString(time.Now())

	if t.f == nil || name != t.name {
		if t.f != nil {
			t.f.Close()
			t.f = nil
		}

		var f, err = os.OpenFile(filepath.Join(t.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("opening transcript: %w", err)
		}

		t.f = f
		t.name = name
		logger.Debug("transcript file", "name", name)
	}

	return t.f.Write(p)
}

func (t *TranscriptWriter) Close() error {
	if t.f == nil {
		return nil
	}
	var err = t.f.Close()
	t.f = nil
	return err
}
