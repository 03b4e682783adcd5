package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Byte endpoints for the "phone line".
 *
 *		The modulator pulls bytes from a non-blocking file
 *		descriptor - normally stdin - so an empty input just
 *		leaves the line at mark.  The demodulator pushes bytes
 *		to stdout, or to stderr in monitor mode.
 *
 *		Alternatively a pseudo-terminal can sit on the line:
 *		we allocate a pty pair, print the slave path, and move
 *		bytes through the master, so an ordinary terminal
 *		program can talk over the modem.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// FDByteSource reads single bytes from a file descriptor in
// non-blocking mode.  End of file just reads as "nothing available",
// which leaves the modulator idling at mark.
type FDByteSource struct {
	fd int
}

func NewFDByteSource(f *os.File) (*FDByteSource, error) {
	var fd = int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("setting %s non-blocking: %w", f.Name(), err)
	}
	return &FDByteSource{fd: fd}, nil
}

func (s *FDByteSource) ReadByte() (byte, bool) {
	var b [1]byte
	var n, err = unix.Read(s.fd, b[:])
	if err != nil || n != 1 {
		return 0, false
	}
	return b[0], true
}

/*------------------------------------------------------------------
 *
 * Name:	PtyEndpoint
 *
 * Purpose:	A pseudo-terminal endpoint for the line.
 *
 *		The slave side is for the user's program; the master
 *		side is ours, readable without blocking for the
 *		modulator and writable for the demodulator.
 *
 *---------------------------------------------------------------*/

type PtyEndpoint struct {
	master *os.File
	tty    *os.File
}

func OpenPtyEndpoint() (*PtyEndpoint, error) {
	var master, tty, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("allocating pty: %w", err)
	}
	return &PtyEndpoint{master: master, tty: tty}, nil
}

// Name is the slave device path to hand to the user.
func (p *PtyEndpoint) Name() string {
	return p.tty.Name()
}

func (p *PtyEndpoint) Source() (ByteSource, error) {
	return NewFDByteSource(p.master)
}

func (p *PtyEndpoint) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *PtyEndpoint) Close() error {
	var err = p.master.Close()
	if ttyErr := p.tty.Close(); err == nil {
		err = ttyErr
	}
	return err
}
