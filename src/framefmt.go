package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Serial character frame formats.
 *
 *		A frame is described by a pattern string scanned left
 *		to right, one character per bit in transmission order:
 *
 *			1	fixed one (stop / idle)
 *			0	fixed zero (start)
 *			d	data bit, LSB transmitted first
 *			D	data bit, MSB transmitted first
 *			p	odd parity bit
 *			P	even parity bit
 *
 *		The default "10dddddddp1" is a classic start bit, seven
 *		LSB-first data bits, odd parity and a stop bit, with the
 *		leading 1 observing the previous frame's stop or the
 *		idle line.
 *
 *		The pattern compiles to masks aligned so that after the
 *		receiver's left-shift-and-insert, the most recently
 *		received bit is the LSB of the shift register.
 *
 *---------------------------------------------------------------*/

import "fmt"

type FrameFormat struct {
	FrameSize    int   // Overall size of a frame, excluding the overlap bit
	FramePattern int32 // Pattern to look for, including previous idle / stop bit
	FrameMask    int32 // Mask to apply before checking for pattern
	ParityMask   int32 // Mask to apply to find parity bit
	ParityEnable bool  // Check parity at all?
	ParityEven   bool  // Even rather than odd parity
	DataOffset   int   // Number of bits after data
	DataMask     int32 // Mask to apply to get data bits
	DataSize     int   // Total number of data bits
	LSBFirst     bool  // Does lsb come first or last (endianism)
}

/*------------------------------------------------------------------
 *
 * Name:	CompileFrameFormat
 *
 * Purpose:	Compile a pattern string into bitmasks.
 *
 * Inputs:	pattern	- e.g. "10dddddddp1".
 *
 *		overlap	- Bits of the previous frame observed along
 *			  with this one.  Normal use is 1, to check the
 *			  previous stop / idle bit.
 *
 * Returns:	Compiled format, or a configuration error for an
 *		unknown character or an oversized frame.
 *
 *---------------------------------------------------------------*/

func CompileFrameFormat(pattern string, overlap int) (*FrameFormat, error) {
	var ff = &FrameFormat{
		FrameSize: -overlap,
		LSBFirst:  true,
	}

	for i := 0; i < len(pattern); i++ {
		var c = pattern[i]

		ff.FrameMask <<= 1
		ff.FramePattern <<= 1
		ff.ParityMask <<= 1
		ff.DataMask <<= 1
		ff.DataOffset++
		ff.FrameSize++

		switch c {
		case '1':
			ff.FrameMask |= 1
			ff.FramePattern |= 1
		case '0':
			ff.FrameMask |= 1
		case 'd', 'D':
			ff.DataMask |= 1
			ff.DataOffset = 0
			ff.DataSize++
			ff.LSBFirst = (c == 'd')
		case 'p', 'P':
			ff.ParityMask |= 1
			ff.ParityEnable = true
			ff.ParityEven = (c == 'P')
		default:
			return nil, fmt.Errorf("invalid frame format specifier in %s: %c", pattern, c)
		}
	}

	if ff.FrameSize > 31 {
		return nil, fmt.Errorf("frame format %s is %d bits, maximum is 31", pattern, ff.FrameSize)
	}
	if ff.DataSize > 8 {
		return nil, fmt.Errorf("frame format %s has %d data bits, maximum is 8", pattern, ff.DataSize)
	}

	return ff, nil
}

// parity reports whether an odd number of bits are set, by XOR folding.
func parity(v uint32) bool {
	v ^= v >> 16
	v ^= v >> 8
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 != 0
}

// reverseByte reverses the bit order of an 8 bit value.
// http://graphics.stanford.edu/~seander/bithacks.html#ReverseByteWith64BitsDiv
func reverseByte(v uint32) uint32 {
	return uint32((uint64(v) * 0x0202020202 & 0x010884422010) % 1023)
}

/*------------------------------------------------------------------
 *
 * Name:	makeFrame
 *
 * Purpose:	Build the shift register contents for one byte.
 *
 * Description:	Copies the fixed-bit pattern, truncates the byte to
 *		the data size, sets the parity bit when the data's bit
 *		parity does not already match the configured sense,
 *		reverses the data for LSB-first formats and drops it
 *		into position.
 *
 *---------------------------------------------------------------*/

func makeFrame(ff *FrameFormat, b byte) int32 {
	var shift = ff.FramePattern

	var data = uint32(b) & (1<<uint(ff.DataSize) - 1)

	if ff.ParityEnable && parity(data) == ff.ParityEven {
		// Set all parity bits if needed
		shift |= ff.ParityMask
	}

	if ff.LSBFirst {
		// No more than 8 data bits, so left-align in a byte first.
		data <<= uint(8 - ff.DataSize)
		data = reverseByte(data)
	}

	data <<= uint(ff.DataOffset)
	data &= uint32(ff.DataMask)

	shift |= int32(data)

	return shift
}

/*------------------------------------------------------------------
 *
 * Name:	extractFrame
 *
 * Purpose:	Recover the data byte from a matched shift register,
 *		and check parity.
 *
 * Returns:	The byte and whether the parity check passed (always
 *		true when the format has no parity bit).
 *
 *---------------------------------------------------------------*/

func extractFrame(ff *FrameFormat, shift int32) (byte, bool) {
	var frameData = uint32(shift) & (1<<uint(ff.FrameSize+1) - 1)

	var parityBit = frameData&uint32(ff.ParityMask) != 0
	var data = (frameData & uint32(ff.DataMask)) >> uint(ff.DataOffset)
	var dataParity = parity(data)

	// For odd parity, the expected bit is the inverse of the
	// data's parity.
	if !ff.ParityEven {
		dataParity = !dataParity
	}

	if ff.ParityEnable && dataParity != parityBit {
		return 0, false
	}

	if ff.LSBFirst {
		data <<= uint(8 - ff.DataSize)
		data = reverseByte(data)
	}

	return byte(data & 0xff), true
}
