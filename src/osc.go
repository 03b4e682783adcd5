package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Numerically controlled oscillator.
 *
 *		An integer phase accumulator indexing the shared sine
 *		table.  With a table length equal to the sample rate,
 *		the frequency field is directly in Hz.
 *
 *---------------------------------------------------------------*/

type Osc struct {
	table  *SineTable
	FreqHz int
	phase  int
}

func NewOsc(table *SineTable, freqhz int) *Osc {
	return &Osc{
		table:  table,
		FreqHz: freqhz,
	}
}

// GetSamples writes len(out) samples, advancing the phase.
func (o *Osc) GetSamples(out []int16) {
	o.table.getSamples(&o.phase, o.FreqHz, out)
}

/*------------------------------------------------------------------
 *
 * Name:	GetComplexSamples
 *
 * Purpose:	Generate an I/Q pair of sample streams.
 *
 * Description:	The stored phase is the Q (sine) phase, so the sine
 *		channel is exactly continuous across calls.  The I
 *		(cosine) phase is reconstructed a quarter wave ahead
 *		each call and not persisted.
 *
 *---------------------------------------------------------------*/

func (o *Osc) GetComplexSamples(iOut []int16, qOut []int16) {
	var iPhase = (o.phase + o.table.Len()/4) % o.table.Len()

	o.table.getSamples(&iPhase, o.FreqHz, iOut)
	o.table.getSamples(&o.phase, o.FreqHz, qOut)
}
