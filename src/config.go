package v23

/*------------------------------------------------------------------
 *
 * Purpose:   	Modem configuration.
 *
 *		Combines the channel's tone frequencies, baud rate and
 *		filter placement with the sample rate and frame format.
 *		The two channels of ITU-T V.23 are built in; additional
 *		channel profiles may be declared in a YAML file.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleRate = 44100

	// V.23 forward channel: 1200 baud.
	ForwardMarkFreq  = 1300
	ForwardSpaceFreq = 2100
	ForwardBitRate   = 1200

	// V.23 backward channel: 75 baud.
	BackwardMarkFreq  = 390
	BackwardSpaceFreq = 450
	BackwardBitRate   = 75

	// The forward channel places its input filter null between the
	// backward channel's tones to reject them; the backward channel
	// places it just outside the band to suppress hum.
	ForwardFirstNull  = 1280
	BackwardFirstNull = 60

	SkewLimit         = 0.2
	SkewCorrectFactor = 3

	ErrorLimit = 3

	DefaultFrameFormat  = "10dddddddp1"
	DefaultAudioLatency = 100
)

type ModemConfig struct {
	SampleRate    int
	FirstNull     int
	MarkFreqHz    int
	SpaceFreqHz   int
	Format        *FrameFormat
	SamplesPerBit int
	MaxSkew       int
	ErrChar       byte
}

/*------------------------------------------------------------------
 *
 * Name:	NewModemConfig
 *
 * Purpose:	Derive the per-channel modem parameters.
 *
 * Inputs:	profile		- Tone frequencies, baud rate and
 *				  filter null placement.
 *
 *		sampleRate	- Audio sample rate in Hz.
 *
 *		format		- Compiled frame format.
 *
 *---------------------------------------------------------------*/

func NewModemConfig(profile ChannelProfile, sampleRate int, format *FrameFormat) (ModemConfig, error) {
	if err := profile.Validate(); err != nil {
		return ModemConfig{}, err
	}
	if sampleRate < profile.Baud {
		return ModemConfig{}, fmt.Errorf("sample rate %d is below the baud rate %d", sampleRate, profile.Baud)
	}
	if sampleRate < profile.FirstNull {
		return ModemConfig{}, fmt.Errorf("sample rate %d cannot place a filter null at %d Hz", sampleRate, profile.FirstNull)
	}

	return ModemConfig{
		SampleRate:    sampleRate,
		FirstNull:     profile.FirstNull,
		MarkFreqHz:    profile.Mark,
		SpaceFreqHz:   profile.Space,
		Format:        format,
		SamplesPerBit: sampleRate / profile.Baud,
		MaxSkew:       int(float64(sampleRate) * SkewLimit / float64(profile.Baud)),
	}, nil
}

// ChannelProfile describes one FSK channel.
type ChannelProfile struct {
	Mark      int `yaml:"mark"`
	Space     int `yaml:"space"`
	Baud      int `yaml:"baud"`
	FirstNull int `yaml:"firstnull"`
}

func (p ChannelProfile) Validate() error {
	if p.Mark <= 0 || p.Space <= 0 {
		return fmt.Errorf("channel tones must be positive, got mark %d space %d", p.Mark, p.Space)
	}
	if p.Mark == p.Space {
		return fmt.Errorf("mark and space tones are both %d Hz", p.Mark)
	}
	if p.Baud <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", p.Baud)
	}
	if p.FirstNull <= 0 {
		return fmt.Errorf("filter null must be positive, got %d Hz", p.FirstNull)
	}
	return nil
}

// BuiltinChannels returns the two V.23 channels under their short and
// long names.
func BuiltinChannels() map[string]ChannelProfile {
	var forward = ChannelProfile{
		Mark:      ForwardMarkFreq,
		Space:     ForwardSpaceFreq,
		Baud:      ForwardBitRate,
		FirstNull: ForwardFirstNull,
	}
	var backward = ChannelProfile{
		Mark:      BackwardMarkFreq,
		Space:     BackwardSpaceFreq,
		Baud:      BackwardBitRate,
		FirstNull: BackwardFirstNull,
	}

	return map[string]ChannelProfile{
		"f":        forward,
		"forward":  forward,
		"b":        backward,
		"backward": backward,
	}
}

type profileFile struct {
	Channels map[string]ChannelProfile `yaml:"channels"`
}

/*------------------------------------------------------------------
 *
 * Name:	LoadChannelProfiles
 *
 * Purpose:	Read additional channel profiles from a YAML file:
 *
 *			channels:
 *			  caller:
 *			    mark: 980
 *			    space: 1180
 *			    baud: 300
 *			    firstnull: 100
 *
 *---------------------------------------------------------------*/

func LoadChannelProfiles(path string) (map[string]ChannelProfile, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channel profiles: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parsing channel profiles %s: %w", path, err)
	}

	for name, p := range pf.Channels {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("channel %q in %s: %w", name, path, err)
		}
	}

	return pf.Channels, nil
}
