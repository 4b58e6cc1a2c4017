// Package audio plays the short attention cue that accompanies a new
// alert. Playback is fire-and-forget; failures are logged and swallowed.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Emitter produces the alert cue. Play must not block.
type Emitter interface {
	Play()
}

// Tone describes a sine beep whose gain decays exponentially from Gain
// to FloorGain over Duration
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Gain      float64
	FloorGain float64
}

// DefaultTone is 800 Hz for half a second, 0.3 decaying to 0.01
var DefaultTone = Tone{
	Frequency: 800,
	Duration:  500 * time.Millisecond,
	Gain:      0.3,
	FloorGain: 0.01,
}

// Samples renders the tone as mono 16-bit little-endian PCM
func (t Tone) Samples(sampleRate int) []byte {
	n := int(t.Duration.Seconds() * float64(sampleRate))
	if n <= 0 || t.Frequency <= 0 {
		return nil
	}
	data := make([]byte, n*2)

	gain, floor := t.Gain, t.FloorGain
	if floor <= 0 || floor > gain {
		floor = gain
	}
	total := t.Duration.Seconds()
	for i := range n {
		at := float64(i) / float64(sampleRate)
		g := gain
		if gain > 0 && floor < gain {
			// exponential ramp: g(0) = gain, g(total) = floor
			g = gain * math.Pow(floor/gain, at/total)
		}
		v := math.Sin(2*math.Pi*t.Frequency*at) * g
		sample := int16(v * math.MaxInt16)
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}

// WAV wraps Samples in a canonical RIFF header
func (t Tone) WAV(sampleRate int) []byte {
	pcm := t.Samples(sampleRate)
	const channels, bits = 1, 16
	byteRate := sampleRate * channels * bits / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], channels*bits/8)
	binary.LittleEndian.PutUint16(out[34:], bits)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// Beeper plays a Tone through the system beeper
type Beeper struct {
	tone   Tone
	logger zerolog.Logger
	beep   func(freq float64, durationMs int) error
	done   func() // test hook, called after each cue finishes
}

// NewBeeper creates a Beeper for tone
func NewBeeper(tone Tone, logger zerolog.Logger) *Beeper {
	return &Beeper{
		tone:   tone,
		logger: logger.With().Str("component", "audio").Logger(),
		beep:   beeep.Beep,
	}
}

// Play starts the cue in the background and returns immediately
func (b *Beeper) Play() {
	go b.play()
}

func (b *Beeper) play() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Str("panic", fmt.Sprint(r)).Msg("Audio cue panicked")
		}
		if b.done != nil {
			b.done()
		}
	}()

	if err := b.beep(b.tone.Frequency, int(b.tone.Duration.Milliseconds())); err != nil {
		b.logger.Warn().Err(err).Msg("Audio cue unavailable")
		return
	}
	b.logger.Debug().Float64("frequency", b.tone.Frequency).Dur("duration", b.tone.Duration).Msg("Played audio cue")
}

// Nop is the Emitter used when audio is disabled
type Nop struct{}

func (Nop) Play() {}
