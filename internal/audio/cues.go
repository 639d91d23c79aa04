// Package audio plays a short synthesized cue on each state entry.
package audio

import (
	"time"

	"sphero-behavior/internal/models"

	"github.com/gopxl/beep"
)

// SampleRate of every cue.
const SampleRate = beep.SampleRate(44100)

// Note frequencies in Hz.
const (
	noteC4 = 261.63
	noteE4 = 329.63
	noteG4 = 392.00
	noteA5 = 880.00
	noteC6 = 1046.50
	noteE6 = 1318.51
	noteG6 = 1567.98
)

// Cue returns a fresh streamer for state, or nil when the state is silent.
func Cue(state models.State) beep.Streamer {
	switch state {
	case models.StateSleep:
		return lullaby(SampleRate)
	case models.StatePatrol:
		return alert(SampleRate)
	case models.StateAngry:
		return growl(SampleRate)
	case models.StateSatisfied:
		return chirp(SampleRate)
	default:
		return nil
	}
}

// CueLength is the duration of the cue for state; 0 when silent.
func CueLength(state models.State) time.Duration {
	switch state {
	case models.StateSleep:
		return 3 * lullabyNote
	case models.StatePatrol:
		return 2*alertBeep + alertGap
	case models.StateAngry:
		return growlLength
	case models.StateSatisfied:
		return 3 * chirpNote
	default:
		return 0
	}
}

const (
	lullabyNote = 350 * time.Millisecond
	alertBeep   = 90 * time.Millisecond
	alertGap    = 60 * time.Millisecond
	growlLength = 600 * time.Millisecond
	chirpNote   = 80 * time.Millisecond
)

// lullaby: falling G4 E4 C4.
func lullaby(rate beep.SampleRate) beep.Streamer {
	return gain(beep.Seq(
		note(noteG4, lullabyNote, WaveSine, rate),
		note(noteE4, lullabyNote, WaveSine, rate),
		note(noteC4, lullabyNote, WaveSine, rate),
	), 0.35)
}

// alert: two short square beeps.
func alert(rate beep.SampleRate) beep.Streamer {
	return gain(beep.Seq(
		note(noteA5, alertBeep, WaveSquare, rate),
		rest(alertGap, rate),
		note(noteA5, alertBeep, WaveSquare, rate),
	), 0.25)
}

// growl: low saw with a little noise on top.
func growl(rate beep.SampleRate) beep.Streamer {
	body := Shape(Tone(90, growlLength, WaveSaw, rate), growlLength, 40*time.Millisecond, 200*time.Millisecond, rate)
	grit := Shape(Tone(0, growlLength, WaveNoise, rate), growlLength, 40*time.Millisecond, 300*time.Millisecond, rate)
	return gain(beep.Mix(gain(body, 0.8), gain(grit, 0.2)), 0.4)
}

// chirp: rising C6 E6 G6.
func chirp(rate beep.SampleRate) beep.Streamer {
	return gain(beep.Seq(
		note(noteC6, chirpNote, WaveSine, rate),
		note(noteE6, chirpNote, WaveSine, rate),
		note(noteG6, chirpNote, WaveSine, rate),
	), 0.3)
}
