// Package audio defines the PCM primitives shared by the capture and
// playback paths: stream formats, format conversion, and the WAV
// container writer used when a finished take is flushed to storage.
package audio

import "time"

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns the play time of n PCM bytes in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// BytesPerSecond returns the byte rate of the format (int16 samples).
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}
