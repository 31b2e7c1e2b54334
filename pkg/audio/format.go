package audio

import "time"

// Format describes the sample rate and channel count of a signed 16-bit PCM
// stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the data rate of the format. Zero for an unset format.
func (f Format) BytesPerSecond() int {
	ch := max(f.Channels, 1)
	return f.SampleRate * ch * 2
}

// Duration returns the playback length of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
