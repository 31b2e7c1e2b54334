// Package audio holds the PCM helpers shared by the playback and provider
// packages.
package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a streaming producer (e.g., a TTS
// audio channel) must be released after playback was cut short.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
