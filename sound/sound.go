package sound

import "context"

// Player renders a single clip.
type Player interface {
	// Play blocks until the clip has been fully rendered. Once ctx is
	// cancelled it must stop audio output immediately and return.
	Play(ctx context.Context, clip string) error
}

// Device is a Player backed by an audio system that needs setup and teardown.
type Device interface {
	Player

	// Initialize initializes the audio playback system
	Initialize() error

	// Terminate terminates the audio playback system
	Terminate()
}
