package repositories

// AudioPlayer plays a single decoded clip
type AudioPlayer interface {
	// Play starts playback and calls done exactly once when the clip ends or fails,
	// unless the returned Playback is stopped first.
	Play(clip []byte, done func(err error)) (Playback, error)
}

// Playback is an in-flight clip. Stop is safe after completion.
type Playback interface {
	Stop()
}
