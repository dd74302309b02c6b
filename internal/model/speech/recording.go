package speech

import "time"

// Recording is one clip captured by the page recorder.
type Recording struct {
	ID       string        `json:"id"`
	Audio    []byte        `json:"-"`
	Format   string        `json:"format"`
	Duration time.Duration `json:"duration"`
}

// Empty reports whether the recording carries no new audio. Empty recordings
// short-circuit the whole turn.
func (r Recording) Empty() bool {
	return r.Duration <= 0 || len(r.Audio) == 0
}
