package router

import (
	"io"
	"os"
	"sync"
)

// Chime plays the audio cue for a new notification.
type Chime interface {
	Play() error
}

// Preferences exposes the user's sound alert setting.
type Preferences interface {
	SoundEnabled() bool
}

// BellChime rings the terminal bell on w.
type BellChime struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellChime returns a chime writing BEL to w, or to stderr when w is nil.
func NewBellChime(w io.Writer) *BellChime {
	if w == nil {
		w = os.Stderr
	}
	return &BellChime{w: w}
}

// Play writes a single BEL byte.
func (c *BellChime) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write([]byte{'\a'})
	return err
}

// ChimeFunc adapts a function to Chime.
type ChimeFunc func() error

// Play calls f.
func (f ChimeFunc) Play() error { return f() }
