// Package framehash notices when consecutive captures stop changing, which
// means scrolling has reached the end of the conversation.
package framehash

import (
	"image"
	"log"

	"github.com/corona10/goimagehash"
)

// Tracker compares each frame's perceptual hash with the previous one.
type Tracker struct {
	limit       int
	maxDistance int
	last        *goimagehash.ImageHash
	static      int
}

// NewTracker reports Done after limit consecutive frames within maxDistance
// of their predecessor. A limit of 0 disables the tracker.
func NewTracker(limit, maxDistance int) *Tracker {
	return &Tracker{limit: limit, maxDistance: maxDistance}
}

// Observe records img and returns true once the page has been static for
// the configured number of frames. Hash errors reset the streak.
func (t *Tracker) Observe(img image.Image) bool {
	if t.limit <= 0 {
		return false
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		log.Printf("framehash: %v", err)
		t.last, t.static = nil, 0
		return false
	}

	if t.last != nil {
		dist, err := t.last.Distance(hash)
		if err == nil && dist <= t.maxDistance {
			t.static++
		} else {
			t.static = 0
		}
	}
	t.last = hash

	return t.static >= t.limit
}

// Static is the current run of unchanged frames.
func (t *Tracker) Static() int { return t.static }
