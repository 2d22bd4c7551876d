// Package ext contains optional behavior models opt into by embedding a
// struct or installing a generator.
package ext

import (
	"time"

	"github.com/crodas/tuicha/adapter/timegetter"
	"github.com/crodas/tuicha/domain"
)

// Clock is read by [Timestamps]. Tests may replace it.
var Clock domain.TimeGetter = timegetter.NewTimeGetter()

// Timestamps records when an object was created and last updated. Embed it
// by value:
//
//	type Post struct {
//		ID    primitive.ObjectID
//		Title string `tuicha:"title"`
//		ext.Timestamps
//	}
type Timestamps struct {
	CreatedAt time.Time `tuicha:"created_at"`
	UpdatedAt time.Time `tuicha:"updated_at"`
}

// Creating sets both timestamps before the first write.
func (t *Timestamps) Creating() {
	now := Clock.GetTime()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Updating refreshes UpdatedAt before a save that changes the object.
func (t *Timestamps) Updating() {
	t.UpdatedAt = Clock.GetTime()
}
