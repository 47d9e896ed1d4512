package notify

import (
	"sort"
	"sync"

	"github.com/cloudx-io/englishauction/engine"
)

// Recorder keeps notifications in memory so that clients can page through them by
// sequence number.
type Recorder struct {
	mu    sync.RWMutex
	notes []engine.Notification
	limit int
}

// NewRecorder returns a recorder holding at most limit notifications, dropping the
// oldest first. A limit of zero or less keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(n engine.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	if r.limit > 0 && len(r.notes) > r.limit {
		r.notes = append(r.notes[:0:0], r.notes[len(r.notes)-r.limit:]...)
	}
}

// Since returns the retained notifications with a sequence greater than after.
func (r *Recorder) Since(after uint64) []engine.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.notes), func(i int) bool { return r.notes[i].Sequence > after })
	out := make([]engine.Notification, len(r.notes)-i)
	copy(out, r.notes[i:])
	return out
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notes)
}
