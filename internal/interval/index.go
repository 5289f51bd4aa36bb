package interval

import (
	"sort"
	"sync"
	"time"
)

// Entry is one active reservation interval [Start, End).
type Entry struct {
	ID    int64
	Start time.Time
	End   time.Time
}

func (e Entry) overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// Index keeps the active intervals of every facility ordered by start time.
type Index struct {
	mu         sync.RWMutex
	byFacility map[int64][]Entry
	owner      map[int64]int64 // reservation id -> facility id
}

func NewIndex() *Index {
	return &Index{
		byFacility: make(map[int64][]Entry),
		owner:      make(map[int64]int64),
	}
}

// FindConflicts returns the active entries on the facility overlapping [start, end).
// An entry with excludeID is ignored; pass 0 to check against all of them.
func (x *Index) FindConflicts(facilityID int64, start, end time.Time, excludeID int64) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	entries := x.byFacility[facilityID]
	var conflicts []Entry
	for _, e := range entries {
		if !e.Start.Before(end) {
			break
		}
		if e.ID == excludeID {
			continue
		}
		if e.overlaps(start, end) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}

// Insert adds an entry. An entry with the same id is replaced.
func (x *Index) Insert(facilityID int64, e Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(e.ID)
	x.insertLocked(facilityID, e)
}

// Replace is Insert under a name that reads better at update call sites.
func (x *Index) Replace(facilityID int64, e Entry) {
	x.Insert(facilityID, e)
}

// Remove drops the entry from the active set. It reports whether the id was present.
func (x *Index) Remove(id int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(id)
}

// Load replaces the whole index.
func (x *Index) Load(active map[int64][]Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.byFacility = make(map[int64][]Entry, len(active))
	x.owner = make(map[int64]int64)
	for facilityID, entries := range active {
		for _, e := range entries {
			x.insertLocked(facilityID, e)
		}
	}
}

// ReloadFacility replaces the entries of a single facility.
func (x *Index) ReloadFacility(facilityID int64, entries []Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range x.byFacility[facilityID] {
		delete(x.owner, e.ID)
	}
	delete(x.byFacility, facilityID)
	for _, e := range entries {
		x.removeLocked(e.ID)
		x.insertLocked(facilityID, e)
	}
}

// Entries returns a copy of the active entries of the facility.
func (x *Index) Entries(facilityID int64) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]Entry(nil), x.byFacility[facilityID]...)
}

// Len is the number of active entries across all facilities.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owner)
}

func (x *Index) insertLocked(facilityID int64, e Entry) {
	entries := x.byFacility[facilityID]
	pos := sort.Search(len(entries), func(i int) bool {
		return entries[i].Start.After(e.Start)
	})
	entries = append(entries, Entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	x.byFacility[facilityID] = entries
	x.owner[e.ID] = facilityID
}

func (x *Index) removeLocked(id int64) bool {
	facilityID, ok := x.owner[id]
	if !ok {
		return false
	}
	delete(x.owner, id)

	entries := x.byFacility[facilityID]
	for i, e := range entries {
		if e.ID == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(x.byFacility, facilityID)
	} else {
		x.byFacility[facilityID] = entries
	}
	return true
}
