package graph

const hintWindowSize = 100

type hintRecord struct {
	hint string
	id   string
	seq  uint64
}

// hintWindow is the sliding window of recent co-occurrence hints. A pair of
// entities sharing a hint is credited once per fresh co-appearance: both
// must have a record newer than the pair's last credit. Repeating the same
// two mentions under one hint therefore adds one unit of edge weight per
// repetition, not one per mention.
type hintWindow struct {
	size     int
	records  []hintRecord
	seq      uint64
	credited map[string]map[string]uint64 // hint -> edge key -> seq of last credit
}

func newHintWindow(size int) *hintWindow {
	return &hintWindow{
		size:     size,
		credited: make(map[string]map[string]uint64),
	}
}

// record appends (hint, id) and returns the ids whose pairing with id
// should be credited now.
func (w *hintWindow) record(hint, id string) []string {
	w.seq++
	now := w.seq

	latest := make(map[string]uint64)
	for _, r := range w.records {
		if r.hint == hint && r.id != id && r.seq > latest[r.id] {
			latest[r.id] = r.seq
		}
	}

	w.records = append(w.records, hintRecord{hint: hint, id: id, seq: now})
	if len(w.records) > w.size {
		evicted := w.records[0]
		w.records = w.records[1:]
		w.forgetHintIfGone(evicted.hint)
	}

	pairs := w.credited[hint]
	var out []string
	for other, seq := range latest {
		key := EdgeKey(id, other)
		if seq <= pairs[key] {
			continue
		}
		if pairs == nil {
			pairs = make(map[string]uint64)
			w.credited[hint] = pairs
		}
		pairs[key] = now
		out = append(out, other)
	}
	return out
}

func (w *hintWindow) forgetHintIfGone(hint string) {
	for _, r := range w.records {
		if r.hint == hint {
			return
		}
	}
	delete(w.credited, hint)
}

// rename points records for any of from at to, after a merge.
func (w *hintWindow) rename(from map[string]bool, to string) {
	for i := range w.records {
		if from[w.records[i].id] {
			w.records[i].id = to
		}
	}
}

// drop removes every record for id.
func (w *hintWindow) drop(id string) {
	kept := w.records[:0]
	for _, r := range w.records {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	w.records = kept
}
