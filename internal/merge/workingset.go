package merge

// WorkingSet is the in-memory conversation table for one profile harvest.
// It keeps the order records were loaded or created in, so the batch write
// at the end of a profile reproduces the table row order.
type WorkingSet struct {
	order  []*Conversation
	byName map[string]*Conversation

	Created int
	Updated int
	Skipped int
}

func NewWorkingSet(records []Conversation) *WorkingSet {
	ws := &WorkingSet{
		order:  make([]*Conversation, 0, len(records)),
		byName: make(map[string]*Conversation, len(records)),
	}
	for i := range records {
		rec := records[i]
		ws.order = append(ws.order, &rec)
		// first row wins lookups; later duplicates are still written back
		if _, dup := ws.byName[rec.Name]; !dup {
			ws.byName[rec.Name] = &rec
		}
	}
	return ws
}

// Lookup returns the record stored under name, or nil.
func (ws *WorkingSet) Lookup(name string) *Conversation {
	return ws.byName[name]
}

// Apply folds a reconciliation outcome into the set.
func (ws *WorkingSet) Apply(o Outcome) {
	switch o.Action {
	case Create:
		rec := *o.Record
		ws.order = append(ws.order, &rec)
		ws.byName[rec.Name] = &rec
		ws.Created++
	case Update:
		rec := *o.Record
		if cur, ok := ws.byName[rec.Name]; ok {
			*cur = rec
		} else {
			ws.order = append(ws.order, &rec)
			ws.byName[rec.Name] = &rec
		}
		ws.Updated++
	default:
		ws.Skipped++
	}
}

// Records returns a snapshot of the set in table order.
func (ws *WorkingSet) Records() []Conversation {
	out := make([]Conversation, len(ws.order))
	for i, rec := range ws.order {
		out[i] = *rec
	}
	return out
}

func (ws *WorkingSet) Len() int { return len(ws.order) }
