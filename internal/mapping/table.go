package mapping

import "github.com/portmapper/pcpclient/internal/wire"

// Table is the dense, indexed collection of mapping records owned by the
// client service (§4.3). It is not safe for concurrent use; callers must
// serialize access the same way the service serializes event handling.
type Table struct {
	records []*Record
}

// NewTable returns an empty mapping table.
func NewTable() *Table {
	return &Table{}
}

// Allocate returns the id of a slot to hold a new record: the first slot
// whose record is in the Dropped state, or a freshly appended slot if none
// is available. The caller is responsible for installing a Record at the
// returned id via Set.
func (t *Table) Allocate() int {
	for i, r := range t.records {
		if r != nil && r.State.Kind == Dropped {
			return i
		}
	}
	t.records = append(t.records, nil)
	return len(t.records) - 1
}

// Set installs rec at id, overwriting whatever was there (used immediately
// after Allocate).
func (t *Table) Set(id int, rec *Record) {
	t.records[id] = rec
}

// Get returns the record at id, or nil if id is out of range or empty.
func (t *Table) Get(id int) *Record {
	if id < 0 || id >= len(t.records) {
		return nil
	}
	return t.records[id]
}

// FindMatch returns the id of the non-terminal record that resp is the
// response to, per the wire package's matching predicate (§4.1), or false
// if none matches.
func (t *Table) FindMatch(resp *wire.Response) (int, bool) {
	for id, r := range t.records {
		if r == nil || r.State.IsTerminal() {
			continue
		}
		if wire.Matches(r.Request, resp) {
			return id, true
		}
	}
	return 0, false
}

// IterActive calls fn with the id of every non-terminal record, in index
// order, for use by recovery (§4.5).
func (t *Table) IterActive(fn func(id int, rec *Record)) {
	for id, r := range t.records {
		if r == nil || r.State.IsTerminal() {
			continue
		}
		fn(id, r)
	}
}

// Len returns the number of slots in the table, including terminal ones.
func (t *Table) Len() int {
	return len(t.records)
}
