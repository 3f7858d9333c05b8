package pagestream

import (
	"time"

	"github.com/autom8ter/pagestream/store"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Record is an immutable snapshot of one document at fetch time
type Record struct {
	// ID is the store identifier of the document
	ID string `json:"id"`
	// Fields are the top level fields of the document. Date fields hold a *time.Time or nil
	Fields map[string]any `json:"fields"`
	// Cursor is the store cursor of the document, used to request the page after it
	Cursor store.Cursor `json:"-"`
}

// Get returns the field value
func (r Record) Get(field string) any {
	return r.Fields[field]
}

// String returns the field value as a string
func (r Record) String(field string) string {
	return cast.ToString(r.Fields[field])
}

// Time returns the value of a date field. nil is returned if the field is absent
func (r Record) Time(field string) *time.Time {
	t, _ := r.Fields[field].(*time.Time)
	return t
}

// MapSnapshot maps a store snapshot to a Record. Each date field is normalized from its
// store encoding to a *time.Time, or nil if the field is absent
func MapSnapshot(snapshot store.Snapshot, dateFields []string) Record {
	fields := map[string]any{}
	if snapshot.Data != nil {
		fields = snapshot.Data.Value()
	}
	for _, field := range dateFields {
		fields[field] = nil
		if snapshot.Data == nil {
			continue
		}
		if t, ok := snapshot.Data.GetTime(field); ok {
			fields[field] = &t
		}
	}
	return Record{
		ID:     snapshot.ID,
		Fields: fields,
		Cursor: snapshot.Cursor,
	}
}

// mapPage maps the snapshots in query order. prepend reverses the page
func mapPage(snapshots []store.Snapshot, dateFields []string, prepend bool) []Record {
	page := lo.Map(snapshots, func(s store.Snapshot, _ int) Record {
		return MapSnapshot(s, dateFields)
	})
	if prepend {
		page = lo.Reverse(page)
	}
	return page
}
