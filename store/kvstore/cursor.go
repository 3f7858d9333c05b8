package kvstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/model"
	"github.com/autom8ter/pagestream/store"
	"github.com/tidwall/gjson"
)

// position is the place of a document in a sorted collection: its sort value with the id as tie breaker
type position struct {
	value gjson.Result
	id    string
}

type cursorJSON struct {
	Value json.RawMessage `json:"v"`
	ID    string          `json:"id"`
}

func entryPosition(e entry, field string) position {
	return position{value: e.doc.Result(field), id: e.id}
}

func encodeCursor(p position) (store.Cursor, error) {
	bits, err := json.Marshal(cursorJSON{
		Value: json.RawMessage(p.value.Raw),
		ID:    p.id,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to encode cursor")
	}
	return bits, nil
}

func decodeCursor(cursor store.Cursor) (position, error) {
	var c cursorJSON
	if err := json.Unmarshal(cursor, &c); err != nil {
		return position{}, errors.Wrap(err, errors.Validation, "invalid cursor")
	}
	return position{value: gjson.ParseBytes(c.Value), id: c.ID}, nil
}

func comparePositions(a, b position) int {
	if c := compareValues(a.value, b.value); c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}

// value ranks order mixed types: null < bool < number < timestamp < string < other json
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTimestamp
	rankString
	rankJSON
)

func rank(r gjson.Result) int {
	switch r.Type {
	case gjson.Null:
		return rankNull
	case gjson.True, gjson.False:
		return rankBool
	case gjson.Number:
		return rankNumber
	case gjson.String:
		return rankString
	}
	if _, ok := model.ParseTime(r); ok && r.IsObject() {
		return rankTimestamp
	}
	return rankJSON
}

func compareValues(a, b gjson.Result) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return compareInts(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		return compareInts(boolInt(a.Bool()), boolInt(b.Bool()))
	case rankNumber:
		switch {
		case a.Float() < b.Float():
			return -1
		case a.Float() > b.Float():
			return 1
		}
		return 0
	case rankTimestamp:
		ta, _ := model.ParseTime(a)
		tb, _ := model.ParseTime(b)
		return compareTimes(ta, tb)
	case rankString:
		return strings.Compare(a.String(), b.String())
	default:
		return strings.Compare(a.Raw, b.Raw)
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
