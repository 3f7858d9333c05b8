package model

import (
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp is the store-native encoding of a point in time
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewTimestamp converts the time to a Timestamp
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Seconds: t.Unix(),
		Nanos:   int32(t.Nanosecond()),
	}
}

// Time returns the timestamp as a UTC time
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// ParseTime reads a time from a json value. Supported encodings are a Timestamp object,
// an RFC3339 string and a number of unix milliseconds. Absent and null values return false
func ParseTime(result gjson.Result) (time.Time, bool) {
	switch {
	case !result.Exists(), result.Type == gjson.Null:
		return time.Time{}, false
	case result.IsObject():
		seconds := result.Get("seconds")
		if !seconds.Exists() {
			return time.Time{}, false
		}
		return Timestamp{
			Seconds: seconds.Int(),
			Nanos:   int32(result.Get("nanos").Int()),
		}.Time(), true
	case result.Type == gjson.String:
		t, err := time.Parse(time.RFC3339Nano, result.String())
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case result.Type == gjson.Number:
		return time.UnixMilli(result.Int()).UTC(), true
	default:
		return time.Time{}, false
	}
}
