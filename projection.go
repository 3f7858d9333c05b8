package pagestream

import (
	"strings"

	"github.com/samber/lo"
)

// Matches reports whether the record matches the search value. The search is a case-insensitive
// substring match against the search fields, any of which may match. Without search fields every
// string field of the record is searched. An empty search value matches every record
func Matches(record Record, searchValue string, searchFields []string) bool {
	if searchValue == "" {
		return true
	}
	needle := strings.ToLower(searchValue)
	contains := func(value any) bool {
		s, ok := value.(string)
		return ok && strings.Contains(strings.ToLower(s), needle)
	}
	if len(searchFields) == 0 {
		return lo.ContainsBy(lo.Values(record.Fields), contains)
	}
	return lo.ContainsBy(searchFields, func(field string) bool {
		return contains(record.Fields[field])
	})
}

// FilterPage returns the records of the page matching the query's search value, in page order
func FilterPage(page []Record, query QueryConfig, searchFields []string) []Record {
	if !query.FilterEnabled {
		return append([]Record{}, page...)
	}
	return lo.Filter(page, func(r Record, _ int) bool {
		return Matches(r, query.SearchValue, searchFields)
	})
}

// Fold folds a filtered batch into the accumulated records. prepend places the batch before the
// accumulation, otherwise after it. Accumulated records are never removed
func Fold(accumulated, batch []Record, prepend bool) []Record {
	folded := make([]Record, 0, len(accumulated)+len(batch))
	if prepend {
		return append(append(folded, batch...), accumulated...)
	}
	return append(append(folded, accumulated...), batch...)
}
