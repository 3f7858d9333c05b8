package pagestream

import (
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/util"
	"github.com/autom8ter/pagestream/store"
	"github.com/samber/lo"
)

const (
	DefaultPageSize      = 50
	DefaultReverse       = false
	DefaultPrepend       = true
	DefaultFilterEnabled = true
)

// optionKeys are the option names accepted by WithOptions
var optionKeys = []string{"pageSize", "reverse", "prepend", "searchValue", "filterEnabled"}

// QueryConfig describes a paginated query. It is immutable for the lifetime of one refresh cycle
type QueryConfig struct {
	// Path is the collection path relative to the owner
	Path string `json:"path" validate:"required"`
	// SortField is the field the collection is ordered by
	SortField string `json:"sortField" validate:"required"`
	// PageSize is the number of records requested per fetch
	PageSize int `json:"pageSize" validate:"gt=0"`
	// Reverse orders the collection descending
	Reverse bool `json:"reverse"`
	// Prepend folds new pages before the accumulated records instead of after them
	Prepend bool `json:"prepend"`
	// SearchValue is matched case-insensitively against the engine's search fields
	SearchValue string `json:"searchValue"`
	// FilterEnabled toggles search filtering
	FilterEnabled bool `json:"filterEnabled"`
}

// QueryOpt overrides a default of the query config
type QueryOpt func(q *QueryConfig) error

// WithPageSize sets the number of records requested per fetch
func WithPageSize(pageSize int) QueryOpt {
	return func(q *QueryConfig) error {
		q.PageSize = pageSize
		return nil
	}
}

// WithReverse orders the collection descending
func WithReverse(reverse bool) QueryOpt {
	return func(q *QueryConfig) error {
		q.Reverse = reverse
		return nil
	}
}

// WithPrepend folds new pages before the accumulated records
func WithPrepend(prepend bool) QueryOpt {
	return func(q *QueryConfig) error {
		q.Prepend = prepend
		return nil
	}
}

// WithSearchValue sets the search value
func WithSearchValue(searchValue string) QueryOpt {
	return func(q *QueryConfig) error {
		q.SearchValue = searchValue
		return nil
	}
}

// WithFilterEnabled toggles search filtering
func WithFilterEnabled(enabled bool) QueryOpt {
	return func(q *QueryConfig) error {
		q.FilterEnabled = enabled
		return nil
	}
}

// WithOptions decodes a loose option object (pageSize, reverse, prepend, searchValue, filterEnabled) over the config.
// Values are weakly typed so "10" is accepted as a page size. Unknown keys are rejected
func WithOptions(opts map[string]any) QueryOpt {
	return func(q *QueryConfig) error {
		for k := range opts {
			if !lo.Contains(optionKeys, k) {
				return errors.New(errors.Validation, "unknown query option: %s", k)
			}
		}
		if err := util.Decode(opts, q); err != nil {
			return errors.Wrap(err, errors.Validation, "failed to decode query options")
		}
		return nil
	}
}

// NewQueryConfig merges the options over the defaults and validates the result
func NewQueryConfig(path, sortField string, opts ...QueryOpt) (QueryConfig, error) {
	q := QueryConfig{
		Path:          path,
		SortField:     sortField,
		PageSize:      DefaultPageSize,
		Reverse:       DefaultReverse,
		Prepend:       DefaultPrepend,
		SearchValue:   "",
		FilterEnabled: DefaultFilterEnabled,
	}
	for _, o := range opts {
		if err := o(&q); err != nil {
			return QueryConfig{}, err
		}
	}
	if err := q.Validate(); err != nil {
		return QueryConfig{}, err
	}
	return q, nil
}

// Validate validates the query config
func (q QueryConfig) Validate() error {
	if err := util.ValidateStruct(q); err != nil {
		return errors.Wrap(err, 0, "invalid query config")
	}
	return nil
}

// Direction returns the store sort direction of the query
func (q QueryConfig) Direction() store.Direction {
	if q.Reverse {
		return store.Desc
	}
	return store.Asc
}
