package pagestream_test

import (
	"testing"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/store"
	"github.com/stretchr/testify/assert"
)

func TestQueryConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q, err := pagestream.NewQueryConfig("trips", "start")
		assert.NoError(t, err)
		assert.Equal(t, pagestream.QueryConfig{
			Path:          "trips",
			SortField:     "start",
			PageSize:      50,
			Reverse:       false,
			Prepend:       true,
			SearchValue:   "",
			FilterEnabled: true,
		}, q)
		assert.Equal(t, store.Asc, q.Direction())
	})
	t.Run("options override defaults", func(t *testing.T) {
		q, err := pagestream.NewQueryConfig("trips", "start",
			pagestream.WithPageSize(10),
			pagestream.WithReverse(true),
			pagestream.WithPrepend(false),
			pagestream.WithSearchValue("paris"),
			pagestream.WithFilterEnabled(false),
		)
		assert.NoError(t, err)
		assert.Equal(t, 10, q.PageSize)
		assert.True(t, q.Reverse)
		assert.False(t, q.Prepend)
		assert.Equal(t, "paris", q.SearchValue)
		assert.False(t, q.FilterEnabled)
		assert.Equal(t, store.Desc, q.Direction())
	})
	t.Run("option object", func(t *testing.T) {
		q, err := pagestream.NewQueryConfig("trips", "start", pagestream.WithOptions(map[string]any{
			"reverse":  true,
			"prepend":  false,
			"pageSize": "5",
		}))
		assert.NoError(t, err)
		assert.Equal(t, 5, q.PageSize)
		assert.True(t, q.Reverse)
		assert.False(t, q.Prepend)
		assert.True(t, q.FilterEnabled)
	})
	t.Run("unknown option", func(t *testing.T) {
		_, err := pagestream.NewQueryConfig("trips", "start", pagestream.WithOptions(map[string]any{
			"path": "other",
		}))
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("page size must be positive", func(t *testing.T) {
		_, err := pagestream.NewQueryConfig("trips", "start", pagestream.WithPageSize(0))
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("path is required", func(t *testing.T) {
		_, err := pagestream.NewQueryConfig("", "start")
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("sort field is required", func(t *testing.T) {
		_, err := pagestream.NewQueryConfig("trips", "")
		assert.True(t, errors.Is(err, errors.Validation))
	})
}
