package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/testutil"
	"github.com/autom8ter/pagestream/store"
	transport "github.com/autom8ter/pagestream/transport/http"
)

func newServer(t *testing.T) (*httptest.Server, *pagestream.Engine) {
	s := testutil.NewStore(t)
	for i := 0; i < 5; i++ {
		assert.NoError(t, s.SetDoc(context.Background(), store.OwnerPath("alice", "trips"), fmt.Sprintf("trip%d", i), testutil.NewTripDoc(i)))
	}
	e, err := pagestream.New(s, "alice", pagestream.WithDateFields("start", "end"))
	assert.NoError(t, err)
	server := httptest.NewServer(transport.New(e, pagestream.NopLogger()).Handler())
	t.Cleanup(server.Close)
	return server, e
}

func do(t *testing.T, method, url string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	assert.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandler(t *testing.T) {
	server, _ := newServer(t)
	t.Run("not initialized", func(t *testing.T) {
		var e errors.Error
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, server.URL+"/query/more", nil, &e))
		assert.Equal(t, errors.Validation, e.Code)
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, server.URL+"/query", nil, nil))
	})
	t.Run("invalid options", func(t *testing.T) {
		var e errors.Error
		status := do(t, http.MethodPost, server.URL+"/query", transport.InitRequest{
			Path:      "trips",
			SortField: "start",
			Options:   map[string]any{"color": "blue"},
		}, &e)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.NotEmpty(t, e.Messages)
	})
	t.Run("paginate", func(t *testing.T) {
		var state pagestream.State
		status := do(t, http.MethodPost, server.URL+"/query", transport.InitRequest{
			Path:      "trips",
			SortField: "start",
			Options:   map[string]any{"pageSize": "2", "reverse": true, "prepend": false},
		}, &state)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, state.Data, 2)
		assert.Equal(t, "trip4", state.Data[0].ID)
		assert.False(t, state.Loading)

		var query pagestream.QueryConfig
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, server.URL+"/query", nil, &query))
		assert.Equal(t, 2, query.PageSize)
		assert.True(t, query.Reverse)

		for !state.Done {
			assert.Equal(t, http.StatusOK, do(t, http.MethodPost, server.URL+"/query/more", nil, &state))
		}
		assert.Len(t, state.Data, 5)
		assert.Equal(t, "trip0", state.Data[4].ID)

		assert.Equal(t, http.StatusOK, do(t, http.MethodPost, server.URL+"/query/refresh", nil, &state))
		assert.Len(t, state.Data, 2)
		assert.Equal(t, uint64(2), state.Generation)

		assert.Equal(t, http.StatusOK, do(t, http.MethodPut, server.URL+"/query/search", transport.SearchRequest{SearchValue: "zzzzzzzzzz"}, &state))
		assert.Equal(t, http.StatusOK, do(t, http.MethodPost, server.URL+"/query/more", nil, &state))
		assert.Len(t, state.Data, 2)
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, server.URL+"/query/state", nil, &state))
		assert.Len(t, state.Data, 2)
	})
	t.Run("documents", func(t *testing.T) {
		var created transport.CreateResponse
		assert.Equal(t, http.StatusCreated, do(t, http.MethodPost, server.URL+"/docs", map[string]any{
			"city":  "Denver",
			"start": map[string]any{"seconds": 1, "nanos": 0},
		}, &created))
		assert.NotEmpty(t, created.ID)

		var record pagestream.Record
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, server.URL+"/docs/"+created.ID, nil, &record))
		assert.Equal(t, "Denver", record.String("city"))

		assert.Equal(t, http.StatusOK, do(t, http.MethodPut, server.URL+"/docs/"+created.ID, map[string]any{
			"city": "Boulder",
		}, nil))
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, server.URL+"/docs/"+created.ID, nil, &record))
		assert.Equal(t, "Boulder", record.String("city"))

		assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, server.URL+"/docs/"+created.ID, nil, nil))
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, server.URL+"/docs/"+created.ID, nil, nil))
	})
	t.Run("invalid body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/docs", bytes.NewBufferString("{"))
		assert.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStream(t *testing.T) {
	server, e := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	socket, err := transport.NewStreamClient(server.URL).Connect(nil)
	assert.NoError(t, err)
	defer socket.Close()

	state, err := socket.Read(ctx)
	assert.NoError(t, err)
	assert.Empty(t, state.Data)
	assert.Equal(t, uint64(0), state.Generation)

	assert.NoError(t, e.Init(ctx, "trips", "start"))
	for state.Generation != 1 || state.Loading {
		state, err = socket.Read(ctx)
		assert.NoError(t, err)
		if err != nil {
			return
		}
	}
	assert.Len(t, state.Data, 5)
	assert.Equal(t, "trip4", state.Data[0].ID)
}
