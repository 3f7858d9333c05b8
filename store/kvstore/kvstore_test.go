package kvstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/autom8ter/pagestream/errors"
	_ "github.com/autom8ter/pagestream/kv/badger"
	"github.com/autom8ter/pagestream/model"
	"github.com/autom8ter/pagestream/store"
	"github.com/autom8ter/pagestream/store/kvstore"
	"github.com/stretchr/testify/assert"
)

func newStore(t *testing.T) *kvstore.Store {
	s, err := kvstore.Open("badger", map[string]interface{}{"storage_path": ""})
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func doc(t *testing.T, value map[string]any) *model.Document {
	d, err := model.NewDocumentFrom(value)
	assert.NoError(t, err)
	return d
}

func ids(snapshots []store.Snapshot) []string {
	var out []string
	for _, s := range snapshots {
		out = append(out, s.ID)
	}
	return out
}

func TestRangeQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	const coll = "owner/alice/trips"
	for i := 1; i <= 5; i++ {
		assert.NoError(t, s.SetDoc(ctx, coll, fmt.Sprintf("t%d", i), doc(t, map[string]any{"n": i})))
	}
	assert.NoError(t, s.SetDoc(ctx, coll, "nosort", doc(t, map[string]any{"other": true})))
	assert.NoError(t, s.SetDoc(ctx, "owner/bob/trips", "b1", doc(t, map[string]any{"n": 0})))

	t.Run("asc", func(t *testing.T) {
		results, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 10})
		assert.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, ids(results))
	})
	t.Run("desc", func(t *testing.T) {
		results, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Desc, Limit: 2})
		assert.NoError(t, err)
		assert.Equal(t, []string{"t5", "t4"}, ids(results))
	})
	t.Run("continue after cursor", func(t *testing.T) {
		rng := store.Range{OrderBy: "n", Direction: store.Desc, Limit: 2}
		var pages [][]string
		for {
			results, err := s.RangeQuery(ctx, coll, rng)
			assert.NoError(t, err)
			if len(results) == 0 {
				break
			}
			pages = append(pages, ids(results))
			rng.After = results[len(results)-1].Cursor
		}
		assert.Equal(t, [][]string{{"t5", "t4"}, {"t3", "t2"}, {"t1"}}, pages)
	})
	t.Run("cursor survives deletion", func(t *testing.T) {
		first, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 2})
		assert.NoError(t, err)
		assert.NoError(t, s.DeleteDoc(ctx, coll, "t2"))
		next, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 2, After: first[1].Cursor})
		assert.NoError(t, err)
		assert.Equal(t, []string{"t3", "t4"}, ids(next))
		assert.NoError(t, s.SetDoc(ctx, coll, "t2", doc(t, map[string]any{"n": 2})))
	})
	t.Run("owner scoping", func(t *testing.T) {
		results, err := s.RangeQuery(ctx, "owner/bob/trips", store.Range{OrderBy: "n", Direction: store.Asc, Limit: 10})
		assert.NoError(t, err)
		assert.Equal(t, []string{"b1"}, ids(results))
	})
	t.Run("invalid limit", func(t *testing.T) {
		_, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc})
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("invalid cursor", func(t *testing.T) {
		_, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 1, After: store.Cursor("nope")})
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.RangeQuery(cctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 1})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRangeQueryMixedValues(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	const coll = "owner/alice/mixed"
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, s.SetDoc(ctx, coll, "str", doc(t, map[string]any{"v": "abc"})))
	assert.NoError(t, s.SetDoc(ctx, coll, "num", doc(t, map[string]any{"v": 10})))
	assert.NoError(t, s.SetDoc(ctx, coll, "null", doc(t, map[string]any{"v": nil})))
	assert.NoError(t, s.SetDoc(ctx, coll, "bool", doc(t, map[string]any{"v": true})))
	assert.NoError(t, s.SetDoc(ctx, coll, "late", doc(t, map[string]any{"v": model.NewTimestamp(base.Add(time.Hour))})))
	assert.NoError(t, s.SetDoc(ctx, coll, "early", doc(t, map[string]any{"v": model.NewTimestamp(base)})))
	results, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "v", Direction: store.Asc, Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, []string{"null", "bool", "num", "early", "late", "str"}, ids(results))
}

func TestCrud(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	const coll = "owner/alice/addresses"
	var id string
	t.Run("add", func(t *testing.T) {
		var err error
		id, err = s.AddDoc(ctx, coll, doc(t, map[string]any{"city": "Denver"}))
		assert.NoError(t, err)
		assert.NotEmpty(t, id)
	})
	t.Run("watch first emission", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := s.Watch(wctx, coll, id)
		assert.NoError(t, err)
		snapshot := <-ch
		assert.True(t, snapshot.Exists)
		assert.Equal(t, "Denver", snapshot.Data.Result("city").String())
	})
	t.Run("watch missing", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := s.Watch(wctx, coll, "missing")
		assert.NoError(t, err)
		snapshot := <-ch
		assert.False(t, snapshot.Exists)
	})
	t.Run("watch changes", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := s.Watch(wctx, coll, id)
		assert.NoError(t, err)
		<-ch
		assert.NoError(t, s.SetDoc(ctx, coll, id, doc(t, map[string]any{"city": "Boulder"})))
		select {
		case snapshot := <-ch:
			assert.True(t, snapshot.Exists)
			assert.Equal(t, "Boulder", snapshot.Data.Result("city").String())
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for change notification")
		}
		assert.NoError(t, s.DeleteDoc(ctx, coll, id))
		select {
		case snapshot := <-ch:
			assert.False(t, snapshot.Exists)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for delete notification")
		}
	})
	t.Run("watch sees writes made as soon as it returns", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			wctx, cancel := context.WithCancel(ctx)
			ch, err := s.Watch(wctx, coll, id)
			assert.NoError(t, err)
			assert.NoError(t, s.SetDoc(ctx, coll, id, doc(t, map[string]any{"n": i})))
			first := <-ch
			select {
			case snapshot := <-ch:
				assert.Equal(t, int64(i), snapshot.Data.Result("n").Int())
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for change notification")
			}
			if i == 0 {
				assert.False(t, first.Exists)
			} else {
				assert.Equal(t, int64(i-1), first.Data.Result("n").Int())
			}
			cancel()
		}
	})
	t.Run("watch closes when cancelled", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		ch, err := s.Watch(wctx, coll, id)
		assert.NoError(t, err)
		<-ch
		cancel()
		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the watch to close")
		}
	})
	t.Run("set requires id", func(t *testing.T) {
		assert.True(t, errors.Is(s.SetDoc(ctx, coll, "", doc(t, map[string]any{})), errors.Validation))
	})
}

func TestAddDocs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	const coll = "owner/alice/numbers"
	t.Run("batch", func(t *testing.T) {
		var docs []*model.Document
		for i := 0; i < 25; i++ {
			docs = append(docs, doc(t, map[string]any{"n": i}))
		}
		created, err := s.AddDocs(ctx, coll, docs)
		assert.NoError(t, err)
		assert.Len(t, created, 25)
		results, err := s.RangeQuery(ctx, coll, store.Range{OrderBy: "n", Direction: store.Asc, Limit: 100})
		assert.NoError(t, err)
		assert.Equal(t, created, ids(results))
	})
	t.Run("invalid document rejects the batch", func(t *testing.T) {
		_, err := s.AddDocs(ctx, "owner/alice/other", []*model.Document{doc(t, map[string]any{"n": 1}), nil})
		assert.True(t, errors.Is(err, errors.Validation))
		results, err := s.RangeQuery(ctx, "owner/alice/other", store.Range{OrderBy: "n", Direction: store.Asc, Limit: 10})
		assert.NoError(t, err)
		assert.Empty(t, results)
	})
	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.AddDocs(cctx, coll, []*model.Document{doc(t, map[string]any{"n": 1})})
		assert.Error(t, err)
	})
}
