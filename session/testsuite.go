package session

import (
	"reflect"
	"sort"
	"testing"
	"time"
)

// TestSuite runs a suite of tests against a store implementation.
func TestSuite(t *testing.T, newStore func() Store) {
	t.Helper()

	t.Run("GetSet", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		if _, err := s.Get("abc"); err != ErrNotFound {
			t.Errorf("expected not found error, got: %v", err)
		}

		maxAge := -time.Second
		touched := time.Unix(1600000000, 0).UTC()
		rec := Record{ID: "abc", Touched: touched, MaxAge: &maxAge}
		if err := s.Set(rec); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		got, err := s.Get("abc")
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if got.ID != rec.ID || !got.Touched.Equal(touched) || got.MaxAge == nil || *got.MaxAge != maxAge {
			t.Errorf("got: %+v; want %+v", got, rec)
		}

		// Overwrite
		rec.Touched = touched.Add(time.Minute)
		rec.MaxAge = nil
		if err := s.Set(rec); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		got, err = s.Get("abc")
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if !got.Touched.Equal(rec.Touched) || got.MaxAge != nil {
			t.Errorf("got: %+v; want %+v", got, rec)
		}
	})

	t.Run("ListDelete", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		for _, id := range []string{"a", "b", "c"} {
			if err := s.Set(Record{ID: id, Touched: time.Now()}); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
		}
		if err := s.Delete("b"); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if err := s.Delete("unknown"); err != nil {
			t.Errorf("unexpected error deleting unknown id: %s", err)
		}

		records, err := s.List()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		var ids []string
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		sort.Strings(ids)
		if want := []string{"a", "c"}; !reflect.DeepEqual(ids, want) {
			t.Errorf("got: %v; want %v", ids, want)
		}
	})
}
