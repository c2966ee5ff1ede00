package features

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/domain/model"
)

type memRepo struct {
	mu   sync.Mutex
	rows []*Vector
	fail error
}

func (m *memRepo) Insert(_ context.Context, v *Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rows = append(m.rows, v)
	return nil
}

func (m *memRepo) Latest(_ context.Context, userID string) (*Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Vector
	for _, v := range m.rows {
		if v.UserID != userID {
			continue
		}
		if best == nil || !v.CalculatedAt.Before(best.CalculatedAt) {
			best = v
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *memRepo) DeleteUpTo(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	deleted := 0
	for _, v := range m.rows {
		if v.CalculatedAt.After(cutoff) {
			kept = append(kept, v)
			continue
		}
		deleted++
	}
	m.rows = kept
	return deleted, nil
}

func TestStore(t *testing.T) {
	Convey("Given a store with a controllable clock", t, func() {
		ctx := context.Background()
		repo := &memRepo{}
		now := refTime
		store := NewStore(repo, WithClock(func() time.Time { return now }))

		Convey("When nothing is stored", func() {
			_, err := store.GetLatest(ctx, "u-1")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When a vector is saved", func() {
			v := Compute(History{At: refTime, Workouts: []model.Record{workout(1, 5000, 1500)}}, 90)
			v.CalculatedAt = time.Time{}
			id, err := store.Save(ctx, "u-1", v)
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then it is the latest for the user", func() {
				got, err := store.GetLatest(ctx, "u-1")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, id)
				So(got.CalculatedAt, ShouldEqual, now)
				So(got.SchemaVersion, ShouldEqual, SchemaVersion)
			})

			Convey("Then a later save supersedes it", func() {
				now = now.Add(time.Minute)
				id2, err := store.Save(ctx, "u-1", newVector(time.Time{}))
				So(err, ShouldBeNil)
				got, err := store.GetLatest(ctx, "u-1")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, id2)
			})

			Convey("Then other users are unaffected", func() {
				_, err := store.GetLatest(ctx, "u-2")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then cleanup with zero retention removes it", func() {
				n, err := store.Cleanup(ctx, 0)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				_, err = store.GetLatest(ctx, "u-1")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then cleanup with a long retention keeps it", func() {
				n, err := store.Cleanup(ctx, 30)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the same vector is saved twice", func() {
			v := newVector(time.Time{})
			first, err := store.Save(ctx, "u-1", v)
			So(err, ShouldBeNil)
			second, err := store.Save(ctx, "u-1", v)
			So(err, ShouldBeNil)

			Convey("Then each save gets its own row and the caller's vector is unchanged", func() {
				So(second, ShouldNotEqual, first)
				So(repo.rows, ShouldHaveLength, 2)
				So(repo.rows[0].ID, ShouldEqual, first)
				So(v.ID, ShouldBeEmpty)
				So(v.UserID, ShouldBeEmpty)
				So(v.CalculatedAt.IsZero(), ShouldBeTrue)
			})

			Convey("Then later edits to the vector do not reach stored rows", func() {
				v.Values[KeyAvgPace] = 999
				So(repo.rows[0].Get(KeyAvgPace), ShouldEqual, 0)
			})
		})

		Convey("When old and new vectors coexist", func() {
			_, err := store.Save(ctx, "u-1", newVector(refTime.AddDate(0, 0, -40)))
			So(err, ShouldBeNil)
			newID, err := store.Save(ctx, "u-1", newVector(refTime.AddDate(0, 0, -1)))
			So(err, ShouldBeNil)

			n, err := store.Cleanup(ctx, 30)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			got, err := store.GetLatest(ctx, "u-1")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, newID)
		})

		Convey("When input is invalid", func() {
			_, err := store.Save(ctx, "", newVector(now))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			_, err = store.Cleanup(ctx, -1)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the repository fails", func() {
			repo.fail = errors.New("disk full")
			_, err := store.Save(ctx, "u-1", newVector(now))
			So(err, ShouldNotBeNil)
		})
	})
}
