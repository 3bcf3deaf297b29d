package rating

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// memStore is an in-memory Store. A single mutex stands in for the per-wine
// row lock; writes made by fn are discarded when fn fails.
type memStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]bool
	wines   map[string]domain.RatingAggregate
	ratings map[string]domain.Rating
	fail    error // returned by FindRatingsByWine when set
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]bool{},
		wines:   map[string]domain.RatingAggregate{},
		ratings: map[string]domain.Rating{},
	}
}

func (m *memStore) WithWineLock(ctx context.Context, wineID string, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wines[wineID]; !ok {
		return domain.NewNotFoundError("wine", wineID)
	}
	tx := &memTx{
		store:   m,
		wines:   cloneMap(m.wines),
		ratings: cloneMap(m.ratings),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.wines = tx.wines
	m.ratings = tx.ratings
	return nil
}

func (m *memStore) GetRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[ratingID]
	if !ok {
		return domain.Rating{}, domain.NewNotFoundError("rating", ratingID)
	}
	return r, nil
}

func (m *memStore) aggregate(wineID string) domain.RatingAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wines[wineID]
}

type memTx struct {
	store   *memStore
	wines   map[string]domain.RatingAggregate
	ratings map[string]domain.Rating
}

func (t *memTx) UserExists(ctx context.Context, userID string) (bool, error) {
	return t.store.users[userID], nil
}

func (t *memTx) InsertRating(ctx context.Context, r domain.Rating) (domain.Rating, error) {
	t.store.seq++
	r.ID = fmt.Sprintf("r%d", t.store.seq)
	t.ratings[r.ID] = r
	return r, nil
}

func (t *memTx) GetRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	r, ok := t.ratings[ratingID]
	if !ok {
		return domain.Rating{}, domain.NewNotFoundError("rating", ratingID)
	}
	return r, nil
}

func (t *memTx) UpdateRating(ctx context.Context, ratingID string, value float64, comment *string) (domain.Rating, error) {
	r, err := t.GetRating(ctx, ratingID)
	if err != nil {
		return domain.Rating{}, err
	}
	r.Value = value
	r.Comment = comment
	t.ratings[ratingID] = r
	return r, nil
}

func (t *memTx) DeleteRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	r, err := t.GetRating(ctx, ratingID)
	if err != nil {
		return domain.Rating{}, err
	}
	delete(t.ratings, ratingID)
	return r, nil
}

func (t *memTx) FindRatingsByWine(ctx context.Context, wineID string) ([]domain.Rating, error) {
	if t.store.fail != nil {
		return nil, t.store.fail
	}
	var out []domain.Rating
	for _, r := range t.ratings {
		if r.WineID == wineID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) UpdateWineAggregate(ctx context.Context, wineID string, agg domain.RatingAggregate) error {
	if _, ok := t.wines[wineID]; !ok {
		return domain.NewNotFoundError("wine", wineID)
	}
	t.wines[wineID] = agg
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newTestAggregator(t *testing.T) (*Aggregator, *memStore) {
	t.Helper()
	st := newMemStore()
	st.users["alice"] = true
	st.users["bob"] = true
	st.wines["w1"] = domain.RatingAggregate{}
	st.wines["w2"] = domain.RatingAggregate{}
	return NewAggregator(st, nil), st
}

func rate(t *testing.T, agg *Aggregator, wineID string, value float64) domain.Rating {
	t.Helper()
	r, err := agg.OnRatingCreated(context.Background(), CreateParams{UserID: "alice", WineID: wineID, Value: value})
	require.NoError(t, err)
	return r
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   domain.RatingAggregate
	}{
		{"empty", nil, domain.RatingAggregate{}},
		{"single", []float64{3.5}, domain.RatingAggregate{Average: 3.5, Count: 1}},
		{"exact mean", []float64{4, 5, 3}, domain.RatingAggregate{Average: 4.0, Count: 3}},
		{"repeating", []float64{4, 5, 5}, domain.RatingAggregate{Average: 4.7, Count: 3}},
		{"half away from zero", []float64{4.4, 4.5}, domain.RatingAggregate{Average: 4.5, Count: 2}},
		{"round down", []float64{1, 1, 2}, domain.RatingAggregate{Average: 1.3, Count: 3}},
		{"all zero", []float64{0, 0}, domain.RatingAggregate{Average: 0, Count: 2}},
		{"all max", []float64{5, 5, 5, 5}, domain.RatingAggregate{Average: 5, Count: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.values))
		})
	}
}

func TestRoundToOneDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"zero", 0, 0},
		{"round-up", 3.75, 3.8},
		{"round-down", 2.74, 2.7},
		{"exact", 4.5, 4.5},
		{"half", 4.45, 4.5},
		{"large", 199.94, 199.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToOneDecimal(tt.value), 1e-9)
		})
	}
}

func TestValidateValue(t *testing.T) {
	for _, v := range []float64{0, 0.5, 2.75, 5} {
		assert.NoError(t, ValidateValue(v), "value %v", v)
	}
	for _, v := range []float64{-1, -0.01, 5.1, 6} {
		err := ValidateValue(v)
		require.Error(t, err, "value %v", v)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestAggregatorScenario(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)

	rate(t, agg, "w1", 4)
	five := rate(t, agg, "w1", 5)
	three := rate(t, agg, "w1", 3)
	assert.Equal(t, domain.RatingAggregate{Average: 4.0, Count: 3}, st.aggregate("w1"))

	comment := "  better on a second try "
	updated, err := agg.OnRatingUpdated(ctx, three.ID, 5, &comment)
	require.NoError(t, err)
	require.NotNil(t, updated.Comment)
	assert.Equal(t, "better on a second try", *updated.Comment)
	assert.Equal(t, domain.RatingAggregate{Average: 4.7, Count: 3}, st.aggregate("w1"))

	deleted, err := agg.OnRatingDeleted(ctx, five.ID)
	require.NoError(t, err)
	assert.Equal(t, "w1", deleted.WineID)
	assert.Equal(t, domain.RatingAggregate{Average: 4.5, Count: 2}, st.aggregate("w1"))

	assert.Equal(t, domain.RatingAggregate{}, st.aggregate("w2"), "other wine untouched")
}

func TestAggregatorDeleteLastResets(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)

	r := rate(t, agg, "w1", 2.5)
	require.Equal(t, domain.RatingAggregate{Average: 2.5, Count: 1}, st.aggregate("w1"))

	_, err := agg.OnRatingDeleted(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RatingAggregate{Average: 0, Count: 0}, st.aggregate("w1"))
}

func TestAggregatorRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)
	existing := rate(t, agg, "w1", 4)
	before := st.aggregate("w1")

	for _, v := range []float64{-1, 5.1} {
		_, err := agg.OnRatingCreated(ctx, CreateParams{UserID: "alice", WineID: "w1", Value: v})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "create value %v", v)
		assert.Equal(t, "rating", verr.Field)

		_, err = agg.OnRatingUpdated(ctx, existing.ID, v, nil)
		assert.ErrorIs(t, err, domain.ErrValidation, "update value %v", v)
	}
	assert.Equal(t, before, st.aggregate("w1"))
	assert.Len(t, st.ratings, 1)
}

func TestAggregatorNotFound(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)

	_, err := agg.OnRatingCreated(ctx, CreateParams{UserID: "alice", WineID: "missing", Value: 3})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "wine", nf.Entity)

	_, err = agg.OnRatingCreated(ctx, CreateParams{UserID: "ghost", WineID: "w1", Value: 3})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Entity)
	assert.Empty(t, st.ratings, "nothing persisted for unknown user")

	_, err = agg.OnRatingUpdated(ctx, "nope", 3, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = agg.OnRatingDeleted(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = agg.Recompute(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAggregatorStoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)
	st.fail = errors.New("disk on fire")

	_, err := agg.OnRatingCreated(ctx, CreateParams{UserID: "alice", WineID: "w1", Value: 4})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, st.ratings, "insert discarded when recompute fails")
	assert.Equal(t, domain.RatingAggregate{}, st.aggregate("w1"))
}

func TestAggregatorRecomputeRepairsDrift(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)
	rate(t, agg, "w1", 1)
	rate(t, agg, "w1", 2)

	st.mu.Lock()
	st.wines["w1"] = domain.RatingAggregate{Average: 4.9, Count: 99}
	st.mu.Unlock()

	got, err := agg.Recompute(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.RatingAggregate{Average: 1.5, Count: 2}, got)
	assert.Equal(t, got, st.aggregate("w1"))
}

func TestAggregatorConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	agg, st := newTestAggregator(t)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "alice"
			if i%2 == 0 {
				user = "bob"
			}
			_, err := agg.OnRatingCreated(ctx, CreateParams{UserID: user, WineID: "w1", Value: float64(i % 6)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var sum float64
	for i := 0; i < workers; i++ {
		sum += float64(i % 6)
	}
	got := st.aggregate("w1")
	assert.Equal(t, int64(workers), got.Count)
	assert.InDelta(t, RoundToOneDecimal(sum/workers), got.Average, 1e-9)
}
