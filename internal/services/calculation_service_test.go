package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocalc/internal/cache"
	"ecocalc/internal/core"
	"ecocalc/internal/storage"
	"ecocalc/internal/storage/memory"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []core.CalculationResult
	err       error
	closed    bool
}

func (p *fakePublisher) PublishCalculationCreated(_ context.Context, r core.CalculationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type failingStore struct {
	*memory.Store
	saveErr    error
	summaryErr error
	closeErr   error
}

func (f *failingStore) SaveCalculation(ctx context.Context, rec core.CalculationRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.SaveCalculation(ctx, rec)
}

func (f *failingStore) Summary(ctx context.Context) (core.UsageSummary, error) {
	if f.summaryErr != nil {
		return core.UsageSummary{}, f.summaryErr
	}
	return f.Store.Summary(ctx)
}

func (f *failingStore) Ping(context.Context) error { return f.summaryErr }

func (f *failingStore) Close() error { return f.closeErr }

func sequentialCalculator() *core.Calculator {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return core.NewCalculatorWith(
		func() time.Time { return base.Add(time.Duration(n) * time.Second) },
		func() string { n++; return fmt.Sprintf("calc-%02d", n) },
	)
}

func sampleInput() core.CalculationInput {
	return core.CalculationInput{
		Scope1: core.Scope1Inputs{NaturalGas: 100},
		Scope2: core.Scope2Inputs{Electricity: 1000},
	}
}

func TestCalculateStoresAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &fakePublisher{}
	svc := NewCalculationService(store, pub, WithCalculator(sequentialCalculator()))

	res, err := svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "calc-01", res.ID)
	assert.Equal(t, 202.0, res.Scope1)
	assert.Equal(t, 698.0, res.Scope2)
	assert.Equal(t, 0.0, res.Scope3)
	assert.Equal(t, 900.0, res.Total)

	stored, err := store.GetCalculation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleInput(), stored.Payload)

	require.Len(t, pub.published, 1)
	assert.Equal(t, res.ID, pub.published[0].ID)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	store := memory.New()
	svc := NewCalculationService(store, nil)

	_, err := svc.Calculate(context.Background(), core.CalculationInput{Scope3: core.Scope3Inputs{Waste: -5}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)

	sum, err := store.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.TotalCalculations)
}

func TestCalculatePublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewCalculationService(memory.New(), pub)

	res, err := svc.Calculate(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
}

func TestCalculateStorageFailure(t *testing.T) {
	pub := &fakePublisher{}
	store := &failingStore{Store: memory.New(), saveErr: errors.New("disk full")}
	svc := NewCalculationService(store, pub)

	_, err := svc.Calculate(context.Background(), sampleInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, pub.published, "nothing is published when the save fails")
}

func TestHistoryLimits(t *testing.T) {
	ctx := context.Background()
	svc := NewCalculationService(memory.New(), nil, WithCalculator(sequentialCalculator()))

	for i := 0; i < 3; i++ {
		_, err := svc.Calculate(ctx, sampleInput())
		require.NoError(t, err)
	}

	got, err := svc.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "calc-03", got[0].ID)
	assert.Equal(t, "calc-02", got[1].ID)

	_, err = svc.History(ctx, 0)
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, "Limit must be at least 1.", err.Error())

	_, err = svc.History(ctx, 101)
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, "Limit cannot exceed 100 records.", err.Error())

	got, err = svc.History(ctx, MaxHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCalculationLookup(t *testing.T) {
	ctx := context.Background()
	svc := NewCalculationService(memory.New(), nil, WithCalculator(sequentialCalculator()))

	res, err := svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)

	got, err := svc.Calculation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Total, got.Total)

	_, err = svc.Calculation(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := NewCalculationService(memory.New(), nil)

	empty, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalCalculations)
	assert.Zero(t, empty.AverageEmission)
	assert.Nil(t, empty.LastCalculationAt)

	_, err = svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)
	_, err = svc.Calculate(ctx, core.CalculationInput{Scope1: core.Scope1Inputs{NaturalGas: 50}})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCalculations)
	assert.Equal(t, 1001.0, stats.TotalEmissions)
	assert.Equal(t, 500.5, stats.AverageEmission)
	require.NotNil(t, stats.LastTotal)
	assert.Equal(t, 101.0, *stats.LastTotal)
	assert.Equal(t, 151.5, stats.ScopeAverages.Scope1)
	assert.Equal(t, 349.0, stats.ScopeAverages.Scope2)
}

func TestStatsCacheInvalidatedOnCalculate(t *testing.T) {
	ctx := context.Background()
	statsCache := cache.NewLRUCache[core.UsageStats](1, time.Hour)
	svc := NewCalculationService(memory.New(), nil, WithStatsCache(statsCache))

	_, err := svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)

	first, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, statsCache.Size())

	_, err = svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 0, statsCache.Size())

	second, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.TotalCalculations+1, second.TotalCalculations)
}

// slowSummaryStore returns the summary it read before pausing, so a write
// can land while the first Stats call is in flight.
type slowSummaryStore struct {
	*memory.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *slowSummaryStore) Summary(ctx context.Context) (core.UsageSummary, error) {
	sum, err := s.Store.Summary(ctx)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return sum, err
}

func TestStatsDoesNotCacheSnapshotOlderThanWrite(t *testing.T) {
	ctx := context.Background()
	store := &slowSummaryStore{Store: memory.New(), read: make(chan struct{}), release: make(chan struct{})}
	statsCache := cache.NewLRUCache[core.UsageStats](1, time.Hour)
	svc := NewCalculationService(store, nil, WithStatsCache(statsCache))

	inFlight := make(chan core.UsageStats, 1)
	go func() {
		stats, err := svc.Stats(ctx)
		assert.NoError(t, err)
		inFlight <- stats
	}()

	<-store.read
	_, err := svc.Calculate(ctx, sampleInput())
	require.NoError(t, err)
	close(store.release)

	stale := <-inFlight
	assert.EqualValues(t, 0, stale.TotalCalculations)
	assert.Equal(t, 0, statsCache.Size(), "snapshot older than the write must not be cached")

	fresh, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fresh.TotalCalculations)
}

func TestStatsStorageError(t *testing.T) {
	store := &failingStore{Store: memory.New(), summaryErr: errors.New("db locked")}
	svc := NewCalculationService(store, nil)

	_, err := svc.Stats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage summary")
}

func TestHealthAndReady(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	svc := NewCalculationService(memory.New(), nil, WithClock(func() time.Time { return now }))

	h := svc.Health()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, time.UTC, h.Timestamp.Location())
	assert.True(t, h.Timestamp.Equal(now))
	assert.NoError(t, svc.Ready(context.Background()))

	bad := NewCalculationService(&failingStore{Store: memory.New(), summaryErr: errors.New("gone")}, nil)
	assert.Error(t, bad.Ready(context.Background()))
}

func TestClose(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		svc := &CalculationService{}
		assert.NoError(t, svc.Close())
	})

	t.Run("closes publisher", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := NewCalculationService(memory.New(), pub)
		require.NoError(t, svc.Close())
		assert.True(t, pub.closed)
	})

	t.Run("aggregates errors", func(t *testing.T) {
		store := &failingStore{Store: memory.New(), closeErr: errors.New("busy")}
		err := NewCalculationService(store, nil).Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage: busy")
	})
}
