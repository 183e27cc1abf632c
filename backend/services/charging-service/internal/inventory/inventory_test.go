package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/metrics"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
)

func newStation(t *testing.T, store *memstore.Store, ports, available int) models.ID {
	t.Helper()
	st := &models.Station{
		Name:    "Sudirman Hub",
		Address: "Jl. Jend. Sudirman",
		Connectors: []models.Connector{
			{Type: models.ConnectorCCS2, PowerKW: 60, Ports: ports, AvailablePorts: available},
		},
	}
	_, err := store.InsertStation(context.Background(), st)
	require.NoError(t, err)
	return st.ID
}

func TestConcurrentReserveOfLastPort(t *testing.T) {
	store := memstore.New()
	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)
	inv := New(store, rec, zap.NewNop())
	stationID := newStation(t, store, 1, 1)

	var reserved, refused atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := inv.Reserve(context.Background(), stationID, models.ConnectorCCS2)
			assert.NoError(t, err)
			switch outcome {
			case Reserved:
				reserved.Add(1)
			case NoAvailablePorts:
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, reserved.Load())
	assert.EqualValues(t, 1, refused.Load())

	st, err := store.GetStation(context.Background(), stationID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Connectors[0].AvailablePorts)
	series, err := testutil.GatherAndCount(reg, "chargeway_connector_reservations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestReserveUnknownConnector(t *testing.T) {
	store := memstore.New()
	inv := New(store, nil, nil)
	stationID := newStation(t, store, 1, 1)

	outcome, err := inv.Reserve(context.Background(), stationID, models.ConnectorType2)
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)

	outcome, err = inv.Reserve(context.Background(), models.NewID(), models.ConnectorCCS2)
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
}

func TestReleaseNeverExceedsCapacity(t *testing.T) {
	store := memstore.New()
	inv := New(store, nil, nil)
	stationID := newStation(t, store, 2, 1)

	require.NoError(t, inv.Release(context.Background(), stationID, models.ConnectorCCS2))
	require.NoError(t, inv.Release(context.Background(), stationID, models.ConnectorCCS2))

	st, err := store.GetStation(context.Background(), stationID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Connectors[0].AvailablePorts)
}

type failingStore struct{ err error }

func (f failingStore) Reserve(context.Context, models.ID, models.ConnectorType) error { return f.err }
func (f failingStore) Release(context.Context, models.ID, models.ConnectorType) error { return f.err }

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")
	inv := New(failingStore{err: boom}, nil, nil)

	_, err := inv.Reserve(context.Background(), models.NewID(), models.ConnectorCCS2)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, inv.Release(context.Background(), models.NewID(), models.ConnectorCCS2), boom)
}
