package ports

import (
	"context"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUOWStoreContract runs a suite of tests to verify that a UOWStore implementation
// adheres to the defined interface contract.
func RunUOWStoreContract(t *testing.T, store UOWStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	newUOW := func(status domain.Status, location string, since time.Time) (*domain.UOW, *domain.HistoryEntry) {
		u := &domain.UOW{
			ID:            uuid.NewString(),
			Status:        status,
			Location:      location,
			Attributes:    map[string]any{"amount": float64(75000), "region": "emea"},
			ContentHash:   "h-1",
			Version:       1,
			HistorySeq:    1,
			LocationSince: since,
			CreatedAt:     since,
			UpdatedAt:     since,
		}
		e := &domain.HistoryEntry{
			ID:           uuid.NewString(),
			UOWID:        u.ID,
			Seq:          1,
			EventType:    domain.EventCreated,
			NewStatus:    status,
			NewStateHash: "h-1",
			NewLocation:  location,
			Timestamp:    since,
		}
		return u, e
	}

	t.Run("Create and Get", func(t *testing.T) {
		u, e := newUOW(domain.StatusPending, "intake", base)
		u.ParentID = domain.StringPtr("parent-" + u.ID)
		u.Origin = "external"
		require.NoError(t, store.Create(ctx, u, e))

		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.Parent(), got.Parent())
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Equal(t, "intake", got.Location)
		assert.Equal(t, "emea", got.Attributes["region"])
		assert.EqualValues(t, 75000, got.Attributes["amount"])
		assert.Equal(t, "h-1", got.ContentHash)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "external", got.Origin)
		assert.Nil(t, got.LastHeartbeat)
		assert.True(t, base.Equal(got.LocationSince), "location_since round-trips")
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		u, e := newUOW(domain.StatusPending, "intake", base)
		require.NoError(t, store.Create(ctx, u, e))
		err := store.Create(ctx, u, e)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrUOWNotFound)
	})

	t.Run("Returned Values Are Copies", func(t *testing.T) {
		u, e := newUOW(domain.StatusPending, "intake", base)
		require.NoError(t, store.Create(ctx, u, e))

		u.Attributes["region"] = "mutated"
		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "emea", got.Attributes["region"])

		got.Attributes["region"] = "mutated"
		again, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "emea", again.Attributes["region"])
	})

	t.Run("Update With Version Check", func(t *testing.T) {
		u, e := newUOW(domain.StatusPending, "intake", base)
		require.NoError(t, store.Create(ctx, u, e))

		hb := base.Add(time.Second)
		next := u.Clone()
		next.Status = domain.StatusActive
		next.WorkerID = "w-1"
		next.LastHeartbeat = &hb
		next.Version = 2
		next.HistorySeq = 2
		entry := &domain.HistoryEntry{
			ID:                uuid.NewString(),
			UOWID:             u.ID,
			Seq:               2,
			EventType:         domain.EventTransition,
			PreviousStatus:    domain.StatusPending,
			NewStatus:         domain.StatusActive,
			PreviousStateHash: domain.StringPtr("h-1"),
			NewStateHash:      "h-1",
			PreviousLocation:  "intake",
			NewLocation:       "intake",
			WorkerID:          domain.StringPtr("w-1"),
			Timestamp:         hb,
			Rationale:         "claimed",
			Metadata:          map[string]any{"reason": "claim"},
		}
		require.NoError(t, store.Update(ctx, next, 1, entry))

		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, got.Status)
		assert.Equal(t, "w-1", got.WorkerID)
		assert.Equal(t, int64(2), got.Version)
		require.NotNil(t, got.LastHeartbeat)
		assert.True(t, hb.Equal(*got.LastHeartbeat))

		stale := u.Clone()
		stale.Status = domain.StatusTimeout
		stale.Version = 2
		err = store.Update(ctx, stale, 1, nil)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		history, err := store.History(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, int64(1), history[0].Seq)
		assert.Nil(t, history[0].PreviousStateHash)
		assert.Equal(t, int64(2), history[1].Seq)
		require.NotNil(t, history[1].PreviousStateHash)
		assert.Equal(t, "h-1", *history[1].PreviousStateHash)
		require.NotNil(t, history[1].WorkerID)
		assert.Equal(t, "w-1", *history[1].WorkerID)
		assert.Equal(t, "claimed", history[1].Rationale)
		assert.Equal(t, "claim", history[1].Metadata["reason"])
	})

	t.Run("Update Without History", func(t *testing.T) {
		u, e := newUOW(domain.StatusActive, "review", base)
		require.NoError(t, store.Create(ctx, u, e))

		hb := base.Add(time.Minute)
		next := u.Clone()
		next.LastHeartbeat = &hb
		next.Version = 2
		require.NoError(t, store.Update(ctx, next, 1, nil))

		history, err := store.History(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		u, _ := newUOW(domain.StatusPending, "intake", base)
		u.Version = 2
		err := store.Update(ctx, u, 1, nil)
		assert.ErrorIs(t, err, domain.ErrUOWNotFound)
	})

	t.Run("Audit Trail", func(t *testing.T) {
		u, e := newUOW(domain.StatusPending, "intake", base)
		require.NoError(t, store.Create(ctx, u, e))

		require.NoError(t, store.AppendAudit(ctx, domain.AuditEntry{
			ID:        uuid.NewString(),
			UOWID:     u.ID,
			EventType: domain.EventRejectedTransition,
			Status:    domain.StatusPending,
			Requested: domain.StatusFinalized,
			Timestamp: base,
			Reason:    "illegal transition PENDING -> FINALIZED",
		}))
		require.NoError(t, store.AppendAudit(ctx, domain.AuditEntry{
			ID:        uuid.NewString(),
			UOWID:     u.ID,
			EventType: domain.EventIntegrityDrift,
			Status:    domain.StatusPending,
			Timestamp: base.Add(time.Second),
			Reason:    "drift",
		}))

		audit, err := store.Audit(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, audit, 2)
		assert.Equal(t, domain.EventRejectedTransition, audit[0].EventType)
		assert.Equal(t, domain.StatusFinalized, audit[0].Requested)
		assert.Equal(t, domain.EventIntegrityDrift, audit[1].EventType)

		history, err := store.History(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1, "audit entries never join the history")
	})

	t.Run("List Children", func(t *testing.T) {
		parent, pe := newUOW(domain.StatusActive, "split", base)
		require.NoError(t, store.Create(ctx, parent, pe))

		for i := 0; i < 3; i++ {
			c, ce := newUOW(domain.StatusCreated, "split", base)
			c.ParentID = domain.StringPtr(parent.ID)
			require.NoError(t, store.Create(ctx, c, ce))
		}

		children, err := store.ListChildren(ctx, parent.ID)
		require.NoError(t, err)
		assert.Len(t, children, 3)
		for _, c := range children {
			assert.Equal(t, parent.ID, c.Parent())
		}

		none, err := store.ListChildren(ctx, "no-parent-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("List By Status", func(t *testing.T) {
		loc := "queue-" + uuid.NewString()
		later, le := newUOW(domain.StatusPending, loc, base.Add(2*time.Second))
		earlier, ee := newUOW(domain.StatusPending, loc, base.Add(time.Second))
		other, oe := newUOW(domain.StatusPending, loc+"-other", base)
		active, ae := newUOW(domain.StatusActive, loc, base)
		for _, p := range []struct {
			u *domain.UOW
			e *domain.HistoryEntry
		}{{later, le}, {earlier, ee}, {other, oe}, {active, ae}} {
			require.NoError(t, store.Create(ctx, p.u, p.e))
		}

		pending, err := store.ListByStatus(ctx, domain.StatusPending, loc)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, earlier.ID, pending[0].ID, "oldest first")
		assert.Equal(t, later.ID, pending[1].ID)

		all, err := store.ListByStatus(ctx, domain.StatusPending, "")
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, u := range all {
			ids = append(ids, u.ID)
		}
		assert.Contains(t, ids, other.ID)
		assert.NotContains(t, ids, active.ID)

		// Moving out of a status removes the record from that listing.
		moved := earlier.Clone()
		moved.Status = domain.StatusActive
		moved.Version = 2
		require.NoError(t, store.Update(ctx, moved, 1, nil))
		pending, err = store.ListByStatus(ctx, domain.StatusPending, loc)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, later.ID, pending[0].ID)
	})

	t.Run("Normalized Attributes Keep Their Hash", func(t *testing.T) {
		type line struct {
			Zeta  int `json:"zeta"`
			Alpha int `json:"alpha"`
		}
		attrs, err := domain.NormalizeAttributes(map[string]any{
			"big":  int64(1<<53 + 1),
			"line": line{Zeta: 1, Alpha: 2},
			"tags": []string{"b", "a"},
			"rate": 0.25,
		})
		require.NoError(t, err)
		hash, err := integrity.Hash(attrs)
		require.NoError(t, err)

		u, e := newUOW(domain.StatusPending, "hash-"+uuid.NewString(), base)
		u.Attributes = attrs
		u.ContentHash = hash
		e.NewStateHash = hash
		require.NoError(t, store.Create(ctx, u, e))

		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1<<53+1), got.Attributes["big"])
		res, err := integrity.Verify(got)
		require.NoError(t, err)
		assert.True(t, res.IsValid, "stored %s, computed %s", res.StoredHash, res.CurrentHash)

		next := got.Clone()
		next.Version = 2
		require.NoError(t, store.Update(ctx, next, 1, nil))
		again, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		res, err = integrity.Verify(again)
		require.NoError(t, err)
		assert.True(t, res.IsValid)
	})
}
