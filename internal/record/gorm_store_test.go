package record

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func TestGormStore_Create_And_Get(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, "alice", "my stream", "broadcast")
	req.NoError(err)
	req.NotEmpty(id)

	rec, err := store.GetRecord(ctx, id)
	req.NoError(err)
	req.Equal("alice", rec.OwnerID)
	req.Equal("my stream", rec.Title)
	req.Equal("broadcast", rec.Mode)
	req.True(rec.IsLive)
	req.Zero(rec.ViewerCount)
	req.Nil(rec.EndedAt)
}

func TestGormStore_Get_Unknown_Record(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	_, err := store.GetRecord(context.Background(), "no-such-record")
	req.ErrorIs(err, ErrRecordNotFound)
}

func TestGormStore_Viewer_Counter(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, "alice", "stream", "mesh")
	req.NoError(err)

	req.NoError(store.IncrementViewers(ctx, id))
	req.NoError(store.IncrementViewers(ctx, id))
	req.NoError(store.DecrementViewers(ctx, id))

	rec, err := store.GetRecord(ctx, id)
	req.NoError(err)
	req.Equal(1, rec.ViewerCount)
}

func TestGormStore_Decrement_Floors_At_Zero(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, "alice", "stream", "mesh")
	req.NoError(err)

	req.NoError(store.DecrementViewers(ctx, id))
	req.NoError(store.DecrementViewers(ctx, id))

	rec, err := store.GetRecord(ctx, id)
	req.NoError(err)
	req.Equal(0, rec.ViewerCount)
}

func TestGormStore_MarkEnded(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, "alice", "stream", "broadcast")
	req.NoError(err)
	req.NoError(store.IncrementViewers(ctx, id))

	req.NoError(store.MarkEnded(ctx, id))

	rec, err := store.GetRecord(ctx, id)
	req.NoError(err)
	req.False(rec.IsLive)
	req.NotNil(rec.EndedAt)
	req.Zero(rec.ViewerCount)
}

func TestGormStore_ListLive(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	live, err := store.CreateRecord(ctx, "alice", "live one", "broadcast")
	req.NoError(err)

	ended, err := store.CreateRecord(ctx, "bob", "finished", "broadcast")
	req.NoError(err)
	req.NoError(store.MarkEnded(ctx, ended))

	records, err := store.ListLive(ctx, 10)
	req.NoError(err)
	req.Len(records, 1)
	req.Equal(live, records[0].ID)
}
