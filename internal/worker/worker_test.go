package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-eval/internal/db"
	"audio-eval/internal/schemas"
	"audio-eval/internal/testutil"
)

type fakeStore struct {
	keys []string
	objs []any
	err  error
}

func (f *fakeStore) PutJSON(_ context.Context, key string, v any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	f.objs = append(f.objs, v)
	return "s3://archive/" + key, nil
}

func TestHandleArchive(t *testing.T) {
	ctx := context.Background()
	dbx := testutil.NewDB(t)
	_, err := db.SaveProgress(ctx, dbx, "alice", "mos", "exp1", []byte(`{"u1:GT":5}`))
	require.NoError(t, err)
	_, err = db.SaveProgress(ctx, dbx, "alice", "comparison", "exp1", []byte(`{"u1":{"a":"good"}}`))
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	s := &Server{DB: dbx, Store: store, Now: func() time.Time { return at }}

	task, err := NewArchiveTask("alice")
	require.NoError(t, err)
	require.NoError(t, s.handleArchive(ctx, task))

	require.Equal(t, []string{"exports/alice/20260301T120000.000000Z.json"}, store.keys)
	export, ok := store.objs[0].(schemas.UserExport)
	require.True(t, ok)
	assert.Len(t, export.Progress, 2)
	assert.Equal(t, "alice", export.UserID)

	archives, err := db.ListArchives(ctx, dbx, "alice")
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, "s3://archive/exports/alice/20260301T120000.000000Z.json", archives[0].ObjectRef)
	assert.Equal(t, int64(2), archives[0].Records)
}

func TestHandleArchiveStoreFailure(t *testing.T) {
	dbx := testutil.NewDB(t)
	s := &Server{DB: dbx, Store: &fakeStore{err: errors.New("bucket gone")}}
	task, err := NewArchiveTask("bob")
	require.NoError(t, err)
	assert.Error(t, s.handleArchive(context.Background(), task))

	archives, err := db.ListArchives(context.Background(), dbx, "bob")
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestHandleArchiveBadPayload(t *testing.T) {
	s := &Server{DB: testutil.NewDB(t), Store: &fakeStore{}}
	err := s.handleArchive(context.Background(), asynq.NewTask(TypeArchiveProgress, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewArchiveTask(t *testing.T) {
	task, err := NewArchiveTask("carol")
	require.NoError(t, err)
	assert.Equal(t, TypeArchiveProgress, task.Type())
	var p archivePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "carol", p.UserID)
}

func TestBuildExportEmpty(t *testing.T) {
	out, err := BuildExport(context.Background(), testutil.NewDB(t), "nobody", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Empty(t, out.Progress)
	assert.NotNil(t, out.Progress)
	assert.Equal(t, "1970-01-01T00:00:00.000000Z", out.ExportedAt)
}
