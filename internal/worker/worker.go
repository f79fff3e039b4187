package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"audio-eval/internal/db"
	"audio-eval/internal/schemas"
)

const TypeArchiveProgress = "archive_progress"

type archivePayload struct {
	UserID string `json:"userId"`
}

func NewArchiveTask(userID string) (*asynq.Task, error) {
	b, err := json.Marshal(archivePayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeArchiveProgress, b), nil
}

// ObjectStore is where archives land. *storage.Client satisfies it.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

type Server struct {
	DB    *sqlx.DB
	Store ObjectStore
	Now   func() time.Time
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeArchiveProgress, s.handleArchive)
	return mux
}

// BuildExport collects every progress record a user owns.
func BuildExport(ctx context.Context, q sqlx.ExtContext, userID string, now time.Time) (schemas.UserExport, error) {
	rows, err := db.ListProgress(ctx, q, userID)
	if err != nil {
		return schemas.UserExport{}, err
	}
	out := schemas.UserExport{
		UserID:     userID,
		ExportedAt: db.Timestamp(now),
		Progress:   make([]schemas.ExportedProgress, 0, len(rows)),
	}
	for _, p := range rows {
		out.Progress = append(out.Progress, schemas.ExportedProgress{
			Tool:       p.Tool,
			Experiment: p.Experiment,
			Data:       json.RawMessage(p.Data),
			UpdatedAt:  p.UpdatedAt,
		})
	}
	return out, nil
}

// ArchiveKey is the object key for a user's export taken at t.
func ArchiveKey(userID string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%s.json", userID, t.UTC().Format("20060102T150405.000000Z"))
}

func (s *Server) handleArchive(ctx context.Context, t *asynq.Task) error {
	var p archivePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.UserID == "" {
		// malformed payloads never succeed on retry
		return fmt.Errorf("bad archive payload %q: %w", t.Payload(), asynq.SkipRetry)
	}
	log := clog.FromContext(ctx).With("user", p.UserID)
	log.Infof("archiving progress")

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	export, err := BuildExport(ctx, s.DB, p.UserID, now)
	if err != nil {
		return err
	}
	ref, err := s.Store.PutJSON(ctx, ArchiveKey(p.UserID, now), export)
	if err != nil {
		log.Errorf("put archive: %v", err)
		return err
	}
	if err := db.InsertArchive(ctx, s.DB, db.Archive{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		ObjectRef: ref,
		Records:   int64(len(export.Progress)),
		CreatedAt: db.Timestamp(now),
	}); err != nil {
		return err
	}
	log.Infof("archived %d records to %s", len(export.Progress), ref)
	return nil
}

func Run(addr string, concurrency int, dbx *sqlx.DB, store ObjectStore) error {
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: addr}, asynq.Config{Concurrency: concurrency})
	w := &Server{DB: dbx, Store: store}
	return srv.Run(w.mux())
}
