package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audio-eval/internal/db"
	"audio-eval/internal/schemas"
	"audio-eval/internal/worker"
)

const (
	maxUserIDLen       = 100
	maxProgressEntries = 10000
	maxBodyBytes       = 8 << 20
)

// Enqueuer is the slice of *asynq.Client the server needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ArchiveReader fetches stored export snapshots. *storage.Client satisfies it.
type ArchiveReader interface {
	GetJSON(ctx context.Context, ref string, v any) error
}

type Server struct {
	DB       *sqlx.DB
	Queue    Enqueuer
	Archives ArchiveReader
}

type Options struct {
	Port     int
	APIToken string
}

func NewServer(dbx *sqlx.DB, queue Enqueuer, archives ArchiveReader, opts Options) *http.Server {
	s := &Server{DB: dbx, Queue: queue, Archives: archives}
	return &http.Server{
		Addr:              ":" + strconv.Itoa(opts.Port),
		Handler:           s.Router(opts.APIToken),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) Router(apiToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, m.Logger, m.Recoverer, AllowAllOrigins)

	r.Get("/api/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", s.listUsers)
		r.Get("/{userID}", s.getUser)
		r.Get("/{userID}/progress", s.listUserProgress)
		r.Get("/{userID}/archives", s.listArchives)
		r.Group(func(r chi.Router) {
			r.Use(RequireAPIToken(apiToken))
			r.Post("/", s.createUser)
			r.Delete("/{userID}", s.deleteUser)
		})
	})

	r.Route("/api/progress", func(r chi.Router) {
		r.Get("/export/{userID}", s.exportAll)
		r.Get("/{tool}/{experiment}/{userID}", s.getProgress)
		r.Group(func(r chi.Router) {
			r.Use(RequireAPIToken(apiToken))
			r.Post("/export/{userID}/archive", s.archive)
			r.Post("/{tool}/{experiment}/{userID}", s.saveProgress)
			r.Delete("/{tool}/{experiment}/{userID}", s.deleteProgress)
		})
	})

	r.Get("/api/archives/{archiveID}", s.getArchive)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, schemas.ErrorResponse{Error: msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		clog.FromContext(r.Context()).Errorf("health: db ping: %v", err)
		writeJSON(w, http.StatusInternalServerError, schemas.HealthResponse{Status: "db error"})
		return
	}
	writeJSON(w, http.StatusOK, schemas.HealthResponse{Status: "ok", Timestamp: db.Timestamp(time.Now())})
}

func toUser(u db.User) schemas.User {
	return schemas.User{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := db.ListUsers(r.Context(), s.DB)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]schemas.User, 0, len(users))
	for _, u := range users {
		out = append(out, toUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := db.GetUser(r.Context(), s.DB, chi.URLParam(r, "userID"))
	if errors.Is(err, db.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.ID == nil {
		writeErr(w, http.StatusBadRequest, "User ID is required")
		return
	}
	id := strings.TrimSpace(*req.ID)
	if id == "" {
		writeErr(w, http.StatusBadRequest, "User ID cannot be empty")
		return
	}
	if len(id) > maxUserIDLen {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("User ID too long (max %d characters)", maxUserIDLen))
		return
	}
	name := id
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}

	u, created, err := db.UpsertUser(r.Context(), s.DB, id, name)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, schemas.CreateUserResponse{User: toUser(u), Message: "User already exists, name updated"})
		return
	}
	usersCreated.Inc()
	clog.FromContext(r.Context()).Infof("created user %s", id)
	writeJSON(w, http.StatusCreated, schemas.CreateUserResponse{User: toUser(u)})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	err := db.DeleteUser(r.Context(), s.DB, id)
	if errors.Is(err, db.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schemas.DeleteUserResponse{Message: "User and all progress deleted", UserID: id})
}

func (s *Server) listUserProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if _, err := db.GetUser(r.Context(), s.DB, id); errors.Is(err, db.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "User not found")
		return
	} else if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := db.ListProgress(r.Context(), s.DB, id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := schemas.UserProgressList{UserID: id, Progress: make([]schemas.ProgressSummary, 0, len(rows))}
	for _, p := range rows {
		out.Progress = append(out.Progress, schemas.ProgressSummary{
			Tool:       p.Tool,
			Experiment: p.Experiment,
			ItemCount:  schemas.Tool(p.Tool).CountItems(p.Data),
			UpdatedAt:  p.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	tool, exp, id := chi.URLParam(r, "tool"), chi.URLParam(r, "experiment"), chi.URLParam(r, "userID")
	out := schemas.ProgressData{UserID: id, Tool: tool, Experiment: exp}
	p, err := db.GetProgress(r.Context(), s.DB, id, tool, exp)
	switch {
	case errors.Is(err, db.ErrNotFound):
		progressLoads.WithLabelValues(tool, "false").Inc()
		writeJSON(w, http.StatusOK, out)
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	progressLoads.WithLabelValues(tool, "true").Inc()
	out.Data = json.RawMessage(p.Data)
	out.UpdatedAt = &p.UpdatedAt
	writeJSON(w, http.StatusOK, out)
}

// validateProgress accepts a JSON object or array of bounded size.
func validateProgress(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("Progress data is required")
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		if len(obj) > maxProgressEntries {
			return fmt.Errorf("Progress data too large (max %d keys)", maxProgressEntries)
		}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		if len(arr) > maxProgressEntries {
			return fmt.Errorf("Progress data too large (max %d items)", maxProgressEntries)
		}
	default:
		if !json.Valid(trimmed) {
			return errors.New("invalid JSON")
		}
		return errors.New("Progress data must be an object or array")
	}
	return nil
}

func (s *Server) saveProgress(w http.ResponseWriter, r *http.Request) {
	tool, exp, id := chi.URLParam(r, "tool"), chi.URLParam(r, "experiment"), chi.URLParam(r, "userID")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateProgress(body); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	body = bytes.TrimSpace(body)
	p, err := db.SaveProgress(r.Context(), s.DB, id, tool, exp, body)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	progressSaves.WithLabelValues(tool).Inc()
	writeJSON(w, http.StatusOK, schemas.ProgressData{
		UserID:     id,
		Tool:       tool,
		Experiment: exp,
		Data:       json.RawMessage(body),
		UpdatedAt:  &p.UpdatedAt,
	})
}

func (s *Server) deleteProgress(w http.ResponseWriter, r *http.Request) {
	tool, exp, id := chi.URLParam(r, "tool"), chi.URLParam(r, "experiment"), chi.URLParam(r, "userID")
	if err := db.DeleteProgress(r.Context(), s.DB, id, tool, exp); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schemas.MessageResponse{Message: "Progress deleted"})
}

func (s *Server) exportAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	out, err := worker.BuildExport(r.Context(), s.DB, id, time.Now())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if s.Queue == nil {
		writeErr(w, http.StatusServiceUnavailable, "archive queue not configured")
		return
	}
	task, err := worker.NewArchiveTask(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	info, err := s.Queue.EnqueueContext(r.Context(), task, asynq.MaxRetry(3))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	archivesEnqueued.Inc()
	writeJSON(w, http.StatusAccepted, schemas.ArchiveAccepted{UserID: id, TaskID: info.ID, Status: "enqueued"})
}

func (s *Server) listArchives(w http.ResponseWriter, r *http.Request) {
	rows, err := db.ListArchives(r.Context(), s.DB, chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]schemas.ArchiveInfo, 0, len(rows))
	for _, a := range rows {
		out = append(out, schemas.ArchiveInfo{ID: a.ID, UserID: a.UserID, ObjectRef: a.ObjectRef, Records: a.Records, CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// getArchive streams back the export snapshot an archive job stored.
func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	if s.Archives == nil {
		writeErr(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	a, err := db.GetArchive(r.Context(), s.DB, chi.URLParam(r, "archiveID"))
	if errors.Is(err, db.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Archive not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	var export schemas.UserExport
	if err := s.Archives.GetJSON(r.Context(), a.ObjectRef, &export); err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, export)
}
