package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// TimeLayout is how every *_at column stores time. Fixed-width fractions keep
// lexical and chronological order the same.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var now = func() time.Time { return time.Now().UTC() }

func ListUsers(ctx context.Context, q sqlx.ExtContext) ([]User, error) {
	users := make([]User, 0)
	err := sqlx.SelectContext(ctx, q, &users, `select id, name, created_at from users order by name`)
	return users, err
}

func GetUser(ctx context.Context, q sqlx.ExtContext, id string) (User, error) {
	var u User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`select id, name, created_at from users where id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// UpsertUser inserts a new user or renames an existing one. created reports
// whether a row was inserted; the returned user keeps its original CreatedAt.
func UpsertUser(ctx context.Context, db *sqlx.DB, id, name string) (u User, created bool, err error) {
	err = WithTx(ctx, db, func(tx *sqlx.Tx) error {
		existing, err := GetUser(ctx, tx, id)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, tx.Rebind(`update users set name = ? where id = ?`), name, id); err != nil {
				return err
			}
			u = User{ID: id, Name: name, CreatedAt: existing.CreatedAt}
			return nil
		case errors.Is(err, ErrNotFound):
			u = User{ID: id, Name: name, CreatedAt: Timestamp(now())}
			created = true
			_, err := tx.ExecContext(ctx, tx.Rebind(`insert into users(id, name, created_at) values(?, ?, ?)`), u.ID, u.Name, u.CreatedAt)
			return err
		default:
			return err
		}
	})
	return u, created, err
}

// DeleteUser removes the user and every progress record they own.
func DeleteUser(ctx context.Context, db *sqlx.DB, id string) error {
	return WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := GetUser(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`delete from progress where user_id = ?`), id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`delete from users where id = ?`), id)
		return err
	})
}

func GetProgress(ctx context.Context, q sqlx.ExtContext, userID, tool, experiment string) (Progress, error) {
	var p Progress
	err := sqlx.GetContext(ctx, q, &p,
		q.Rebind(`select user_id, tool, experiment, data, updated_at from progress where user_id = ? and tool = ? and experiment = ?`),
		userID, tool, experiment)
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, ErrNotFound
	}
	return p, err
}

// SaveProgress overwrites the record at (userID, tool, experiment), creating
// the user with their id as display name when they are not yet known.
func SaveProgress(ctx context.Context, db *sqlx.DB, userID, tool, experiment string, data []byte) (Progress, error) {
	p := Progress{UserID: userID, Tool: tool, Experiment: experiment, Data: data, UpdatedAt: Timestamp(now())}
	err := WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`insert into users(id, name, created_at) values(?, ?, ?) on conflict(id) do nothing`),
			userID, userID, p.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			insert into progress(user_id, tool, experiment, data, updated_at)
			values(?, ?, ?, ?, ?)
			on conflict(user_id, tool, experiment)
			do update set data = excluded.data, updated_at = excluded.updated_at`),
			p.UserID, p.Tool, p.Experiment, string(p.Data), p.UpdatedAt)
		return err
	})
	return p, err
}

func DeleteProgress(ctx context.Context, db *sqlx.DB, userID, tool, experiment string) error {
	_, err := db.ExecContext(ctx, db.Rebind(`delete from progress where user_id = ? and tool = ? and experiment = ?`), userID, tool, experiment)
	return err
}

// ListProgress returns every record a user owns, newest first.
func ListProgress(ctx context.Context, q sqlx.ExtContext, userID string) ([]Progress, error) {
	out := make([]Progress, 0)
	err := sqlx.SelectContext(ctx, q, &out,
		q.Rebind(`select user_id, tool, experiment, data, updated_at from progress where user_id = ? order by updated_at desc`),
		userID)
	return out, err
}

func InsertArchive(ctx context.Context, db *sqlx.DB, a Archive) error {
	_, err := db.ExecContext(ctx,
		db.Rebind(`insert into progress_archives(id, user_id, object_ref, records, created_at) values(?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.ObjectRef, a.Records, a.CreatedAt)
	return err
}

func GetArchive(ctx context.Context, q sqlx.ExtContext, id string) (Archive, error) {
	var a Archive
	err := sqlx.GetContext(ctx, q, &a,
		q.Rebind(`select id, user_id, object_ref, records, created_at from progress_archives where id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Archive{}, ErrNotFound
	}
	return a, err
}

func ListArchives(ctx context.Context, q sqlx.ExtContext, userID string) ([]Archive, error) {
	out := make([]Archive, 0)
	err := sqlx.SelectContext(ctx, q, &out,
		q.Rebind(`select id, user_id, object_ref, records, created_at from progress_archives where user_id = ? order by created_at desc`),
		userID)
	return out, err
}
