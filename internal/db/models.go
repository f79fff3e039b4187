package db

type User struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
}

// Progress is one judgment record addressed by (user, tool, experiment).
// Data holds the JSON payload exactly as the client sent it.
type Progress struct {
	UserID     string `db:"user_id"`
	Tool       string `db:"tool"`
	Experiment string `db:"experiment"`
	Data       []byte `db:"data"`
	UpdatedAt  string `db:"updated_at"`
}

type Archive struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	ObjectRef string `db:"object_ref"`
	Records   int64  `db:"records"`
	CreatedAt string `db:"created_at"`
}
