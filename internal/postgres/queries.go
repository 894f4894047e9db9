package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_created_idx
		ON chat_messages (room_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS chat_users (
		id             TEXT PRIMARY KEY,
		username       TEXT NOT NULL,
		password_hash  TEXT NOT NULL,
		login_attempts INT NOT NULL DEFAULT 0,
		lock_until     TIMESTAMPTZ,
		last_login     TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chat_users_username_key
		ON chat_users (lower(username))`,
}

const (
	queryInsertMessage = `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	// (created_at, id) DESC, строго после курсора
	queryHistory = `
		SELECT id, room_id, sender_id, sender_name, content, created_at
		FROM chat_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	queryCreateUser = `
		INSERT INTO chat_users (id, username, password_hash, login_attempts, lock_until, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	userColumns = `id, username, password_hash, login_attempts, lock_until, last_login, created_at, updated_at`

	queryGetUserByID = `SELECT ` + userColumns + ` FROM chat_users WHERE id = $1`

	queryGetUserByUsername = `SELECT ` + userColumns + ` FROM chat_users WHERE lower(username) = lower($1)`

	queryUpdateLoginState = `
		UPDATE chat_users
		SET login_attempts = $2, lock_until = $3, last_login = $4, updated_at = $5
		WHERE id = $1`
)
