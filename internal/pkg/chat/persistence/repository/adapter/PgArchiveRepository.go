package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// PgDB is the subset of *pgxpool.Pool used by the archive.
type PgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ArchiveSchema creates the transcript table.
const ArchiveSchema = `
CREATE SCHEMA IF NOT EXISTS chat_archive;
CREATE TABLE IF NOT EXISTS chat_archive.message (
	id              BIGINT PRIMARY KEY,
	conversation_id BIGINT NOT NULL,
	sender          TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	reply_to_id     BIGINT,
	created_at      TIMESTAMPTZ,
	archived_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS message_conversation_idx ON chat_archive.message (conversation_id, id);
`

const upsertArchivedMessage = `
	INSERT INTO chat_archive.message (id, conversation_id, sender, content, reply_to_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id)
	DO UPDATE SET content = EXCLUDED.content,
	              sender = EXCLUDED.sender,
	              reply_to_id = EXCLUDED.reply_to_id,
	              archived_at = now()
`

// PgArchiveRepository persists confirmed messages to Postgres.
type PgArchiveRepository struct {
	db PgDB
}

func NewPgArchiveRepository(db PgDB) *PgArchiveRepository {
	return &PgArchiveRepository{db: db}
}

var _ repository.ArchiveRepository = (*PgArchiveRepository)(nil)

// EnsureSchema creates the archive schema if missing.
func (r *PgArchiveRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("PgArchiveRepository: nil pool")
	}
	_, err := r.db.Exec(ctx, ArchiveSchema)
	return err
}

// SaveMessages upserts every confirmed message. Messages without a server id
// are skipped.
func (r *PgArchiveRepository) SaveMessages(ctx context.Context, conversationID int64, messages []chat.Message) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("PgArchiveRepository: nil pool")
	}
	var written int64
	for _, m := range messages {
		if m.ID == 0 || m.State != chat.DeliveryConfirmed {
			continue
		}
		convID := m.ConversationID
		if convID == 0 {
			convID = conversationID
		}
		var createdAt *time.Time
		if !m.CreatedAt.IsZero() {
			createdAt = &m.CreatedAt
		}
		ct, err := r.db.Exec(ctx, upsertArchivedMessage,
			m.ID, convID, m.SenderName, m.Content, m.ReplyToID, createdAt)
		if err != nil {
			return written, err
		}
		written += ct.RowsAffected()
	}
	return written, nil
}

func (r *PgArchiveRepository) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("PgArchiveRepository: nil pool")
	}
	var n int64
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM chat_archive.message WHERE conversation_id = $1",
		conversationID,
	).Scan(&n)
	return n, err
}
