package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN         string        `envconfig:"DSN" split_words:"true" required:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
	AutoMigrate bool          `envconfig:"AUTO_MIGRATE" split_words:"true" default:"true"`
}

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string             `bun:"id,pk"`
	Stage     string             `bun:"stage,notnull"`
	Version   int64              `bun:"version,notnull"`
	State     *ConversationState `bun:"state,type:jsonb,notnull"`
	CreatedAt time.Time          `bun:"created_at,notnull"`
	UpdatedAt time.Time          `bun:"updated_at,notnull"`
}

func newConversationRow(st *ConversationState, version int64) *conversationRow {
	snapshot := st.Clone()
	snapshot.Version = version
	return &conversationRow{
		ID:        st.ID,
		Stage:     string(st.Stage),
		Version:   version,
		State:     snapshot,
		CreatedAt: st.CreatedAt.UTC(),
		UpdatedAt: st.UpdatedAt.UTC(),
	}
}

// PostgresStore persists conversations as jsonb rows guarded by a version column.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	)
	db := bun.NewDB(sql.OpenDB(connector), pgdialect.New())

	store := NewPostgresStoreFromDB(db)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

func NewPostgresStoreFromDB(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*conversationRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	var row conversationRow
	err := s.db.NewSelect().
		Model(&row).
		Where("id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	if row.State == nil {
		return nil, fmt.Errorf("%w: empty state column for %s", ErrStateNotFound, sessionID)
	}

	st := row.State
	st.Version = row.Version
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation state loaded from store: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Create(ctx context.Context, st *ConversationState) error {
	if err := checkWritable(st); err != nil {
		return err
	}

	res, err := s.db.NewInsert().
		Model(newConversationRow(st, 1)).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionExists, st.ID)
	}

	st.Version = 1
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, st *ConversationState) error {
	if err := checkWritable(st); err != nil {
		return err
	}

	next := st.Version + 1
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var current conversationRow
		err := tx.NewSelect().
			Model(&current).
			Where("id = ?", st.ID).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrStateNotFound, st.ID)
		}
		if err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		if current.Version != st.Version {
			return fmt.Errorf("%w: %s stored=%d got=%d", ErrVersionConflict, st.ID, current.Version, st.Version)
		}
		if current.State != nil {
			if err := checkHistoryAppend(current.State.History, st.History); err != nil {
				return err
			}
		}

		if _, err := tx.NewUpdate().
			Model(newConversationRow(st, next)).
			Column("stage", "version", "state", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	st.Version = next
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	if _, err := s.db.NewDelete().
		Model((*conversationRow)(nil)).
		Where("id = ?", sessionID).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
