package calllog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is a Logger backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and runs pending migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// LogCall implements Logger.
func (p *Postgres) LogCall(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	flags, err := json.Marshal(rec.SessionFlags)
	if err != nil {
		return fmt.Errorf("encoding session flags: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO call_logs (id, call_id, phone_number, direction, duration_ms, audio_files_used, tts_responses, session_flags, final_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.CallID, rec.PhoneNumber, rec.Direction, rec.Duration.Milliseconds(),
		rec.AudioFilesUsed, rec.TTSResponses, flags, rec.FinalStatus, rec.At)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}
	return nil
}

// LogConversation implements Logger.
func (p *Postgres) LogConversation(ctx context.Context, rec ConversationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO conversation_logs (id, call_id, speaker, message_type, content, audio_file, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.CallID, rec.Speaker, rec.MessageType, rec.Content, rec.AudioFile,
		rec.ResponseTime.Milliseconds(), rec.At)
	if err != nil {
		return fmt.Errorf("inserting conversation log: %w", err)
	}
	return nil
}

// LogUsage implements Logger.
func (p *Postgres) LogUsage(ctx context.Context, rec UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if rec.BilledMinutes == 0 {
		rec.BilledMinutes = BilledMinutes(rec.Duration)
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO usage_logs (id, client_id, call_id, to_number, from_number, direction, duration_ms, billed_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ClientID, rec.CallID, rec.ToNumber, rec.FromNumber, rec.Direction,
		rec.Duration.Milliseconds(), rec.BilledMinutes, rec.At)
	if err != nil {
		return fmt.Errorf("inserting usage log: %w", err)
	}
	return nil
}
