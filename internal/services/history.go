package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

var (
	ErrHistoryDisabled    = errors.New("game history is disabled")
	ErrInvalidGameID      = errors.New("invalid game id")
	ErrWinAlreadyRecorded = errors.New("win already recorded")
)

// winnerIndex allows one win row per player and game.
const winnerIndex = "idx_game_events_winner"

// HistoryRecorder keeps an append-only audit trail of each game.
type HistoryRecorder interface {
	GameCreated(ctx context.Context, gameID, hostID string) error
	RecordEvent(ctx context.Context, gameID string, kind models.GameEventKind, playerID string, number int) error
	RecordWin(ctx context.Context, gameID, playerID string) (int, error)
	SetStatus(ctx context.Context, gameID string, status models.GameStatus) error
	ListEvents(ctx context.Context, gameID string) ([]models.GameEvent, error)
}

type PostgresHistory struct {
	db    DB
	newID func() uuid.UUID
	now   func() time.Time
}

func NewPostgresHistory(db DB) *PostgresHistory {
	return &PostgresHistory{db: db, newID: uuid.New, now: time.Now}
}

func parseGameID(gameID string) (uuid.UUID, error) {
	id, err := uuid.Parse(gameID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidGameID, gameID)
	}
	return id, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func (h *PostgresHistory) GameCreated(ctx context.Context, gameID, hostID string) error {
	id, err := parseGameID(gameID)
	if err != nil {
		return err
	}
	now := h.now()
	_, err = h.db.Exec(ctx,
		`INSERT INTO games (id, host_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO NOTHING`,
		id, hostID, models.StatusWaiting, now,
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return h.insertEvent(ctx, h.db, id, models.EventGameCreated, nullableString(hostID), nil, nil, now)
}

func (h *PostgresHistory) RecordEvent(ctx context.Context, gameID string, kind models.GameEventKind, playerID string, number int) error {
	id, err := parseGameID(gameID)
	if err != nil {
		return err
	}
	return h.insertEvent(ctx, h.db, id, kind, nullableString(playerID), nullableInt(number), nil, h.now())
}

// RecordWin appends a win event and returns its 1-based rank among the
// game's winners. A second win for the same player returns
// ErrWinAlreadyRecorded and leaves the ranks alone.
func (h *PostgresHistory) RecordWin(ctx context.Context, gameID, playerID string) (int, error) {
	id, err := parseGameID(gameID)
	if err != nil {
		return 0, err
	}

	var rank int
	err = withTx(ctx, h.db, func(tx Tx) error {
		winners, err := lockGameForUpdate(ctx, tx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}

		rank = winners + 1
		now := h.now()
		if _, err := tx.Exec(ctx,
			`UPDATE games SET winner_count = $2, updated_at = $3 WHERE id = $1`,
			id, rank, now,
		); err != nil {
			return fmt.Errorf("update winner count: %w", err)
		}
		return h.insertEvent(ctx, tx, id, models.EventWinAccepted, &playerID, nil, &rank, now)
	})
	if isUniqueViolation(err, winnerIndex) {
		return 0, ErrWinAlreadyRecorded
	}
	if err != nil {
		return 0, err
	}
	return rank, nil
}

func (h *PostgresHistory) SetStatus(ctx context.Context, gameID string, status models.GameStatus) error {
	id, err := parseGameID(gameID)
	if err != nil {
		return err
	}

	var kind models.GameEventKind
	switch status {
	case models.StatusActive:
		kind = models.EventGameStarted
	case models.StatusCompleted:
		kind = models.EventGameCompleted
	default:
		return fmt.Errorf("unexpected status %q", status)
	}

	now := h.now()
	tag, err := h.db.Exec(ctx,
		`UPDATE games
		 SET status = $2, updated_at = $3,
		     completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END
		 WHERE id = $1`,
		id, status, now,
	)
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return h.insertEvent(ctx, h.db, id, kind, nil, nil, nil, now)
}

func (h *PostgresHistory) ListEvents(ctx context.Context, gameID string) ([]models.GameEvent, error) {
	id, err := parseGameID(gameID)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Query(ctx,
		`SELECT id, game_id, kind, player_id, number, rank, detail, created_at
		 FROM game_events
		 WHERE game_id = $1
		 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.GameEvent{}
	for rows.Next() {
		var ev models.GameEvent
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.Kind, &ev.PlayerID, &ev.Number, &ev.Rank, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (h *PostgresHistory) insertEvent(ctx context.Context, q DBConn, gameID uuid.UUID, kind models.GameEventKind, playerID *string, number, rank *int, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO game_events (id, game_id, kind, player_id, number, rank, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.newID(), gameID, kind, playerID, number, rank, at,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", kind, err)
	}
	return nil
}
