package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// lockGameForUpdate row-locks the game inside q's transaction and returns the
// number of wins accepted so far. Concurrent win records for the same game
// serialize on this lock, so ranks are assigned without gaps or repeats.
func lockGameForUpdate(ctx context.Context, q DBConn, gameID uuid.UUID) (int, error) {
	var winners int
	err := q.QueryRow(ctx, `SELECT winner_count FROM games WHERE id = $1 FOR UPDATE`, gameID).Scan(&winners)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("lock game: %w", err)
	}
	return winners, nil
}
