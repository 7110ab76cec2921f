package services

import (
	"context"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// GameServiceInterface is what the HTTP and websocket handlers need.
type GameServiceInterface interface {
	CreateGame(ctx context.Context, hostID, hostName string) (*CreatedGame, error)
	GetState(ctx context.Context, gameID string) (models.GameSnapshot, error)
	JoinGame(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error)
	RemovePlayer(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error)
	DisconnectPlayer(ctx context.Context, gameID, playerID string) error
	StartGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error)
	DrawNumber(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error)
	EndGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error)
	MarkNumber(ctx context.Context, gameID, playerID string, n int) (bool, models.GameSnapshot, error)
	CheckWin(ctx context.Context, gameID, playerID string) (bool, error)
	ClaimWin(ctx context.Context, gameID, playerID string) (bool, models.GameSnapshot, error)
	CardImage(ctx context.Context, gameID, playerID string) ([]byte, error)
	History(ctx context.Context, gameID string) ([]models.GameEvent, error)
	Subscribe(ctx context.Context, gameID string, fn func(models.GameSnapshot)) (func(), error)
}

var _ GameServiceInterface = (*GameService)(nil)
