package handlers

import (
	"context"

	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

type mockGameService struct {
	CreateGameFunc       func(ctx context.Context, hostID, hostName string) (*services.CreatedGame, error)
	GetStateFunc         func(ctx context.Context, gameID string) (models.GameSnapshot, error)
	JoinGameFunc         func(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error)
	RemovePlayerFunc     func(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error)
	DisconnectPlayerFunc func(ctx context.Context, gameID, playerID string) error
	StartGameFunc        func(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error)
	DrawNumberFunc       func(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error)
	EndGameFunc          func(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error)
	MarkNumberFunc       func(ctx context.Context, gameID, playerID string, n int) (bool, models.GameSnapshot, error)
	CheckWinFunc         func(ctx context.Context, gameID, playerID string) (bool, error)
	ClaimWinFunc         func(ctx context.Context, gameID, playerID string) (bool, models.GameSnapshot, error)
	CardImageFunc        func(ctx context.Context, gameID, playerID string) ([]byte, error)
	HistoryFunc          func(ctx context.Context, gameID string) ([]models.GameEvent, error)
	SubscribeFunc        func(ctx context.Context, gameID string, fn func(models.GameSnapshot)) (func(), error)
}

var _ services.GameServiceInterface = (*mockGameService)(nil)

func (m *mockGameService) CreateGame(ctx context.Context, hostID, hostName string) (*services.CreatedGame, error) {
	if m.CreateGameFunc != nil {
		return m.CreateGameFunc(ctx, hostID, hostName)
	}
	return nil, services.ErrGameNotFound
}

func (m *mockGameService) GetState(ctx context.Context, gameID string) (models.GameSnapshot, error) {
	if m.GetStateFunc != nil {
		return m.GetStateFunc(ctx, gameID)
	}
	return models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) JoinGame(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error) {
	if m.JoinGameFunc != nil {
		return m.JoinGameFunc(ctx, gameID, playerID, name)
	}
	return models.PlayerSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) RemovePlayer(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error) {
	if m.RemovePlayerFunc != nil {
		return m.RemovePlayerFunc(ctx, gameID, playerID, caller)
	}
	return models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) DisconnectPlayer(ctx context.Context, gameID, playerID string) error {
	if m.DisconnectPlayerFunc != nil {
		return m.DisconnectPlayerFunc(ctx, gameID, playerID)
	}
	return nil
}

func (m *mockGameService) StartGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error) {
	if m.StartGameFunc != nil {
		return m.StartGameFunc(ctx, gameID, caller)
	}
	return models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) DrawNumber(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error) {
	if m.DrawNumberFunc != nil {
		return m.DrawNumberFunc(ctx, gameID, caller)
	}
	return 0, models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) EndGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error) {
	if m.EndGameFunc != nil {
		return m.EndGameFunc(ctx, gameID, caller)
	}
	return models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) MarkNumber(ctx context.Context, gameID, playerID string, n int) (bool, models.GameSnapshot, error) {
	if m.MarkNumberFunc != nil {
		return m.MarkNumberFunc(ctx, gameID, playerID, n)
	}
	return false, models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) CheckWin(ctx context.Context, gameID, playerID string) (bool, error) {
	if m.CheckWinFunc != nil {
		return m.CheckWinFunc(ctx, gameID, playerID)
	}
	return false, services.ErrGameNotFound
}

func (m *mockGameService) ClaimWin(ctx context.Context, gameID, playerID string) (bool, models.GameSnapshot, error) {
	if m.ClaimWinFunc != nil {
		return m.ClaimWinFunc(ctx, gameID, playerID)
	}
	return false, models.GameSnapshot{}, services.ErrGameNotFound
}

func (m *mockGameService) CardImage(ctx context.Context, gameID, playerID string) ([]byte, error) {
	if m.CardImageFunc != nil {
		return m.CardImageFunc(ctx, gameID, playerID)
	}
	return nil, services.ErrGameNotFound
}

func (m *mockGameService) History(ctx context.Context, gameID string) ([]models.GameEvent, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, gameID)
	}
	return nil, services.ErrHistoryDisabled
}

func (m *mockGameService) Subscribe(ctx context.Context, gameID string, fn func(models.GameSnapshot)) (func(), error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, gameID, fn)
	}
	return nil, services.ErrGameNotFound
}
