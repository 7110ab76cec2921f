package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HammerMeetNail/livebingo/internal/game"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
	"github.com/HammerMeetNail/livebingo/internal/testutil"
)

func activeSnapshot(gameID string) models.GameSnapshot {
	current := 12
	return models.GameSnapshot{
		GameID:        gameID,
		Status:        models.StatusActive,
		CurrentNumber: &current,
		DrawnNumbers:  []int{12},
		HostID:        "host",
		Players:       map[string]models.PlayerSnapshot{},
		Winners:       []string{},
	}
}

func withPath(req *http.Request, values map[string]string) *http.Request {
	for k, v := range values {
		req.SetPathValue(k, v)
	}
	return req
}

func TestGameHandler_Create(t *testing.T) {
	var gotHostID, gotName string
	svc := &mockGameService{
		CreateGameFunc: func(ctx context.Context, hostID, hostName string) (*services.CreatedGame, error) {
			gotHostID, gotName = hostID, hostName
			return &services.CreatedGame{GameID: "g1", HostToken: "secret", State: models.GameSnapshot{GameID: "g1", Status: models.StatusWaiting}}, nil
		},
	}
	handler := NewGameHandler(svc)

	body := bytes.NewBufferString(`{"host_id":"h1","host_name":"  Hannah "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/games", body)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if gotHostID != "h1" || gotName != "Hannah" {
		t.Fatalf("expected trimmed host data, got %q %q", gotHostID, gotName)
	}
	var resp services.CreatedGame
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.GameID != "g1" || resp.HostToken != "secret" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGameHandler_Create_GeneratesHostID(t *testing.T) {
	var gotHostID string
	svc := &mockGameService{
		CreateGameFunc: func(ctx context.Context, hostID, hostName string) (*services.CreatedGame, error) {
			gotHostID = hostID
			return &services.CreatedGame{GameID: "g1"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{"host_name":"Hannah"}`))
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Create(rr, req)

	if rr.Code != http.StatusCreated || gotHostID == "" {
		t.Fatalf("expected generated host id, got status %d id %q", rr.Code, gotHostID)
	}
}

func TestGameHandler_Create_InvalidBody(t *testing.T) {
	handler := NewGameHandler(&mockGameService{})

	for _, body := range []string{`not json`, `{"host_name":""}`, `{"host_name":"a","extra":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.Create(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected status 400, got %d", body, rr.Code)
		}
	}
}

func TestGameHandler_Get_NotFound(t *testing.T) {
	handler := NewGameHandler(&mockGameService{})
	req := withPath(httptest.NewRequest(http.MethodGet, "/api/games/missing", nil), map[string]string{"id": "missing"})
	rr := httptest.NewRecorder()
	handler.Get(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGameHandler_Join(t *testing.T) {
	svc := &mockGameService{
		JoinGameFunc: func(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error) {
			if gameID != "g1" || playerID != "p1" {
				t.Fatalf("unexpected join %s/%s", gameID, playerID)
			}
			if name == "" {
				return models.PlayerSnapshot{}, game.ErrInvalidPlayerData
			}
			return models.PlayerSnapshot{ID: playerID, Name: name, Active: true}, nil
		},
	}
	handler := NewGameHandler(svc)

	req := withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/players", strings.NewReader(`{"id":"p1","name":"Alice"}`)), map[string]string{"id": "g1"})
	rr := httptest.NewRecorder()
	handler.Join(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	req = withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/players", strings.NewReader(`{"id":"p1","name":" "}`)), map[string]string{"id": "g1"})
	rr = httptest.NewRecorder()
	handler.Join(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for blank name, got %d", rr.Code)
	}
}

func TestGameHandler_HostActionsPassCaller(t *testing.T) {
	var got models.Caller
	svc := &mockGameService{
		StartGameFunc: func(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error) {
			got = caller
			return activeSnapshot(gameID), nil
		},
	}
	req := withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/start", nil), map[string]string{"id": "g1"})
	req.Header.Set(HeaderPlayerID, "host")
	req.Header.Set(HeaderHostToken, "secret")
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Start(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got.PlayerID != "host" || got.HostToken != "secret" {
		t.Fatalf("expected caller from headers, got %+v", got)
	}
}

func TestGameHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotHost, http.StatusForbidden},
		{services.ErrGameNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: cannot draw while waiting", game.ErrInvalidStateTransition), http.StatusConflict},
		{game.ErrHostAlreadyAssigned, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		svc := &mockGameService{
			DrawNumberFunc: func(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error) {
				return 0, models.GameSnapshot{}, tt.err
			},
		}
		req := withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/draw", nil), map[string]string{"id": "g1"})
		rr := httptest.NewRecorder()
		NewGameHandler(svc).Draw(rr, req)
		if rr.Code != tt.want {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.want, rr.Code)
		}
	}
}

func TestGameHandler_Draw(t *testing.T) {
	svc := &mockGameService{
		DrawNumberFunc: func(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error) {
			return 12, activeSnapshot(gameID), nil
		},
	}
	req := withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/draw", nil), map[string]string{"id": "g1"})
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Draw(rr, req)

	var resp DrawResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Number != 12 || resp.State.GameID != "g1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGameHandler_Mark(t *testing.T) {
	svc := &mockGameService{
		MarkNumberFunc: func(ctx context.Context, gameID, playerID string, n int) (bool, models.GameSnapshot, error) {
			if playerID != "p1" || n != 12 {
				t.Fatalf("unexpected mark %s %d", playerID, n)
			}
			return true, activeSnapshot(gameID), nil
		},
	}
	handler := NewGameHandler(svc)
	path := map[string]string{"id": "g1", "playerId": "p1"}

	req := withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/players/p1/marks", strings.NewReader(`{"number":12}`)), path)
	rr := httptest.NewRecorder()
	handler.Mark(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp MarkResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Changed {
		t.Fatal("expected changed=true")
	}

	req = withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/players/p1/marks", strings.NewReader(`{"number":"twelve"}`)), path)
	rr = httptest.NewRecorder()
	handler.Mark(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGameHandler_CheckWinAndClaim(t *testing.T) {
	svc := &mockGameService{
		CheckWinFunc: func(ctx context.Context, gameID, playerID string) (bool, error) {
			return true, nil
		},
		ClaimWinFunc: func(ctx context.Context, gameID, playerID string) (bool, models.GameSnapshot, error) {
			s := activeSnapshot(gameID)
			s.Winners = []string{playerID}
			return true, s, nil
		},
	}
	handler := NewGameHandler(svc)
	path := map[string]string{"id": "g1", "playerId": "p1"}

	rr := httptest.NewRecorder()
	handler.CheckWin(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/games/g1/players/p1/win", nil), path))
	var win WinResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &win)
	if !win.Bingo {
		t.Fatal("expected bingo=true")
	}

	rr = httptest.NewRecorder()
	handler.Claim(rr, withPath(httptest.NewRequest(http.MethodPost, "/api/games/g1/players/p1/bingo", nil), path))
	var claim ClaimResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &claim)
	if !claim.Accepted || len(claim.State.Winners) != 1 {
		t.Fatalf("unexpected claim response %+v", claim)
	}
}

func TestGameHandler_CardImage(t *testing.T) {
	svc := &mockGameService{
		CardImageFunc: func(ctx context.Context, gameID, playerID string) ([]byte, error) {
			if playerID == "ghost" {
				return nil, services.ErrPlayerNotFound
			}
			return []byte("\x89PNG"), nil
		},
	}
	handler := NewGameHandler(svc)

	rr := httptest.NewRecorder()
	handler.CardImage(rr, withPath(httptest.NewRequest(http.MethodGet, "/card.png", nil), map[string]string{"id": "g1", "playerId": "p1"}))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png response, got %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}

	rr = httptest.NewRecorder()
	handler.CardImage(rr, withPath(httptest.NewRequest(http.MethodGet, "/card.png", nil), map[string]string{"id": "g1", "playerId": "ghost"}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGameHandler_History(t *testing.T) {
	rr := httptest.NewRecorder()
	NewGameHandler(&mockGameService{}).History(rr, withPath(httptest.NewRequest(http.MethodGet, "/history", nil), map[string]string{"id": "g1"}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 when disabled, got %d", rr.Code)
	}

	svc := &mockGameService{
		HistoryFunc: func(ctx context.Context, gameID string) ([]models.GameEvent, error) {
			return nil, nil
		},
	}
	rr = httptest.NewRecorder()
	NewGameHandler(svc).History(rr, withPath(httptest.NewRequest(http.MethodGet, "/history", nil), map[string]string{"id": "g1"}))
	if !strings.Contains(rr.Body.String(), `"events":[]`) {
		t.Fatalf("expected empty events array, got %s", rr.Body.String())
	}
}

func TestGameHandler_Remove(t *testing.T) {
	var gotCaller models.Caller
	svc := &mockGameService{
		RemovePlayerFunc: func(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error) {
			gotCaller = caller
			s := activeSnapshot(gameID)
			s.Status = models.StatusCompleted
			return s, nil
		},
	}
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set(HeaderPlayerID, "host")
	req.Header.Set(HeaderHostToken, "secret")
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Remove(rr, withPath(req, map[string]string{"id": "g1", "playerId": "host"}))

	var state models.GameSnapshot
	_ = json.Unmarshal(rr.Body.Bytes(), &state)
	if rr.Code != http.StatusOK || state.Status != models.StatusCompleted {
		t.Fatalf("unexpected response %d %+v", rr.Code, state)
	}
	if gotCaller.PlayerID != "host" || gotCaller.HostToken != "secret" {
		t.Fatalf("expected caller from headers, got %+v", gotCaller)
	}
}

func TestGameHandler_Remove_ForbiddenForOtherPlayers(t *testing.T) {
	svc := &mockGameService{
		RemovePlayerFunc: func(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error) {
			return models.GameSnapshot{}, services.ErrNotHost
		},
	}
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set(HeaderPlayerID, "mallory")
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Remove(rr, withPath(req, map[string]string{"id": "g1", "playerId": "host"}))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestGameHandler_Join_GeneratesPlayerID(t *testing.T) {
	svc := &mockGameService{
		JoinGameFunc: func(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error) {
			return models.PlayerSnapshot{ID: playerID, Name: name, Active: true}, nil
		},
	}
	req := testutil.NewTestRequestWithJSON(t, http.MethodPost, "/api/games/g1/players", map[string]string{"name": "Bob"})
	req.SetPathValue("id", "g1")
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Join(rr, req)

	testutil.AssertStatusCode(t, rr, http.StatusCreated)
	testutil.AssertJSONContains(t, rr.Body.Bytes(), "name", "Bob")
	if id := testutil.ParseJSONResponse(t, rr.Body.Bytes())["id"]; id == "" || id == nil {
		t.Fatal("expected generated player id")
	}
}

func TestGameHandler_Mark_PassesPlayerFromPath(t *testing.T) {
	playerID := testutil.RandomPlayerID()
	var got string
	svc := &mockGameService{
		MarkNumberFunc: func(ctx context.Context, gameID, pid string, n int) (bool, models.GameSnapshot, error) {
			got = pid
			return false, activeSnapshot(gameID), nil
		},
	}
	req := testutil.NewTestRequestWithJSON(t, http.MethodPost, "/marks", MarkRequest{Number: 5})
	req.SetPathValue("id", "g1")
	req.SetPathValue("playerId", playerID)
	rr := httptest.NewRecorder()
	NewGameHandler(svc).Mark(rr, req)

	testutil.AssertStatusCode(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr.Body.Bytes(), "changed", false)
	if got != playerID {
		t.Fatalf("expected %s, got %s", playerID, got)
	}
}
