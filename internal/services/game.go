package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/livebingo/internal/game"
	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrNotHost        = errors.New("only the host can do that")
)

// CreatedGame is returned once, when a game is opened. HostToken is never
// shown again.
type CreatedGame struct {
	GameID    string              `json:"game_id"`
	HostToken string              `json:"host_token"`
	State     models.GameSnapshot `json:"state"`
}

type liveGame struct {
	engine      *game.Engine
	unsubscribe func()

	mu         sync.Mutex
	stopDrawer context.CancelFunc
	lastSeen   time.Time
}

func (g *liveGame) touch(now time.Time) {
	g.mu.Lock()
	g.lastSeen = now
	g.mu.Unlock()
}

func (g *liveGame) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSeen
}

func (g *liveGame) setDrawer(cancel context.CancelFunc) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopDrawer != nil {
		return false
	}
	g.stopDrawer = cancel
	return true
}

func (g *liveGame) stopDrawing() {
	g.mu.Lock()
	cancel := g.stopDrawer
	g.stopDrawer = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GameService hosts many independent games in one process. Each game is an
// engine with its own lock; the service only guards the game map.
type GameService struct {
	opts       game.Options
	tokens     *HostTokenStore
	auth       Authorizer
	snapshots  SnapshotSync
	replicator *Replicator
	history    HistoryRecorder
	autoDraw   time.Duration
	cardOpts   CardImageOptions
	newID      func() string
	now        func() time.Time
	logger     *logging.Logger

	// keepCompleted and keepIdle bound how long an untouched game stays
	// loaded; zero keeps it forever.
	keepCompleted time.Duration
	keepIdle      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	games map[string]*liveGame
}

func NewGameService(opts game.Options, tokens *HostTokenStore) *GameService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &GameService{
		opts:     opts,
		tokens:   tokens,
		cardOpts: CardImageOptions{FreeCenter: opts.FreeCenter},
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   logging.Default.WithField("component", "game_service"),
		ctx:      ctx,
		cancel:   cancel,
		games:    make(map[string]*liveGame),
	}
	s.auth = NewHostTokenAuthorizer(tokens, s)
	return s
}

func (s *GameService) SetAuthorizer(auth Authorizer) {
	s.auth = auth
}

// SetSnapshotSync enables restoring games that are not loaded in this process.
func (s *GameService) SetSnapshotSync(snapshots SnapshotSync) {
	s.snapshots = snapshots
}

// SetReplicator streams every snapshot of every game to the replicator.
func (s *GameService) SetReplicator(r *Replicator) {
	s.replicator = r
}

func (s *GameService) SetHistory(history HistoryRecorder) {
	s.history = history
}

// SetAutoDraw makes started games draw on their own every interval.
func (s *GameService) SetAutoDraw(interval time.Duration) {
	s.autoDraw = interval
}

// SetEviction unloads games nobody has touched for a while. Completed games
// go after keepCompleted and their snapshot and host token are deleted.
// Other games go after keepIdle; their shared snapshot stays, so the next
// request restores them.
func (s *GameService) SetEviction(keepCompleted, keepIdle time.Duration) {
	s.keepCompleted = keepCompleted
	s.keepIdle = keepIdle
	every := min(positiveOr(keepCompleted, keepIdle), positiveOr(keepIdle, keepCompleted)) / 2
	if every <= 0 {
		return
	}
	every = max(every, time.Second)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.EvictExpired(s.ctx)
			}
		}
	}()
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// EvictExpired unloads games past their retention and returns how many went.
func (s *GameService) EvictExpired(ctx context.Context) int {
	now := s.now()
	type evicted struct {
		id        string
		g         *liveGame
		completed bool
	}
	var out []evicted

	s.mu.Lock()
	for id, g := range s.games {
		idle := now.Sub(g.idleSince())
		completed := g.engine.Status() == models.StatusCompleted
		switch {
		case completed && s.keepCompleted > 0 && idle >= s.keepCompleted:
		case s.keepIdle > 0 && idle >= s.keepIdle:
		default:
			continue
		}
		delete(s.games, id)
		out = append(out, evicted{id: id, g: g, completed: completed})
	}
	s.mu.Unlock()

	for _, ev := range out {
		ev.g.stopDrawing()
		if ev.g.unsubscribe != nil {
			ev.g.unsubscribe()
		}
		if ev.completed {
			s.tokens.Forget(ctx, ev.id)
			if s.snapshots != nil {
				if err := s.snapshots.Delete(ctx, ev.id); err != nil {
					s.logger.Warn("Failed to delete game snapshot", map[string]interface{}{
						"game_id": ev.id,
						"error":   err.Error(),
					})
				}
			}
		} else {
			s.tokens.Release(ev.id)
		}
		s.logger.Info("Game unloaded", map[string]interface{}{"game_id": ev.id, "completed": ev.completed})
	}
	return len(out)
}

func (s *GameService) CreateGame(ctx context.Context, hostID, hostName string) (*CreatedGame, error) {
	id := s.newID()
	engine := game.New(id, s.opts)
	host, err := engine.AddPlayer(hostID, hostName, true)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, id)
	if err != nil {
		return nil, err
	}

	s.register(engine)
	s.logger.Info("Game created", map[string]interface{}{"game_id": id, "host_id": host.ID})

	if s.history != nil {
		s.recordHistory(id, "game created", s.history.GameCreated(ctx, id, host.ID))
		s.recordHistory(id, "player joined", s.history.RecordEvent(ctx, id, models.EventPlayerJoined, host.ID, 0))
	}

	return &CreatedGame{GameID: id, HostToken: token, State: engine.GetState()}, nil
}

// register adds engine to the map unless another goroutine got there first,
// and returns the game that ended up registered.
func (s *GameService) register(engine *game.Engine) *liveGame {
	s.mu.Lock()
	if existing, ok := s.games[engine.ID()]; ok {
		s.mu.Unlock()
		return existing
	}
	g := &liveGame{engine: engine, lastSeen: s.now()}
	if s.replicator != nil {
		g.unsubscribe = engine.Subscribe(s.replicator.Offer)
	}
	s.games[engine.ID()] = g
	s.mu.Unlock()

	if engine.Status() == models.StatusActive {
		s.startDrawer(g)
	}
	return g
}

func (s *GameService) lookup(ctx context.Context, gameID string) (*liveGame, error) {
	s.mu.RLock()
	g, ok := s.games[gameID]
	s.mu.RUnlock()
	if ok {
		g.touch(s.now())
		return g, nil
	}
	if s.snapshots == nil {
		return nil, ErrGameNotFound
	}

	snap, err := s.snapshots.Load(ctx, gameID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("restore game %s: %w", gameID, err)
	}
	engine, err := game.Restore(snap, s.opts)
	if err != nil {
		return nil, fmt.Errorf("restore game %s: %w", gameID, err)
	}
	g = s.register(engine)
	s.logger.Info("Game restored from snapshot", map[string]interface{}{"game_id": gameID})
	return g, nil
}

func (s *GameService) engine(ctx context.Context, gameID string) (*game.Engine, error) {
	g, err := s.lookup(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.engine, nil
}

// HostOf reports the host of a loaded game.
func (s *GameService) HostOf(gameID string) (string, bool) {
	s.mu.RLock()
	g, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	return g.engine.HostID(), true
}

func (s *GameService) authorize(ctx context.Context, gameID string, caller models.Caller) (*liveGame, error) {
	g, err := s.lookup(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !s.auth.IsHost(ctx, gameID, caller) {
		return nil, ErrNotHost
	}
	return g, nil
}

func (s *GameService) GetState(ctx context.Context, gameID string) (models.GameSnapshot, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return models.GameSnapshot{}, err
	}
	return e.GetState(), nil
}

func (s *GameService) JoinGame(ctx context.Context, gameID, playerID, name string) (models.PlayerSnapshot, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return models.PlayerSnapshot{}, err
	}
	p, err := e.AddPlayer(playerID, name, false)
	if err != nil {
		return models.PlayerSnapshot{}, err
	}
	if s.history != nil {
		s.recordHistory(gameID, "player joined", s.history.RecordEvent(ctx, gameID, models.EventPlayerJoined, p.ID, 0))
	}
	return p, nil
}

// RemovePlayer takes a player out of the game. The host may remove anyone;
// other callers may only remove themselves. Removing the host always needs
// the host token.
func (s *GameService) RemovePlayer(ctx context.Context, gameID, playerID string, caller models.Caller) (models.GameSnapshot, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return models.GameSnapshot{}, err
	}
	if !s.auth.IsHost(ctx, gameID, caller) && (caller.PlayerID == "" || caller.PlayerID != playerID || e.IsHost(playerID)) {
		return models.GameSnapshot{}, ErrNotHost
	}
	before := e.Status()
	_, present := e.GetState().Players[playerID]
	e.RemovePlayer(playerID)
	after := e.GetState()

	if present && s.history != nil {
		s.recordHistory(gameID, "player left", s.history.RecordEvent(ctx, gameID, models.EventPlayerLeft, playerID, 0))
	}
	s.afterStatusChange(ctx, gameID, before, after.Status)
	return after, nil
}

// DisconnectPlayer marks a player inactive, e.g. when their stream closes.
func (s *GameService) DisconnectPlayer(ctx context.Context, gameID, playerID string) error {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return err
	}
	e.DisconnectPlayer(playerID)
	return nil
}

func (s *GameService) StartGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error) {
	g, err := s.authorize(ctx, gameID, caller)
	if err != nil {
		return models.GameSnapshot{}, err
	}
	before := g.engine.Status()
	if err := g.engine.StartGame(); err != nil {
		return models.GameSnapshot{}, err
	}
	state := g.engine.GetState()
	s.afterStatusChange(ctx, gameID, before, state.Status)
	if state.Status == models.StatusActive {
		s.startDrawer(g)
	}
	return state, nil
}

func (s *GameService) DrawNumber(ctx context.Context, gameID string, caller models.Caller) (int, models.GameSnapshot, error) {
	g, err := s.authorize(ctx, gameID, caller)
	if err != nil {
		return 0, models.GameSnapshot{}, err
	}
	n, err := s.draw(ctx, g)
	if err != nil {
		return 0, models.GameSnapshot{}, err
	}
	return n, g.engine.GetState(), nil
}

func (s *GameService) draw(ctx context.Context, g *liveGame) (int, error) {
	gameID := g.engine.ID()
	before := g.engine.Status()
	n, err := g.engine.DrawNumber()
	if err != nil {
		return 0, err
	}
	if n != 0 && s.history != nil {
		s.recordHistory(gameID, "number drawn", s.history.RecordEvent(ctx, gameID, models.EventNumberDrawn, "", n))
	}
	s.afterStatusChange(ctx, gameID, before, g.engine.Status())
	return n, nil
}

func (s *GameService) EndGame(ctx context.Context, gameID string, caller models.Caller) (models.GameSnapshot, error) {
	g, err := s.authorize(ctx, gameID, caller)
	if err != nil {
		return models.GameSnapshot{}, err
	}
	before := g.engine.Status()
	if err := g.engine.EndGame(); err != nil {
		return models.GameSnapshot{}, err
	}
	state := g.engine.GetState()
	s.afterStatusChange(ctx, gameID, before, state.Status)
	return state, nil
}

func (s *GameService) MarkNumber(ctx context.Context, gameID, playerID string, n int) (bool, models.GameSnapshot, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return false, models.GameSnapshot{}, err
	}
	changed, err := e.MarkNumber(playerID, n)
	if err != nil {
		return false, models.GameSnapshot{}, err
	}
	return changed, e.GetState(), nil
}

func (s *GameService) CheckWin(ctx context.Context, gameID, playerID string) (bool, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return false, err
	}
	return e.CheckWin(playerID), nil
}

// ClaimWin accepts a bingo call when the player's card holds a winning line.
func (s *GameService) ClaimWin(ctx context.Context, gameID, playerID string) (bool, models.GameSnapshot, error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return false, models.GameSnapshot{}, err
	}
	before := e.GetState()
	accepted, err := e.ClaimWin(playerID)
	if err != nil {
		return false, models.GameSnapshot{}, err
	}
	after := e.GetState()

	if accepted && !slices.Contains(before.Winners, playerID) {
		fields := map[string]interface{}{"game_id": gameID, "player_id": playerID}
		if line, ok := e.FindWin(playerID); ok {
			fields["line"] = line.String()
		}
		if s.history != nil {
			rank, err := s.history.RecordWin(ctx, gameID, playerID)
			switch {
			case err == nil:
				fields["rank"] = rank
			case errors.Is(err, ErrWinAlreadyRecorded):
				// another replica accepted the same claim first
			default:
				s.recordHistory(gameID, "win accepted", err)
			}
		}
		s.logger.Info("Bingo accepted", fields)
	}
	s.afterStatusChange(ctx, gameID, before.Status, after.Status)
	return accepted, after, nil
}

func (s *GameService) CardImage(ctx context.Context, gameID, playerID string) ([]byte, error) {
	state, err := s.GetState(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p, ok := state.Players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return RenderCardPNG(p, state.DrawnNumbers, s.cardOpts)
}

func (s *GameService) History(ctx context.Context, gameID string) ([]models.GameEvent, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if _, err := s.engine(ctx, gameID); err != nil {
		return nil, err
	}
	return s.history.ListEvents(ctx, gameID)
}

// Subscribe streams the game's snapshots to fn, starting with the current one.
func (s *GameService) Subscribe(ctx context.Context, gameID string, fn func(models.GameSnapshot)) (func(), error) {
	e, err := s.engine(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return e.Subscribe(fn), nil
}

func (s *GameService) afterStatusChange(ctx context.Context, gameID string, before, after models.GameStatus) {
	if before == after {
		return
	}
	s.logger.Info("Game status changed", map[string]interface{}{
		"game_id": gameID,
		"from":    string(before),
		"to":      string(after),
	})
	if after == models.StatusCompleted {
		s.mu.RLock()
		g, ok := s.games[gameID]
		s.mu.RUnlock()
		if ok {
			g.stopDrawing()
		}
	}
	if s.history != nil {
		s.recordHistory(gameID, "status change", s.history.SetStatus(ctx, gameID, after))
	}
}

// recordHistory logs history failures; the game itself never fails because
// the audit trail could not be written.
func (s *GameService) recordHistory(gameID, what string, err error) {
	if err == nil {
		return
	}
	s.logger.Error("Failed to record game history", map[string]interface{}{
		"game_id": gameID,
		"event":   what,
		"error":   err.Error(),
	})
}

func (s *GameService) startDrawer(g *liveGame) {
	if s.autoDraw <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	if !g.setDrawer(cancel) {
		cancel()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer g.stopDrawing()

		ticker := time.NewTicker(s.autoDraw)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if g.engine.Status() != models.StatusActive {
					return
				}
				if _, err := s.draw(ctx, g); err != nil {
					s.logger.Warn("Auto draw failed", map[string]interface{}{
						"game_id": g.engine.ID(),
						"error":   err.Error(),
					})
					return
				}
			}
		}
	}()
}

// Close stops auto draws and detaches every game from replication.
func (s *GameService) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.unsubscribe != nil {
			g.unsubscribe()
		}
	}
}

func (s *GameService) GameCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
