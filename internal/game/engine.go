package game

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

type player struct {
	id     string
	name   string
	isHost bool
	active bool
	card   models.Card
	marks  MarkSet
}

func (p *player) snapshot() models.PlayerSnapshot {
	return models.PlayerSnapshot{
		ID:            p.id,
		Name:          p.name,
		IsHost:        p.isHost,
		Active:        p.active,
		Card:          p.card,
		MarkedNumbers: p.marks.Sorted(),
	}
}

// Engine owns the state of one game. Every mutation runs under mu, so
// operations are linearized. Each mutation takes a delivery ticket under mu;
// its snapshot is delivered after mu is released, once every earlier ticket
// has been delivered. No engine lock is held while subscribers run.
type Engine struct {
	id    string
	opts  Options
	cards *CardGenerator
	eval  WinEvaluator
	subs  *Registry[models.GameSnapshot]

	mu         sync.Mutex
	issued     uint64
	status     models.GameStatus
	drawn      []int
	drawnSet   [models.MaxBall + 1]bool
	players    map[string]*player
	hostID     string
	winners    []string
	lastUpdate time.Time

	deliverMu sync.Mutex
	turn      *sync.Cond
	delivered uint64
}

func New(id string, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		id:         id,
		opts:       opts,
		cards:      NewCardGenerator(opts.Rand),
		eval:       NewWinEvaluator(opts.FreeCenter, opts.Patterns),
		subs:       NewRegistry(models.GameSnapshot.Clone),
		status:     models.StatusWaiting,
		players:    make(map[string]*player),
		lastUpdate: opts.Now(),
	}
	e.turn = sync.NewCond(&e.deliverMu)
	return e
}

func (e *Engine) ID() string {
	return e.id
}

// publishAndUnlock must be called with mu held. It stamps the mutation,
// releases mu and notifies subscribers in ticket order.
func (e *Engine) publishAndUnlock() {
	e.lastUpdate = e.opts.Now()
	snap := e.snapshotLocked()
	ticket := e.takeTicketLocked()
	e.mu.Unlock()
	e.deliverInTurn(ticket, func() { e.subs.Notify(snap) })
}

func (e *Engine) takeTicketLocked() uint64 {
	e.issued++
	return e.issued
}

// deliverInTurn waits until every earlier ticket is delivered, then runs
// deliver without holding any engine lock.
func (e *Engine) deliverInTurn(ticket uint64, deliver func()) {
	e.deliverMu.Lock()
	for e.delivered != ticket-1 {
		e.turn.Wait()
	}
	e.deliverMu.Unlock()

	defer func() {
		e.deliverMu.Lock()
		e.delivered = ticket
		e.turn.Broadcast()
		e.deliverMu.Unlock()
	}()
	deliver()
}

func (e *Engine) reject(action string, status models.GameStatus) error {
	if !e.opts.Strict {
		return nil
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidStateTransition, action, status)
}

func (e *Engine) lookupLocked(id string) (*player, error) {
	p, ok := e.players[id]
	if !ok {
		return nil, errUnknownPlayer
	}
	return p, nil
}

// AddPlayer joins a player and deals a fresh card. Joining again with the
// same id reconnects the player and keeps the card and marks.
func (e *Engine) AddPlayer(id, name string, isHost bool) (models.PlayerSnapshot, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return models.PlayerSnapshot{}, ErrInvalidPlayerData
	}

	e.mu.Lock()
	if e.status == models.StatusCompleted {
		e.mu.Unlock()
		return models.PlayerSnapshot{}, fmt.Errorf("%w: cannot join a completed game", ErrInvalidStateTransition)
	}
	if isHost && e.hostID != "" && e.hostID != id {
		e.mu.Unlock()
		return models.PlayerSnapshot{}, ErrHostAlreadyAssigned
	}

	p, err := e.lookupLocked(id)
	if err == nil && p.active && p.name == name && (!isHost || p.isHost) {
		out := p.snapshot()
		e.mu.Unlock()
		return out, nil
	}
	if err != nil {
		card := e.cards.Generate()
		if verr := card.Validate(); verr != nil {
			e.mu.Unlock()
			panic(fmt.Sprintf("game: card generator produced an invalid card: %v", verr))
		}
		p = &player{id: id, card: card, marks: MarkSet{}}
		e.players[id] = p
	}
	p.name = name
	p.active = true
	if isHost {
		e.hostID = id
	}
	p.isHost = e.hostID == id

	out := p.snapshot()
	e.publishAndUnlock()
	return out, nil
}

// RemovePlayer deletes a player from the roster. Unknown ids are ignored.
func (e *Engine) RemovePlayer(id string) {
	e.mu.Lock()
	p, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return
	}
	delete(e.players, id)
	if e.status == models.StatusActive && e.removalEndsGameLocked(p) {
		e.status = models.StatusCompleted
	}
	e.publishAndUnlock()
}

func (e *Engine) removalEndsGameLocked(removed *player) bool {
	switch e.opts.Removal {
	case RemovalEndsOnHost:
		return removed.isHost
	case RemovalEndsWhenEmpty:
		for _, p := range e.players {
			if p.active {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// DisconnectPlayer flags a player inactive; the card and marks are kept.
func (e *Engine) DisconnectPlayer(id string) {
	e.mu.Lock()
	p, err := e.lookupLocked(id)
	if err != nil || !p.active {
		e.mu.Unlock()
		return
	}
	p.active = false
	e.publishAndUnlock()
}

func (e *Engine) StartGame() error {
	e.mu.Lock()
	if e.status != models.StatusWaiting {
		status := e.status
		e.mu.Unlock()
		return e.reject("start", status)
	}
	e.status = models.StatusActive
	e.publishAndUnlock()
	return nil
}

// DrawNumber reveals one undrawn number, each with equal probability. It
// returns 0 when nothing was drawn; once all 75 are out, the next call
// completes the game.
func (e *Engine) DrawNumber() (int, error) {
	e.mu.Lock()
	if e.status != models.StatusActive {
		status := e.status
		e.mu.Unlock()
		return 0, e.reject("draw", status)
	}

	undrawn := make([]int, 0, models.MaxBall-len(e.drawn))
	for n := models.MinBall; n <= models.MaxBall; n++ {
		if !e.drawnSet[n] {
			undrawn = append(undrawn, n)
		}
	}
	if len(undrawn) == 0 {
		e.status = models.StatusCompleted
		e.publishAndUnlock()
		return 0, nil
	}

	n := undrawn[e.opts.Rand.IntN(len(undrawn))]
	e.drawn = append(e.drawn, n)
	e.drawnSet[n] = true
	e.publishAndUnlock()
	return n, nil
}

// MarkNumber records a mark and reports whether the marks changed. Repeated
// marks are no-ops and do not notify subscribers.
func (e *Engine) MarkNumber(playerID string, n int) (bool, error) {
	e.mu.Lock()
	p, err := e.lookupLocked(playerID)
	if err != nil {
		e.mu.Unlock()
		return false, nil
	}
	if !models.IsValidBall(n) || (e.opts.RequireDrawnMarks && !e.drawnSet[n]) {
		e.mu.Unlock()
		if e.opts.Strict {
			return false, fmt.Errorf("%w: %d", ErrInvalidMark, n)
		}
		return false, nil
	}
	if p.marks.Has(n) {
		e.mu.Unlock()
		return false, nil
	}
	p.marks[n] = struct{}{}
	e.publishAndUnlock()
	return true, nil
}

func (e *Engine) CheckWin(playerID string) bool {
	_, ok := e.FindWin(playerID)
	return ok
}

// FindWin returns the first completed line on the player's card.
func (e *Engine) FindWin(playerID string) (Line, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.lookupLocked(playerID)
	if err != nil {
		return Line{}, false
	}
	return e.eval.FindWin(p.card, p.marks)
}

// ClaimWin accepts a bingo call when the player's marks complete a pattern.
// Accepted winners are listed in claim order; claiming twice is harmless.
func (e *Engine) ClaimWin(playerID string) (bool, error) {
	e.mu.Lock()
	if e.status != models.StatusActive {
		status := e.status
		e.mu.Unlock()
		return false, e.reject("claim a win", status)
	}
	p, err := e.lookupLocked(playerID)
	if err != nil || !e.eval.CheckWin(p.card, p.marks) {
		e.mu.Unlock()
		return false, nil
	}
	if slices.Contains(e.winners, playerID) {
		e.mu.Unlock()
		return true, nil
	}
	e.winners = append(e.winners, playerID)
	if e.opts.EndOnWin {
		e.status = models.StatusCompleted
	}
	e.publishAndUnlock()
	return true, nil
}

func (e *Engine) EndGame() error {
	e.mu.Lock()
	if e.status != models.StatusActive {
		status := e.status
		e.mu.Unlock()
		return e.reject("end", status)
	}
	e.status = models.StatusCompleted
	e.publishAndUnlock()
	return nil
}

// GetState returns a copy of the current state; mutating it has no effect
// on the engine.
func (e *Engine) GetState() models.GameSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Status() models.GameStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) HostID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hostID
}

// IsHost reports whether playerID is the game's host. It is a precondition
// check for callers gating start, draw and end.
func (e *Engine) IsHost(playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return playerID != "" && playerID == e.hostID
}

// Subscribe delivers the current state to fn before returning, then a fresh
// snapshot after every state change. fn may read the engine but must not
// mutate it.
func (e *Engine) Subscribe(fn func(models.GameSnapshot)) func() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	ticket := e.takeTicketLocked()
	e.mu.Unlock()

	var unsubscribe func()
	e.deliverInTurn(ticket, func() {
		unsubscribe = e.subs.Subscribe(fn)
		e.subs.Deliver(fn, snap)
	})
	return unsubscribe
}

func (e *Engine) SubscriberCount() int {
	return e.subs.Len()
}

func (e *Engine) snapshotLocked() models.GameSnapshot {
	snap := models.GameSnapshot{
		GameID:       e.id,
		Status:       e.status,
		DrawnNumbers: append([]int{}, e.drawn...),
		HostID:       e.hostID,
		Players:      make(map[string]models.PlayerSnapshot, len(e.players)),
		Winners:      append([]string{}, e.winners...),
		LastUpdate:   e.lastUpdate.UnixMilli(),
	}
	if len(e.drawn) > 0 {
		current := e.drawn[len(e.drawn)-1]
		snap.CurrentNumber = &current
	}
	for id, p := range e.players {
		snap.Players[id] = p.snapshot()
	}
	return snap
}
