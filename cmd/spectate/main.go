// Command spectate follows one game through the shared snapshot channel and
// prints each call as it happens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/config"
	"github.com/HammerMeetNail/livebingo/internal/database"
	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logging.Error("Spectate failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("spectate", flag.ContinueOnError)
	gameID := fs.String("game", "", "game id to follow")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*gameID) == "" {
		return fmt.Errorf("-game is required")
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	redisDB, err := database.NewRedisDB(connectCtx, cfg.Redis)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()

	snapshots := services.NewRedisSnapshotSync(services.NewRedisAdapter(redisDB.Client), cfg.Redis.SnapshotTTL)
	return follow(ctx, snapshots, *gameID, out)
}

// follow prints the stored state, then every change until the game completes
// or ctx is done.
func follow(ctx context.Context, snapshots services.SnapshotSync, gameID string, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		last *models.GameSnapshot
	)
	show := func(s models.GameSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if last != nil && s.LastUpdate < last.LastUpdate {
			return
		}
		for _, line := range describe(last, s) {
			fmt.Fprintln(out, line)
		}
		last = &s
		if s.Status == models.StatusCompleted {
			cancel()
		}
	}

	unsubscribe, err := snapshots.Subscribe(ctx, gameID, show)
	if err != nil {
		return fmt.Errorf("subscribing to game %s: %w", gameID, err)
	}
	defer unsubscribe()

	current, err := snapshots.Load(ctx, gameID)
	switch {
	case err == nil:
		show(current)
	case errors.Is(err, services.ErrSnapshotNotFound):
		mu.Lock()
		if last == nil {
			fmt.Fprintf(out, "waiting for game %s...\n", gameID)
		}
		mu.Unlock()
	default:
		return fmt.Errorf("loading game %s: %w", gameID, err)
	}

	<-ctx.Done()
	return nil
}

// describe lists what changed between two snapshots of the same game.
func describe(prev *models.GameSnapshot, next models.GameSnapshot) []string {
	var lines []string
	if prev == nil {
		lines = append(lines, fmt.Sprintf("game %s: %s, %d players, %d called",
			next.GameID, next.Status, len(next.Players), len(next.DrawnNumbers)))
		if next.CurrentNumber != nil {
			lines = append(lines, "last call "+models.CallName(*next.CurrentNumber))
		}
		return lines
	}

	if prev.Status != next.Status {
		lines = append(lines, fmt.Sprintf("game is now %s", next.Status))
	}
	if len(next.DrawnNumbers) > len(prev.DrawnNumbers) {
		for _, n := range next.DrawnNumbers[len(prev.DrawnNumbers):] {
			lines = append(lines, fmt.Sprintf("call %d: %s", slices.Index(next.DrawnNumbers, n)+1, models.CallName(n)))
		}
	}
	for id, p := range next.Players {
		if _, ok := prev.Players[id]; !ok {
			lines = append(lines, fmt.Sprintf("%s joined", p.Name))
		}
	}
	for id, p := range prev.Players {
		if _, ok := next.Players[id]; !ok {
			lines = append(lines, fmt.Sprintf("%s left", p.Name))
		}
	}
	for _, id := range next.Winners {
		if !slices.Contains(prev.Winners, id) {
			name := id
			if p, ok := next.Players[id]; ok {
				name = p.Name
			}
			lines = append(lines, fmt.Sprintf("BINGO! %s wins", name))
		}
	}
	return lines
}
