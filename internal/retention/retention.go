package retention

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sketchdeck/sketchdeck/internal/db"
)

type Config struct {
	Interval  time.Duration
	KeepCount int
}

func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		KeepCount: 1000,
	}
}

// Service keeps each room's append-only event log bounded by pruning it
// down to the most recent KeepCount events. Room load only ever replays
// that many, so older rows are dead weight.
type Service struct {
	database *db.Database
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(database *db.Database, config Config) *Service {
	return &Service{
		database: database,
		config:   config,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	slog.Info("retention service started", "interval", s.config.Interval, "keep", s.config.KeepCount)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	slog.Info("retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.pruneAllRooms()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pruneAllRooms()
		}
	}
}

func (s *Service) pruneAllRooms() {
	roomIDs, err := s.database.RoomIDsWithEvents()
	if err != nil {
		slog.Error("retention: failed to list rooms", "error", err)
		return
	}

	pruned := 0
	for _, roomID := range roomIDs {
		count, err := s.database.EventCount(roomID)
		if err != nil || count <= s.config.KeepCount {
			continue
		}
		if err := s.database.PruneEvents(roomID, s.config.KeepCount); err != nil {
			slog.Error("retention: prune failed", "room", roomID, "error", err)
			continue
		}
		pruned++
		slog.Debug("retention: pruned room", "room", roomID, "dropped", count-s.config.KeepCount)
	}

	if pruned > 0 {
		slog.Info("retention pass complete", "rooms_pruned", pruned)
	}
}

// PruneNow runs one immediate pruning pass for a single room.
func (s *Service) PruneNow(roomID string) error {
	return s.database.PruneEvents(roomID, s.config.KeepCount)
}
