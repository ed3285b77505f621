package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chxlky/trello-matrix-bot/internal/events"
	"github.com/chxlky/trello-matrix-bot/internal/models"
	"go.uber.org/zap"
)

// Namespace is the key of this integration's section in the room's bot
// options record. Other keys in the record belong to other integrations.
const Namespace = "trello"

var ErrRecordNotFound = errors.New("options: config record not found")

// RecordStore reads and writes the per-room bot options record stored under
// key. ReadRecord returns ErrRecordNotFound when the room has no record.
type RecordStore interface {
	ReadRecord(ctx context.Context, roomID, key string) (json.RawMessage, error)
	WriteRecord(ctx context.Context, roomID, key string, record json.RawMessage) error
}

type WatchLister interface {
	WatchedBoards(ctx context.Context, roomID string) ([]models.BoardWatch, error)
}

// ChangeNotifier is told about every record this store writes, so other
// processes sharing the record can refresh their caches.
type ChangeNotifier interface {
	ConfigChanged(ctx context.Context, roomID string) error
}

type Store struct {
	records  RecordStore
	watches  WatchLister
	key      string
	notifier ChangeNotifier

	mu    sync.RWMutex
	cache map[string]*RoomOptions
}

// NewStore returns a Store reading records stored under key, normally "_"
// followed by the bot's own user ID so several bots can share a room.
func NewStore(records RecordStore, watches WatchLister, key string) *Store {
	return &Store{
		records: records,
		watches: watches,
		key:     key,
		cache:   make(map[string]*RoomOptions),
	}
}

func (s *Store) SetNotifier(notifier ChangeNotifier) {
	s.notifier = notifier
}

// Get returns the cached options for roomID, computing them on first use.
func (s *Store) Get(ctx context.Context, roomID string) (*RoomOptions, error) {
	s.mu.RLock()
	opts, ok := s.cache[roomID]
	s.mu.RUnlock()
	if ok {
		return opts, nil
	}
	return s.Recompute(ctx, roomID)
}

// Recompute reads the room's record and replaces the cache entry. A room with
// no default board that watches exactly one board defaults to that board.
func (s *Store) Recompute(ctx context.Context, roomID string) (*RoomOptions, error) {
	_, cfg, err := s.read(ctx, roomID)
	if err != nil {
		return nil, err
	}

	opts := cfg.toOptions()
	if opts.DefaultBoardID == "" {
		watched, err := s.watches.WatchedBoards(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if len(watched) == 1 {
			opts.DefaultBoardID = watched[0].BoardID
		}
	}

	s.mu.Lock()
	s.cache[roomID] = opts
	s.mu.Unlock()

	zap.L().Debug("Computed room options",
		zap.String("roomID", roomID),
		zap.String("defaultBoardID", opts.DefaultBoardID),
		zap.String("defaultListID", opts.DefaultListID),
		zap.Int("boardAliases", len(opts.BoardAliases)),
		zap.Int("listAliases", len(opts.ListAliases)))

	return opts, nil
}

// OnConfigRecordChanged refreshes the room's options after its record was
// written by anyone, including other bot instances.
func (s *Store) OnConfigRecordChanged(ctx context.Context, roomID string) error {
	_, err := s.Recompute(ctx, roomID)
	return err
}

// SetDefaultBoard sets the room's default board and clears its default list.
// An empty boardID clears both.
func (s *Store) SetDefaultBoard(ctx context.Context, roomID, boardID string) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		cfg.DefaultBoardID = boardID
		cfg.DefaultListID = ""
		cfg.DefaultListBoardID = ""
	})
}

// SetDefaultList sets the room's default list. The list's board becomes the
// default board so the pair stays consistent. An empty listID clears only the
// default list.
func (s *Store) SetDefaultList(ctx context.Context, roomID, boardID, listID string) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		if listID == "" {
			cfg.DefaultListID = ""
			cfg.DefaultListBoardID = ""
			return
		}
		cfg.DefaultBoardID = boardID
		cfg.DefaultListID = listID
		cfg.DefaultListBoardID = boardID
	})
}

// SetBoardAlias gives boardID the alias, taking it away from any other board.
// An empty alias removes the board's alias.
func (s *Store) SetBoardAlias(ctx context.Context, roomID, boardID, alias string) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		setAlias(cfg.BoardAliases, boardID, alias)
	})
}

// SetListAlias behaves like SetBoardAlias for lists.
func (s *Store) SetListAlias(ctx context.Context, roomID, listID, alias string) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		setAlias(cfg.ListAliases, listID, alias)
	})
}

func (s *Store) AddWatchedEvents(ctx context.Context, roomID, boardID string, defs []events.Def) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		names := watchedNames(cfg.WatchedEvents, boardID)
		cfg.WatchedEvents[boardID] = dedupe(append(names, events.Names(defs)...))
	})
}

func (s *Store) RemoveWatchedEvents(ctx context.Context, roomID, boardID string, defs []events.Def) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		remove := events.Names(defs)
		names := slices.DeleteFunc(watchedNames(cfg.WatchedEvents, boardID), func(name string) bool {
			return slices.Contains(remove, name)
		})
		cfg.WatchedEvents[boardID] = names
	})
}

func (s *Store) SetWatchedEvents(ctx context.Context, roomID, boardID string, defs []events.Def) (*RoomOptions, error) {
	return s.mutate(ctx, roomID, func(cfg *trelloConfig) {
		cfg.WatchedEvents[boardID] = dedupe(events.Names(defs))
	})
}

// IsEventWatched reports whether roomID watches boardID and wants def
// notifications for it. Boards the room never configured use the default
// catalog.
func (s *Store) IsEventWatched(ctx context.Context, roomID, boardID string, def events.Def) (bool, error) {
	watched, err := s.watches.WatchedBoards(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !slices.ContainsFunc(watched, func(w models.BoardWatch) bool { return w.BoardID == boardID }) {
		return false, nil
	}

	opts, err := s.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	return slices.Contains(watchedNames(opts.WatchedEvents, boardID), def.Name), nil
}

// mutate applies change to a copy of the durable configuration, writes the
// whole record back with other namespaces untouched, and recomputes.
func (s *Store) mutate(ctx context.Context, roomID string, change func(*trelloConfig)) (*RoomOptions, error) {
	record, cfg, err := s.read(ctx, roomID)
	if err != nil {
		return nil, err
	}

	next := cfg.clone()
	change(&next)
	next.normalize()

	section, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s options: %w", Namespace, err)
	}
	record[Namespace] = section

	blob, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bot options record: %w", err)
	}
	if err := s.records.WriteRecord(ctx, roomID, s.key, blob); err != nil {
		return nil, fmt.Errorf("failed to write bot options for %s: %w", roomID, err)
	}

	if s.notifier != nil {
		if err := s.notifier.ConfigChanged(ctx, roomID); err != nil {
			zap.L().Warn("Failed to broadcast options change", zap.String("roomID", roomID), zap.Error(err))
		}
	}

	return s.Recompute(ctx, roomID)
}

// read returns the whole record split by namespace together with this
// integration's section. A missing record or section reads as empty.
func (s *Store) read(ctx context.Context, roomID string) (map[string]json.RawMessage, trelloConfig, error) {
	var cfg trelloConfig
	record := map[string]json.RawMessage{}

	raw, err := s.records.ReadRecord(ctx, roomID, s.key)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		zap.L().Debug("Bot options not found", zap.String("roomID", roomID))
	case err != nil:
		return nil, cfg, fmt.Errorf("failed to read bot options for %s: %w", roomID, err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, cfg, fmt.Errorf("failed to decode bot options for %s: %w", roomID, err)
		}
		if record == nil {
			record = map[string]json.RawMessage{}
		}
	}

	if section, ok := record[Namespace]; ok {
		if err := json.Unmarshal(section, &cfg); err != nil {
			return nil, cfg, fmt.Errorf("failed to decode %s options for %s: %w", Namespace, roomID, err)
		}
	}
	cfg.normalize()
	return record, cfg, nil
}

func (c trelloConfig) clone() trelloConfig {
	opts := c.toOptions()
	return trelloConfig{
		DefaultBoardID:     opts.DefaultBoardID,
		DefaultListID:      opts.DefaultListID,
		DefaultListBoardID: opts.DefaultListBoardID,
		BoardAliases:       opts.BoardAliases,
		ListAliases:        opts.ListAliases,
		WatchedEvents:      opts.WatchedEvents,
	}
}

func setAlias(aliases map[string]string, id, alias string) {
	for other, a := range aliases {
		if a == alias && other != id {
			delete(aliases, other)
		}
	}
	if alias == "" {
		delete(aliases, id)
		return
	}
	aliases[id] = alias
}

// watchedNames returns a copy of the events configured for boardID, or the
// default catalog when the board was never configured.
func watchedNames(watched map[string][]string, boardID string) []string {
	if names, ok := watched[boardID]; ok {
		return slices.Clone(names)
	}
	return events.DefaultWatchedNames()
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
