package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/chxlky/trello-matrix-bot/internal/events"
	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/chxlky/trello-matrix-bot/internal/options"
	"go.uber.org/zap"
)

type WatchFinder interface {
	WatchersOf(ctx context.Context, boardID string) ([]models.BoardWatch, error)
}

type OptionsSource interface {
	Get(ctx context.Context, roomID string) (*options.RoomOptions, error)
	IsEventWatched(ctx context.Context, roomID, boardID string, def events.Def) (bool, error)
}

type MessageSender interface {
	SendNotice(ctx context.Context, roomID, plain, html string) error
}

type Dispatcher struct {
	Watches WatchFinder
	Options OptionsSource
	Sender  MessageSender
}

func NewDispatcher(watches WatchFinder, opts OptionsSource, sender MessageSender) *Dispatcher {
	return &Dispatcher{Watches: watches, Options: opts, Sender: sender}
}

// Dispatch sends event to every room watching its board. Rooms are handled
// concurrently and independently; a failure in one room is logged and does
// not affect the others. Only the watcher lookup itself returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event *events.Event) error {
	watches, err := d.Watches.WatchersOf(ctx, event.Board.ID)
	if err != nil {
		return fmt.Errorf("failed to find rooms watching board %s: %w", event.Board.ID, err)
	}
	if len(watches) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, watch := range watches {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			if err := d.sendToRoom(ctx, event, roomID); err != nil {
				zap.L().Error("Failed to notify room",
					zap.String("roomID", roomID),
					zap.String("boardID", event.Board.ID),
					zap.String("event", event.Def.Name),
					zap.Error(err))
			}
		}(watch.RoomID)
	}
	wg.Wait()

	return nil
}

func (d *Dispatcher) sendToRoom(ctx context.Context, event *events.Event, roomID string) error {
	opts, err := d.Options.Get(ctx, roomID)
	if err != nil {
		return err
	}

	template := event.BoardTemplate
	if opts.DefaultBoardID == event.Board.ID {
		template = event.Template
	}
	if template == "" {
		return nil
	}

	watched, err := d.Options.IsEventWatched(ctx, roomID, event.Board.ID, event.Def)
	if err != nil {
		return err
	}
	if !watched {
		zap.L().Debug("Event not watched in room", zap.String("roomID", roomID), zap.String("event", event.Def.Name))
		return nil
	}

	htmlMessage := events.Render(template, event.Variables)
	return d.Sender.SendNotice(ctx, roomID, PlainText(htmlMessage), htmlMessage)
}
