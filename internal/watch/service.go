package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"go.uber.org/zap"
)

const webhookDescription = "Matrix Trello Bot"

var ErrNoToken = errors.New("user has not authorized the bot")

type TokenSource interface {
	TokenForUser(ctx context.Context, userID string) (*models.TrelloToken, error)
}

type BoardResolver interface {
	BoardByReference(ctx context.Context, roomID string, token *models.TrelloToken, ref string) (*models.Board, error)
}

type WebhookRegistry interface {
	RegisterWebhook(ctx context.Context, token *models.TrelloToken, boardID, description string) (string, error)
	DeleteWebhook(ctx context.Context, token *models.TrelloToken, webhookID string) error
}

type WebhookStore interface {
	WebhooksForBoard(ctx context.Context, boardID string) ([]models.TrelloWebhook, error)
	SaveWebhook(ctx context.Context, hook *models.TrelloWebhook) error
	DeleteWebhook(ctx context.Context, webhookID string) error
}

type WatchStore interface {
	WatchersOf(ctx context.Context, boardID string) ([]models.BoardWatch, error)
	AddWatch(ctx context.Context, watch *models.BoardWatch) error
	RemoveWatch(ctx context.Context, roomID, boardID string) error
}

// Invalidator refreshes a room's options; the number of watched boards
// decides whether the room has an implicit default board.
type Invalidator interface {
	OnConfigRecordChanged(ctx context.Context, roomID string) error
}

// Service starts and stops the delivery of a board's activity to a room.
type Service struct {
	Tokens      TokenSource
	Resolver    BoardResolver
	Trello      WebhookRegistry
	Webhooks    WebhookStore
	Watches     WatchStore
	Invalidator Invalidator
	// IsWebhookExists reports whether a registration error means Trello
	// already has the webhook.
	IsWebhookExists func(error) bool
}

// Watch resolves boardRef with userID's credentials, makes sure a webhook
// exists for the board and records the room as a watcher.
func (s *Service) Watch(ctx context.Context, roomID, userID, boardRef string) (*models.Board, error) {
	token, board, err := s.resolve(ctx, roomID, userID, boardRef)
	if err != nil {
		return nil, err
	}

	webhookID, err := s.Trello.RegisterWebhook(ctx, token, board.ID, webhookDescription)
	switch {
	case err == nil:
		if err := s.Webhooks.SaveWebhook(ctx, &models.TrelloWebhook{WebhookID: webhookID, BoardID: board.ID}); err != nil {
			return nil, err
		}
	case s.IsWebhookExists != nil && s.IsWebhookExists(err):
		zap.L().Debug("Webhook already registered", zap.String("boardID", board.ID))
	default:
		return nil, fmt.Errorf("failed to register webhook for board %s: %w", board.ID, err)
	}

	boardURL := board.ShortURL
	if boardURL == "" {
		boardURL = board.URL
	}
	if err := s.Watches.AddWatch(ctx, &models.BoardWatch{
		BoardID:   board.ID,
		RoomID:    roomID,
		BoardURL:  boardURL,
		BoardName: board.Name,
	}); err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	zap.L().Info("Room is watching board", zap.String("roomID", roomID), zap.String("boardID", board.ID))
	return board, nil
}

// Unwatch removes the room's watch. The board's webhooks are deleted once no
// room watches it any more.
func (s *Service) Unwatch(ctx context.Context, roomID, userID, boardRef string) (*models.Board, error) {
	token, board, err := s.resolve(ctx, roomID, userID, boardRef)
	if err != nil {
		return nil, err
	}

	if err := s.Watches.RemoveWatch(ctx, roomID, board.ID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, roomID)
	zap.L().Info("Room stopped watching board", zap.String("roomID", roomID), zap.String("boardID", board.ID))

	remaining, err := s.Watches.WatchersOf(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		zap.L().Debug("Keeping webhooks for board", zap.String("boardID", board.ID), zap.Int("watchers", len(remaining)))
		return board, nil
	}

	hooks, err := s.Webhooks.WebhooksForBoard(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	for _, hook := range hooks {
		if err := s.Trello.DeleteWebhook(ctx, token, hook.WebhookID); err != nil {
			return nil, fmt.Errorf("failed to delete webhook %s: %w", hook.WebhookID, err)
		}
		if err := s.Webhooks.DeleteWebhook(ctx, hook.WebhookID); err != nil {
			return nil, err
		}
	}
	return board, nil
}

func (s *Service) resolve(ctx context.Context, roomID, userID, boardRef string) (*models.TrelloToken, *models.Board, error) {
	token, err := s.Tokens.TokenForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		return nil, nil, ErrNoToken
	}

	board, err := s.Resolver.BoardByReference(ctx, roomID, token, boardRef)
	if err != nil {
		return nil, nil, err
	}
	return token, board, nil
}

func (s *Service) invalidate(ctx context.Context, roomID string) {
	if s.Invalidator == nil {
		return
	}
	if err := s.Invalidator.OnConfigRecordChanged(ctx, roomID); err != nil {
		zap.L().Warn("Failed to refresh room options", zap.String("roomID", roomID), zap.Error(err))
	}
}
