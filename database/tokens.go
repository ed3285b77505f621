package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"gorm.io/gorm"
)

type TokenStore struct {
	DB *gorm.DB
}

// TokenForUser returns the first token stored for userID, or nil when the user
// never authorized the bot.
func (s *TokenStore) TokenForUser(ctx context.Context, userID string) (*models.TrelloToken, error) {
	var token models.TrelloToken
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token for %s: %w", userID, err)
	}
	return &token, nil
}

func (s *TokenStore) SaveToken(ctx context.Context, token *models.TrelloToken) error {
	if err := s.DB.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to save token for %s: %w", token.UserID, err)
	}
	return nil
}

type WebhookStore struct {
	DB *gorm.DB
}

func (s *WebhookStore) WebhooksForBoard(ctx context.Context, boardID string) ([]models.TrelloWebhook, error) {
	var hooks []models.TrelloWebhook
	if err := s.DB.WithContext(ctx).Where("board_id = ?", boardID).Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to load webhooks for board %s: %w", boardID, err)
	}
	return hooks, nil
}

func (s *WebhookStore) SaveWebhook(ctx context.Context, hook *models.TrelloWebhook) error {
	if err := s.DB.WithContext(ctx).Save(hook).Error; err != nil {
		return fmt.Errorf("failed to save webhook %s: %w", hook.WebhookID, err)
	}
	return nil
}

func (s *WebhookStore) DeleteWebhook(ctx context.Context, webhookID string) error {
	if err := s.DB.WithContext(ctx).Delete(&models.TrelloWebhook{}, "webhook_id = ?", webhookID).Error; err != nil {
		return fmt.Errorf("failed to delete webhook %s: %w", webhookID, err)
	}
	return nil
}
