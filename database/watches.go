package database

import (
	"context"
	"fmt"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WatchStore struct {
	DB *gorm.DB
}

// WatchersOf returns every room watching boardID.
func (s *WatchStore) WatchersOf(ctx context.Context, boardID string) ([]models.BoardWatch, error) {
	var watches []models.BoardWatch
	if err := s.DB.WithContext(ctx).Where("board_id = ?", boardID).Order("id").Find(&watches).Error; err != nil {
		return nil, fmt.Errorf("failed to load watchers of board %s: %w", boardID, err)
	}
	return watches, nil
}

// WatchedBoards returns every board watched in roomID.
func (s *WatchStore) WatchedBoards(ctx context.Context, roomID string) ([]models.BoardWatch, error) {
	var watches []models.BoardWatch
	if err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&watches).Error; err != nil {
		return nil, fmt.Errorf("failed to load boards watched in room %s: %w", roomID, err)
	}
	return watches, nil
}

// AddWatch records a watch, refreshing the cached url and name if the room
// already watches the board.
func (s *WatchStore) AddWatch(ctx context.Context, watch *models.BoardWatch) error {
	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"board_url", "board_name"}),
	}).Create(watch)
	if result.Error != nil {
		return fmt.Errorf("failed to save watch of board %s in room %s: %w", watch.BoardID, watch.RoomID, result.Error)
	}
	return nil
}

func (s *WatchStore) RemoveWatch(ctx context.Context, roomID, boardID string) error {
	result := s.DB.WithContext(ctx).Where("room_id = ? AND board_id = ?", roomID, boardID).Delete(&models.BoardWatch{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove watch of board %s in room %s: %w", boardID, roomID, result.Error)
	}
	return nil
}
