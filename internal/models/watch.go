package models

// BoardWatch links a board to a room that wants its activity. URL and name are
// captured when the watch is created so notices can still link to the board
// after it is renamed or removed upstream.
type BoardWatch struct {
	ID        uint   `gorm:"primaryKey"`
	BoardID   string `gorm:"uniqueIndex:idx_board_room;not null"`
	RoomID    string `gorm:"uniqueIndex:idx_board_room;index;not null"`
	BoardURL  string
	BoardName string
}

type TrelloToken struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Token       string `gorm:"not null"`
	TokenSecret string
}

type TrelloWebhook struct {
	WebhookID string `gorm:"primaryKey"`
	BoardID   string `gorm:"index;not null"`
}
