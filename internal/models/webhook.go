package models

import "encoding/json"

type TrelloActionData struct {
	Card       *Card                      `json:"card"`
	List       *List                      `json:"list"`
	ListBefore *List                      `json:"listBefore"`
	ListAfter  *List                      `json:"listAfter"`
	Board      *Board                     `json:"board"`
	Text       string                     `json:"text"`
	Old        map[string]json.RawMessage `json:"old"`
}

type TrelloAction struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"` // e.g., "updateCard"
	Data          *TrelloActionData `json:"data"`
	MemberCreator *Member           `json:"memberCreator"`
	Member        *Member           `json:"member"`
}

// TrelloWebhookPayload is the body Trello posts to a webhook callback. Model is
// the entity the webhook was registered on, which is always a board here.
type TrelloWebhookPayload struct {
	Model  *Board        `json:"model"`
	Action *TrelloAction `json:"action"`
}
