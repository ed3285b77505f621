package events

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"go.uber.org/zap"
)

const withBoard = " on {board_name}"

// Classify turns a webhook payload into an Event. It reports false for action
// types it does not handle and for payloads missing the fields the event
// needs; neither case is an error.
func Classify(payload *models.TrelloWebhookPayload) (*Event, bool) {
	if payload == nil || payload.Model == nil {
		return nil, false
	}
	action := payload.Action
	if action == nil || action.Data == nil {
		return nil, false
	}

	board := *payload.Model
	data := action.Data
	creator := action.MemberCreator

	switch action.Type {
	case "createCard":
		if data.Card == nil || data.List == nil || creator == nil {
			return discard(action, "missing card, list or creator")
		}
		return cardEvent(board, CardCreated,
			`{creator} created the card <a href="{card_url}">{card_name}</a> under {list_name}`,
			map[string]string{
				"creator":   creator.FullName,
				"card_name": data.Card.Name,
				"card_url":  data.Card.URL(),
				"list_name": data.List.Name,
			}), true

	case "updateCard":
		return classifyUpdate(board, action)

	case "deleteCard":
		if data.Card == nil || data.List == nil || creator == nil {
			return discard(action, "missing card, list or creator")
		}
		return cardEvent(board, CardDeleted,
			`{member} deleted card #{card_id} from {list_name}`,
			map[string]string{
				"member":    creator.FullName,
				"card_id":   strconv.Itoa(data.Card.IDShort),
				"list_name": data.List.Name,
			}), true

	case "addMemberToCard":
		if data.Card == nil || creator == nil || action.Member == nil {
			return discard(action, "missing card, creator or member")
		}
		return cardEvent(board, CardAssigned,
			`{member} assigned the card <a href="{card_url}">{card_name}</a> to {assigned}`,
			map[string]string{
				"member":    creator.FullName,
				"assigned":  action.Member.FullName,
				"card_name": data.Card.Name,
				"card_url":  data.Card.URL(),
			}), true

	case "removeMemberFromCard":
		if data.Card == nil || creator == nil || action.Member == nil {
			return discard(action, "missing card, creator or member")
		}
		return cardEvent(board, CardUnassigned,
			`{member} removed {assigned} from the card <a href="{card_url}">{card_name}</a>`,
			map[string]string{
				"member":    creator.FullName,
				"assigned":  action.Member.FullName,
				"card_name": data.Card.Name,
				"card_url":  data.Card.URL(),
			}), true

	case "commentCard":
		if data.Card == nil || data.List == nil || creator == nil {
			return discard(action, "missing card, list or creator")
		}
		return cardEvent(board, CardCommented,
			`{member} commented on the card <a href="{card_url}">{card_name}</a> under {list_name}`,
			map[string]string{
				"member":    creator.FullName,
				"card_name": data.Card.Name,
				"card_url":  data.Card.URL(),
				"list_name": data.List.Name,
				"comment":   data.Text,
			}), true
	}

	zap.L().Debug("Unrecognized Trello action", zap.String("type", action.Type), zap.String("actionID", action.ID))
	return nil, false
}

// classifyUpdate applies the updateCard rules in order: a list change is a
// move, a closed flag change is an archive or restore, and any other change
// that is not a position change is a generic update. Position-only changes
// produce nothing.
func classifyUpdate(board models.Board, action *models.TrelloAction) (*Event, bool) {
	data := action.Data
	creator := action.MemberCreator
	card := data.Card
	if card == nil || creator == nil || data.Old == nil {
		return discard(action, "missing card, creator or old values")
	}
	moved := data.ListBefore != nil && data.ListAfter != nil
	if data.List == nil && !moved {
		return discard(action, "missing list")
	}

	if moved {
		return cardEvent(board, CardMoved,
			`{member} moved <a href="{card_url}">{card_name}</a> from {old_list_name} to {new_list_name}`,
			map[string]string{
				"member":        creator.FullName,
				"card_name":     card.Name,
				"card_url":      card.URL(),
				"old_list_name": data.ListBefore.Name,
				"new_list_name": data.ListAfter.Name,
			}), true
	}

	vars := map[string]string{
		"member":    creator.FullName,
		"card_name": card.Name,
		"card_url":  card.URL(),
		"list_name": data.List.Name,
	}

	if oldClosed := decodeBool(data.Old["closed"]); !sameFlag(oldClosed, card.Closed) {
		if card.Closed != nil && *card.Closed {
			return cardEvent(board, CardArchived,
				`{member} archived the card <a href="{card_url}">{card_name}</a> under {list_name}`, vars), true
		}
		return cardEvent(board, CardRestored,
			`{member} restored the card <a href="{card_url}">{card_name}</a> under {list_name}`, vars), true
	}

	if _, ok := data.Old["pos"]; !ok {
		return cardEvent(board, CardUpdated,
			`{member} updated the card <a href="{card_url}">{card_name}</a> under {list_name}`, vars), true
	}

	return nil, false
}

func cardEvent(board models.Board, def Def, template string, vars map[string]string) *Event {
	vars["board_name"] = board.Name
	return &Event{
		Board:         board,
		Def:           def,
		Template:      template,
		BoardTemplate: template + withBoard,
		Variables:     vars,
	}
}

func discard(action *models.TrelloAction, reason string) (*Event, bool) {
	zap.L().Debug("Discarding Trello action", zap.String("type", action.Type), zap.String("actionID", action.ID), zap.String("reason", reason))
	return nil, false
}

// decodeBool returns nil when raw is absent or not a boolean.
func decodeBool(raw json.RawMessage) *bool {
	if raw == nil || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}

func sameFlag(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
