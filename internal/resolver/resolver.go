package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/chxlky/trello-matrix-bot/internal/options"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("reference not found")
	// ErrAmbiguousDefault means the room's default list belongs to a different
	// board than the one the reference resolved to.
	ErrAmbiguousDefault = errors.New("default list does not belong to the board")
)

// BoardService is the subset of the Trello API reference resolution needs.
type BoardService interface {
	GetBoards(ctx context.Context, token *models.TrelloToken) ([]models.Board, error)
	GetBoard(ctx context.Context, token *models.TrelloToken, boardID string) (*models.Board, error)
	GetLists(ctx context.Context, token *models.TrelloToken, boardID, filter string) ([]models.List, error)
	GetList(ctx context.Context, token *models.TrelloToken, boardID, listID string) (*models.List, error)
	GetCardsInList(ctx context.Context, token *models.TrelloToken, boardID, listID string) ([]models.Card, error)
	GetType(ctx context.Context, token *models.TrelloToken, text string) (*models.EntityType, error)
}

type OptionsSource interface {
	Get(ctx context.Context, roomID string) (*options.RoomOptions, error)
}

// Resolver maps user-typed references onto Trello boards, lists and cards.
// Nothing fetched from Trello is cached: every call sees current remote state.
type Resolver struct {
	Trello  BoardService
	Options OptionsSource
}

func New(trello BoardService, opts OptionsSource) *Resolver {
	return &Resolver{Trello: trello, Options: opts}
}

// BoardByReference resolves ref as a board alias, then as a board ID prefix
// or a URL starting with a board's short URL, and finally asks Trello what a
// short link refers to. Lookup failures are reported as ErrNotFound. An
// empty ref matches nothing.
func (r *Resolver) BoardByReference(ctx context.Context, roomID string, token *models.TrelloToken, ref string) (*models.Board, error) {
	if ref == "" {
		return nil, ErrNotFound
	}

	opts, err := r.Options.Get(ctx, roomID)
	if err != nil {
		zap.L().Warn("Failed to load room options for board lookup", zap.String("roomID", roomID), zap.Error(err))
		return nil, ErrNotFound
	}

	if boardID, ok := opts.BoardForAlias(ref); ok {
		board, err := r.Trello.GetBoard(ctx, token, boardID)
		if err == nil {
			return board, nil
		}
		zap.L().Debug("Aliased board lookup failed", zap.String("alias", ref), zap.String("boardID", boardID), zap.Error(err))
	}

	boards, err := r.Trello.GetBoards(ctx, token)
	if err != nil {
		zap.L().Debug("Failed to list boards", zap.Error(err))
		return nil, ErrNotFound
	}
	for i := range boards {
		if strings.HasPrefix(boards[i].ID, ref) || (boards[i].ShortURL != "" && strings.HasPrefix(ref, boards[i].ShortURL)) {
			return &boards[i], nil
		}
	}

	if strings.ContainsFunc(ref, unicode.IsSpace) {
		return nil, ErrNotFound
	}
	entity, err := r.Trello.GetType(ctx, token, ref)
	if err != nil || entity.Type != "board" {
		return nil, ErrNotFound
	}
	board, err := r.Trello.GetBoard(ctx, token, entity.ID)
	if err != nil {
		zap.L().Debug("Short link board lookup failed", zap.String("ref", ref), zap.Error(err))
		return nil, ErrNotFound
	}
	return board, nil
}

// BoardOrDefault resolves ref, or the room's default board when ref is empty.
func (r *Resolver) BoardOrDefault(ctx context.Context, roomID string, token *models.TrelloToken, ref string) (*models.Board, error) {
	if ref != "" {
		return r.BoardByReference(ctx, roomID, token, ref)
	}

	opts, err := r.Options.Get(ctx, roomID)
	if err != nil {
		zap.L().Warn("Failed to load room options for default board", zap.String("roomID", roomID), zap.Error(err))
		return nil, ErrNotFound
	}
	if opts.DefaultBoardID == "" {
		return nil, ErrNotFound
	}

	board, err := r.Trello.GetBoard(ctx, token, opts.DefaultBoardID)
	if err != nil {
		zap.L().Debug("Default board lookup failed", zap.String("boardID", opts.DefaultBoardID), zap.Error(err))
		return nil, ErrNotFound
	}
	return board, nil
}

// ListByReference resolves ref on board as a list alias, then as a list name
// (case-insensitive), then as a list ID. Errors from the final ID lookup are
// returned as-is.
func (r *Resolver) ListByReference(ctx context.Context, roomID string, token *models.TrelloToken, board *models.Board, ref string) (*models.List, error) {
	opts, err := r.Options.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if listID, ok := opts.ListForAlias(ref); ok {
		return r.Trello.GetList(ctx, token, board.ID, listID)
	}

	lists, err := r.Trello.GetLists(ctx, token, board.ID, "open")
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if strings.EqualFold(lists[i].Name, ref) {
			return &lists[i], nil
		}
	}

	return r.Trello.GetList(ctx, token, board.ID, ref)
}

// ListOrDefault resolves ref, or the room's default list when ref is empty.
// A default list on another board is ErrAmbiguousDefault.
func (r *Resolver) ListOrDefault(ctx context.Context, roomID string, token *models.TrelloToken, board *models.Board, ref string) (*models.List, error) {
	if ref != "" {
		return r.ListByReference(ctx, roomID, token, board, ref)
	}

	opts, err := r.Options.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if opts.DefaultListID == "" {
		return nil, ErrNotFound
	}
	if opts.DefaultListBoardID != board.ID {
		return nil, fmt.Errorf("%w: list %s is on board %s, not %s", ErrAmbiguousDefault, opts.DefaultListID, opts.DefaultListBoardID, board.ID)
	}
	return r.Trello.GetList(ctx, token, board.ID, opts.DefaultListID)
}

// CardByReference returns the first card in list whose ID ends with ref, so
// users can type abbreviated card IDs.
func (r *Resolver) CardByReference(ctx context.Context, token *models.TrelloToken, board *models.Board, list *models.List, ref string) (*models.Card, error) {
	cards, err := r.Trello.GetCardsInList(ctx, token, board.ID, list.ID)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if strings.HasSuffix(cards[i].ID, ref) {
			return &cards[i], nil
		}
	}
	return nil, ErrNotFound
}

// BoardAndLists splits one free-text reference into a board and count lists,
// for commands such as "move" that name a board and several lists at once.
//
// The first word selects the board when it starts with one of the user's
// board short URLs or equals a board alias; otherwise the whole text names
// lists on the room's default board. Lists are then consumed from the front
// of the remaining text, first by list alias and then by list name. Slots
// still empty are filled with the room's default list, which may repeat.
//
// Aliases are tried longest first, ties in lexical order, and lists by name
// in board order. A prefix only matches when it ends at a word boundary.
func (r *Resolver) BoardAndLists(ctx context.Context, roomID string, token *models.TrelloToken, ref string, count int) (*models.Board, []*models.List, error) {
	ref = strings.TrimSpace(ref)

	board, remainder, err := r.splitBoard(ctx, roomID, token, ref)
	if err != nil {
		return nil, nil, err
	}

	opts, err := r.Options.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	var found []*models.List
	if remainder != "" {
		found, remainder, err = r.consumeAliases(ctx, token, board, opts, remainder, count)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(found) < count && remainder != "" {
		var named []*models.List
		named, _, err = r.consumeNames(ctx, token, board, remainder, count, count-len(found))
		if err != nil {
			return nil, nil, err
		}
		found = append(found, named...)
	}

	if len(found) < count {
		fallback, err := r.ListOrDefault(ctx, roomID, token, board, "")
		if err != nil {
			return nil, nil, err
		}
		for len(found) < count {
			found = append(found, fallback)
		}
	}

	return board, found, nil
}

// splitBoard picks the board for BoardAndLists and returns the text left for
// list references.
func (r *Resolver) splitBoard(ctx context.Context, roomID string, token *models.TrelloToken, ref string) (*models.Board, string, error) {
	if ref != "" {
		first, rest := splitFirstWord(ref)

		boards, err := r.Trello.GetBoards(ctx, token)
		if err != nil {
			zap.L().Debug("Failed to list boards", zap.Error(err))
		}
		for i := range boards {
			if boards[i].ShortURL != "" && strings.HasPrefix(first, boards[i].ShortURL) {
				return &boards[i], rest, nil
			}
		}

		opts, err := r.Options.Get(ctx, roomID)
		if err != nil {
			return nil, "", err
		}
		if boardID, ok := opts.BoardForAlias(first); ok {
			board, err := r.Trello.GetBoard(ctx, token, boardID)
			if err == nil {
				return board, rest, nil
			}
			zap.L().Debug("Aliased board lookup failed", zap.String("alias", first), zap.Error(err))
		}
	}

	board, err := r.BoardOrDefault(ctx, roomID, token, "")
	if err != nil {
		return nil, "", err
	}
	return board, ref, nil
}

func (r *Resolver) consumeAliases(ctx context.Context, token *models.TrelloToken, board *models.Board, opts *options.RoomOptions, text string, count int) ([]*models.List, string, error) {
	type alias struct{ listID, name string }
	aliases := make([]alias, 0, len(opts.ListAliases))
	for listID, name := range opts.ListAliases {
		if name != "" {
			aliases = append(aliases, alias{listID, name})
		}
	}
	slices.SortFunc(aliases, func(a, b alias) int {
		if c := cmp.Compare(len(b.name), len(a.name)); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	var found []*models.List
	for len(found) < count && text != "" {
		matched := false
		for _, a := range aliases {
			rest, ok := consume(text, a.name, count, strings.HasPrefix)
			if !ok {
				continue
			}
			list, err := r.Trello.GetList(ctx, token, board.ID, a.listID)
			if err != nil {
				zap.L().Debug("Aliased list not on board", zap.String("alias", a.name), zap.String("boardID", board.ID), zap.Error(err))
				continue
			}
			found = append(found, list)
			text = rest
			matched = true
			break
		}
		if !matched {
			break
		}
	}
	return found, text, nil
}

// consumeNames matches at most limit lists by name. count is the number of
// lists the whole reference names, which decides whether prefixes match.
func (r *Resolver) consumeNames(ctx context.Context, token *models.TrelloToken, board *models.Board, text string, count, limit int) ([]*models.List, string, error) {
	lists, err := r.Trello.GetLists(ctx, token, board.ID, "open")
	if err != nil {
		return nil, text, err
	}

	var found []*models.List
	for len(found) < limit && text != "" {
		matched := false
		for i := range lists {
			rest, ok := consume(text, lists[i].Name, count, hasPrefixFold)
			if !ok {
				continue
			}
			found = append(found, &lists[i])
			text = rest
			matched = true
			break
		}
		if !matched {
			break
		}
	}
	return found, text, nil
}

// consume matches name against the start of text. With a single expected
// list the whole text must match.
func consume(text, name string, count int, hasPrefix func(s, prefix string) bool) (string, bool) {
	if name == "" {
		return text, false
	}
	if count == 1 {
		if len(text) == len(name) && hasPrefix(text, name) {
			return "", true
		}
		return text, false
	}
	if !hasPrefix(text, name) {
		return text, false
	}
	rest := text[len(name):]
	if rest != "" && !unicode.IsSpace(rune(rest[0])) {
		return text, false
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace), true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func splitFirstWord(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}
