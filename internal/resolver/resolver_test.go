package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/chxlky/trello-matrix-bot/internal/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTrello = errors.New("trello: 404 Not Found")

type fakeTrello struct {
	boards    []models.Board
	lists     map[string][]models.List
	cards     map[string][]models.Card
	types     map[string]models.EntityType
	boardsErr error
}

func (f *fakeTrello) GetBoards(context.Context, *models.TrelloToken) ([]models.Board, error) {
	if f.boardsErr != nil {
		return nil, f.boardsErr
	}
	return f.boards, nil
}

func (f *fakeTrello) GetBoard(_ context.Context, _ *models.TrelloToken, boardID string) (*models.Board, error) {
	for i := range f.boards {
		if f.boards[i].ID == boardID {
			board := f.boards[i]
			return &board, nil
		}
	}
	return nil, errTrello
}

func (f *fakeTrello) GetLists(_ context.Context, _ *models.TrelloToken, boardID, _ string) ([]models.List, error) {
	return f.lists[boardID], nil
}

func (f *fakeTrello) GetList(_ context.Context, _ *models.TrelloToken, boardID, listID string) (*models.List, error) {
	for _, list := range f.lists[boardID] {
		if list.ID == listID {
			return &list, nil
		}
	}
	return nil, fmt.Errorf("list %s: %w", listID, errTrello)
}

func (f *fakeTrello) GetCardsInList(_ context.Context, _ *models.TrelloToken, _, listID string) ([]models.Card, error) {
	return f.cards[listID], nil
}

func (f *fakeTrello) GetType(_ context.Context, _ *models.TrelloToken, text string) (*models.EntityType, error) {
	entity, ok := f.types[text]
	if !ok {
		return nil, errTrello
	}
	return &entity, nil
}

type fixedOptions struct {
	opts *options.RoomOptions
	err  error
}

func (f fixedOptions) Get(context.Context, string) (*options.RoomOptions, error) {
	return f.opts, f.err
}

func roomOptions() *options.RoomOptions {
	return &options.RoomOptions{
		BoardAliases:  map[string]string{},
		ListAliases:   map[string]string{},
		WatchedEvents: map[string][]string{},
	}
}

var token = &models.TrelloToken{UserID: "@alice:example.org", Token: "tok"}

func newFakeTrello() *fakeTrello {
	return &fakeTrello{
		boards: []models.Board{
			{ID: "5a1boardA", Name: "Alpha", ShortURL: "shortUrlA"},
			{ID: "Ops9boardB", Name: "Bravo", ShortURL: "https://trello.com/b/bbb"},
			{ID: "7c3boardX", Name: "Ops board", ShortURL: "https://trello.com/b/xxx"},
		},
		lists: map[string][]models.List{
			"5a1boardA": {
				{ID: "L1", Name: "To Do", IDBoard: "5a1boardA"},
				{ID: "L2", Name: "Done", IDBoard: "5a1boardA"},
				{ID: "L3", Name: "Doing", IDBoard: "5a1boardA"},
			},
			"Ops9boardB": {
				{ID: "L9", Name: "Backlog", IDBoard: "Ops9boardB"},
			},
		},
		cards: map[string][]models.Card{
			"L1": {
				{ID: "5f00000000abc123", Name: "first"},
				{ID: "5f00000000xyz789", Name: "second"},
				{ID: "5f00000000ddd123", Name: "third"},
			},
		},
	}
}

func TestBoardByReference(t *testing.T) {
	ctx := context.Background()

	t.Run("alias wins over an ID prefix", func(t *testing.T) {
		opts := roomOptions()
		opts.BoardAliases["7c3boardX"] = "Ops"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, err := r.BoardByReference(ctx, "!room", token, "Ops")
		require.NoError(t, err)
		assert.Equal(t, "7c3boardX", board.ID)
	})

	t.Run("ID prefix", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		board, err := r.BoardByReference(ctx, "!room", token, "Ops")
		require.NoError(t, err)
		assert.Equal(t, "Ops9boardB", board.ID)
	})

	t.Run("full URL starting with a short URL", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		board, err := r.BoardByReference(ctx, "!room", token, "https://trello.com/b/xxx/ops-board")
		require.NoError(t, err)
		assert.Equal(t, "7c3boardX", board.ID)
	})

	t.Run("stale alias falls through", func(t *testing.T) {
		opts := roomOptions()
		opts.BoardAliases["deleted"] = "5a1"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		board, err := r.BoardByReference(ctx, "!room", token, "5a1")
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
	})

	t.Run("no match", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, err := r.BoardByReference(ctx, "!room", token, "nothing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty reference matches nothing", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		board, err := r.BoardByReference(ctx, "!room", token, "")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, board)
	})

	t.Run("short link resolved by Trello", func(t *testing.T) {
		trello := newFakeTrello()
		trello.types = map[string]models.EntityType{
			"xYz12AbC": {ID: "Ops9boardB", Type: "board"},
			"cArD1234": {ID: "5f00000000abc123", Type: "card"},
		}
		r := New(trello, fixedOptions{opts: roomOptions()})

		board, err := r.BoardByReference(ctx, "!room", token, "xYz12AbC")
		require.NoError(t, err)
		assert.Equal(t, "Ops9boardB", board.ID)

		_, err = r.BoardByReference(ctx, "!room", token, "cArD1234")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remote failure degrades to not found", func(t *testing.T) {
		trello := newFakeTrello()
		trello.boardsErr = errors.New("401 unauthorized")
		r := New(trello, fixedOptions{opts: roomOptions()})
		_, err := r.BoardByReference(ctx, "!room", token, "5a1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBoardOrDefault(t *testing.T) {
	ctx := context.Background()

	t.Run("default board", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		board, err := r.BoardOrDefault(ctx, "!room", token, "")
		require.NoError(t, err)
		assert.Equal(t, "Alpha", board.Name)
	})

	t.Run("missing default board degrades to not found", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "gone"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		_, err := r.BoardOrDefault(ctx, "!room", token, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no default", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, err := r.BoardOrDefault(ctx, "!room", token, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reference given", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		board, err := r.BoardOrDefault(ctx, "!room", token, "Ops9")
		require.NoError(t, err)
		assert.Equal(t, "Ops9boardB", board.ID)
	})
}

func TestListByReference(t *testing.T) {
	ctx := context.Background()
	board := &models.Board{ID: "5a1boardA"}

	t.Run("alias", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L3"] = "wip"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		list, err := r.ListByReference(ctx, "!room", token, board, "wip")
		require.NoError(t, err)
		assert.Equal(t, "L3", list.ID)
	})

	t.Run("name is case-insensitive", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		list, err := r.ListByReference(ctx, "!room", token, board, "to do")
		require.NoError(t, err)
		assert.Equal(t, "L1", list.ID)
	})

	t.Run("list ID", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		list, err := r.ListByReference(ctx, "!room", token, board, "L2")
		require.NoError(t, err)
		assert.Equal(t, "Done", list.Name)
	})

	t.Run("ID lookup failure propagates", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, err := r.ListByReference(ctx, "!room", token, board, "nope")
		assert.ErrorIs(t, err, errTrello)
	})
}

func TestListOrDefault(t *testing.T) {
	ctx := context.Background()
	board := &models.Board{ID: "5a1boardA"}

	t.Run("default list on the board", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		opts.DefaultListID = "L2"
		opts.DefaultListBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		list, err := r.ListOrDefault(ctx, "!room", token, board, "")
		require.NoError(t, err)
		assert.Equal(t, "L2", list.ID)
	})

	t.Run("default list on another board is ambiguous", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "Ops9boardB"
		opts.DefaultListID = "L9"
		opts.DefaultListBoardID = "Ops9boardB"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		_, err := r.ListOrDefault(ctx, "!room", token, board, "")
		assert.ErrorIs(t, err, ErrAmbiguousDefault)
	})

	t.Run("no default list", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, err := r.ListOrDefault(ctx, "!room", token, board, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBoardAndLists(t *testing.T) {
	ctx := context.Background()

	t.Run("short URL then two aliased lists", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L1"] = "To Do"
		opts.ListAliases["L2"] = "Done"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA To Do Done", 2)
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
		require.Len(t, lists, 2)
		assert.Equal(t, "L1", lists[0].ID)
		assert.Equal(t, "L2", lists[1].ID)
	})

	t.Run("board alias then list names in any case", func(t *testing.T) {
		opts := roomOptions()
		opts.BoardAliases["5a1boardA"] = "alpha"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, lists, err := r.BoardAndLists(ctx, "!room", token, "alpha done to do", 2)
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
		require.Len(t, lists, 2)
		assert.Equal(t, "L2", lists[0].ID)
		assert.Equal(t, "L1", lists[1].ID)
	})

	t.Run("alias then name", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L3"] = "wip"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA wip Done", 2)
		require.NoError(t, err)
		require.Len(t, lists, 2)
		assert.Equal(t, "L3", lists[0].ID)
		assert.Equal(t, "L2", lists[1].ID)
	})

	t.Run("name prefix after an alias leaves trailing text", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L1"] = "To Do"
		opts.DefaultListID = "L3"
		opts.DefaultListBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA To Do Done please", 2)
		require.NoError(t, err)
		require.Len(t, lists, 2)
		assert.Equal(t, "L1", lists[0].ID)
		assert.Equal(t, "L2", lists[1].ID)
	})

	t.Run("prefix must end at a word boundary", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L1"] = "Do"
		r := New(newFakeTrello(), fixedOptions{opts: opts})
		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA Doing Done", 2)
		require.NoError(t, err)
		require.Len(t, lists, 2)
		assert.Equal(t, "L3", lists[0].ID)
		assert.Equal(t, "L2", lists[1].ID)
	})

	t.Run("single list must match the whole remainder", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA To Do", 1)
		require.NoError(t, err)
		require.Len(t, lists, 1)
		assert.Equal(t, "L1", lists[0].ID)
	})

	t.Run("no board match uses the default board for the whole text", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, lists, err := r.BoardAndLists(ctx, "!room", token, "To Do Done", 2)
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
		require.Len(t, lists, 2)
		assert.Equal(t, "L1", lists[0].ID)
		assert.Equal(t, "L2", lists[1].ID)
	})

	t.Run("empty remainder repeats the default list", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		opts.DefaultListID = "L1"
		opts.DefaultListBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA", 2)
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
		require.Len(t, lists, 2)
		assert.Same(t, lists[0], lists[1])
		assert.Equal(t, "L1", lists[0].ID)
	})

	t.Run("empty reference resolves from defaults", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		opts.DefaultListID = "L2"
		opts.DefaultListBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		board, lists, err := r.BoardAndLists(ctx, "!room", token, "", 3)
		require.NoError(t, err)
		assert.Equal(t, "5a1boardA", board.ID)
		require.Len(t, lists, 3)
		for _, list := range lists {
			assert.Equal(t, "L2", list.ID)
		}
	})

	t.Run("partial match fills the rest from the default list", func(t *testing.T) {
		opts := roomOptions()
		opts.DefaultBoardID = "5a1boardA"
		opts.DefaultListID = "L3"
		opts.DefaultListBoardID = "5a1boardA"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA Done", 2)
		require.NoError(t, err)
		require.Len(t, lists, 2)
		assert.Equal(t, "L2", lists[0].ID)
		assert.Equal(t, "L3", lists[1].ID)
	})

	t.Run("no board at all", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, _, err := r.BoardAndLists(ctx, "!room", token, "To Do", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no lists and no default list", func(t *testing.T) {
		r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
		_, _, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("aliases of lists on other boards are skipped", func(t *testing.T) {
		opts := roomOptions()
		opts.ListAliases["L9"] = "To Do"
		r := New(newFakeTrello(), fixedOptions{opts: opts})

		_, lists, err := r.BoardAndLists(ctx, "!room", token, "shortUrlA To Do", 1)
		require.NoError(t, err)
		require.Len(t, lists, 1)
		assert.Equal(t, "L1", lists[0].ID)
	})
}

func TestCardByReference(t *testing.T) {
	ctx := context.Background()
	r := New(newFakeTrello(), fixedOptions{opts: roomOptions()})
	board := &models.Board{ID: "5a1boardA"}
	list := &models.List{ID: "L1"}

	card, err := r.CardByReference(ctx, token, board, list, "123")
	require.NoError(t, err)
	assert.Equal(t, "first", card.Name)

	card, err = r.CardByReference(ctx, token, board, list, "xyz789")
	require.NoError(t, err)
	assert.Equal(t, "second", card.Name)

	_, err = r.CardByReference(ctx, token, board, list, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
