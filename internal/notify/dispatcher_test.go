package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/chxlky/trello-matrix-bot/internal/events"
	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/chxlky/trello-matrix-bot/internal/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWatches map[string][]string

func (w staticWatches) WatchersOf(_ context.Context, boardID string) ([]models.BoardWatch, error) {
	var out []models.BoardWatch
	for _, roomID := range w[boardID] {
		out = append(out, models.BoardWatch{BoardID: boardID, RoomID: roomID})
	}
	return out, nil
}

type failingWatches struct{}

func (failingWatches) WatchersOf(context.Context, string) ([]models.BoardWatch, error) {
	return nil, errors.New("database is locked")
}

type fakeOptions struct {
	defaults  map[string]string
	unwatched map[string]bool
	failRoom  string
}

func (f fakeOptions) Get(_ context.Context, roomID string) (*options.RoomOptions, error) {
	if roomID == f.failRoom {
		return nil, errors.New("state lookup failed")
	}
	return &options.RoomOptions{DefaultBoardID: f.defaults[roomID]}, nil
}

func (f fakeOptions) IsEventWatched(_ context.Context, roomID, _ string, _ events.Def) (bool, error) {
	return !f.unwatched[roomID], nil
}

type notice struct {
	roomID, plain, html string
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []notice
	failRoom string
}

func (s *recordingSender) SendNotice(_ context.Context, roomID, plain, html string) error {
	if roomID == s.failRoom {
		return errors.New("M_FORBIDDEN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notice{roomID, plain, html})
	return nil
}

func (s *recordingSender) rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rooms []string
	for _, n := range s.sent {
		rooms = append(rooms, n.roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func archivedEvent() *events.Event {
	return &events.Event{
		Board:         models.Board{ID: "board1", Name: "Ops"},
		Def:           events.CardArchived,
		Template:      `{member} archived the card <a href="{card_url}">{card_name}</a> under {list_name}`,
		BoardTemplate: `{member} archived the card <a href="{card_url}">{card_name}</a> under {list_name} on {board_name}`,
		Variables: map[string]string{
			"member":     "Alice",
			"card_url":   "https://trello.com/c/abc",
			"card_name":  "Fix & ship",
			"list_name":  "Done",
			"board_name": "Ops",
		},
	}
}

func TestDispatchChoosesTemplatePerRoom(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(
		staticWatches{"board1": {"!home", "!elsewhere"}},
		fakeOptions{defaults: map[string]string{"!home": "board1", "!elsewhere": "board2"}},
		sender,
	)

	require.NoError(t, d.Dispatch(context.Background(), archivedEvent()))
	require.Len(t, sender.sent, 2)

	byRoom := map[string]notice{}
	for _, n := range sender.sent {
		byRoom[n.roomID] = n
	}
	assert.Equal(t, "Alice archived the card Fix & ship under Done", byRoom["!home"].plain)
	assert.Equal(t, `Alice archived the card <a href="https://trello.com/c/abc">Fix &amp; ship</a> under Done`, byRoom["!home"].html)
	assert.Equal(t, "Alice archived the card Fix & ship under Done on Ops", byRoom["!elsewhere"].plain)
}

func TestDispatchIsolatesRoomFailures(t *testing.T) {
	t.Run("send failure", func(t *testing.T) {
		sender := &recordingSender{failRoom: "!two"}
		d := NewDispatcher(staticWatches{"board1": {"!one", "!two", "!three"}}, fakeOptions{}, sender)

		require.NoError(t, d.Dispatch(context.Background(), archivedEvent()))
		assert.Equal(t, []string{"!one", "!three"}, sender.rooms())
	})

	t.Run("options failure", func(t *testing.T) {
		sender := &recordingSender{}
		d := NewDispatcher(staticWatches{"board1": {"!one", "!two", "!three"}}, fakeOptions{failRoom: "!one"}, sender)

		require.NoError(t, d.Dispatch(context.Background(), archivedEvent()))
		assert.Equal(t, []string{"!three", "!two"}, sender.rooms())
	})
}

func TestDispatchSkipsUnwatchedEvents(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(
		staticWatches{"board1": {"!one", "!two"}},
		fakeOptions{unwatched: map[string]bool{"!one": true}},
		sender,
	)

	require.NoError(t, d.Dispatch(context.Background(), archivedEvent()))
	assert.Equal(t, []string{"!two"}, sender.rooms())
}

func TestDispatchMissingTemplate(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(
		staticWatches{"board1": {"!home", "!elsewhere"}},
		fakeOptions{defaults: map[string]string{"!home": "board1"}},
		sender,
	)

	event := archivedEvent()
	event.BoardTemplate = ""
	require.NoError(t, d.Dispatch(context.Background(), event))
	assert.Equal(t, []string{"!home"}, sender.rooms())
}

func TestDispatchWithoutWatchers(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(staticWatches{}, fakeOptions{}, sender)
	require.NoError(t, d.Dispatch(context.Background(), archivedEvent()))
	assert.Empty(t, sender.sent)
}

func TestDispatchWatcherLookupFails(t *testing.T) {
	d := NewDispatcher(failingWatches{}, fakeOptions{}, &recordingSender{})
	assert.Error(t, d.Dispatch(context.Background(), archivedEvent()))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Alice moved Card from A to B", PlainText(`Alice moved <a href="x">Card</a> from A to B`))
	assert.Equal(t, "a < b", PlainText("a &lt; b"))
	assert.Equal(t, "line\nbreak", PlainText("line<br/>break"))
}
