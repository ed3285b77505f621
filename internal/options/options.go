package options

import (
	"maps"
	"slices"
)

// RoomOptions is the computed configuration of one room. Values handed out by
// Store are shared snapshots and must not be modified; use Clone.
type RoomOptions struct {
	DefaultBoardID string
	DefaultListID  string
	// DefaultListBoardID is the board the default list belongs to.
	DefaultListBoardID string
	BoardAliases       map[string]string
	ListAliases        map[string]string
	WatchedEvents      map[string][]string
}

func (o *RoomOptions) Clone() *RoomOptions {
	watched := make(map[string][]string, len(o.WatchedEvents))
	for boardID, names := range o.WatchedEvents {
		watched[boardID] = slices.Clone(names)
	}
	return &RoomOptions{
		DefaultBoardID:     o.DefaultBoardID,
		DefaultListID:      o.DefaultListID,
		DefaultListBoardID: o.DefaultListBoardID,
		BoardAliases:       cloneMap(o.BoardAliases),
		ListAliases:        cloneMap(o.ListAliases),
		WatchedEvents:      watched,
	}
}

// BoardForAlias returns the board holding alias.
func (o *RoomOptions) BoardForAlias(alias string) (string, bool) {
	for boardID, a := range o.BoardAliases {
		if a == alias {
			return boardID, true
		}
	}
	return "", false
}

// ListForAlias returns the list holding alias.
func (o *RoomOptions) ListForAlias(alias string) (string, bool) {
	for listID, a := range o.ListAliases {
		if a == alias {
			return listID, true
		}
	}
	return "", false
}

// trelloConfig is the persisted shape of the "trello" namespace.
type trelloConfig struct {
	DefaultBoardID     string              `json:"defaultBoardId,omitempty"`
	DefaultListID      string              `json:"defaultListId,omitempty"`
	DefaultListBoardID string              `json:"defaultListBoardId,omitempty"`
	BoardAliases       map[string]string   `json:"boardAliases"`
	ListAliases        map[string]string   `json:"listAliases"`
	WatchedEvents      map[string][]string `json:"watchedEvents"`
}

func (c *trelloConfig) normalize() {
	if c.BoardAliases == nil {
		c.BoardAliases = map[string]string{}
	}
	if c.ListAliases == nil {
		c.ListAliases = map[string]string{}
	}
	if c.WatchedEvents == nil {
		c.WatchedEvents = map[string][]string{}
	}
	if c.DefaultBoardID == "" || c.DefaultListBoardID != c.DefaultBoardID {
		c.DefaultListID = ""
		c.DefaultListBoardID = ""
	}
}

func (c trelloConfig) toOptions() *RoomOptions {
	return (&RoomOptions{
		DefaultBoardID:     c.DefaultBoardID,
		DefaultListID:      c.DefaultListID,
		DefaultListBoardID: c.DefaultListBoardID,
		BoardAliases:       c.BoardAliases,
		ListAliases:        c.ListAliases,
		WatchedEvents:      c.WatchedEvents,
	}).Clone()
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
