package events

// Def names one kind of board activity a room can watch.
type Def struct {
	Name        string
	Description string
}

var (
	CardCreated    = Def{"cardCreated", "Fired when a new card has been created"}
	CardMoved      = Def{"cardMoved", "Fired when a card has been moved between lists"}
	CardArchived   = Def{"cardArchived", "Fired when a card has been archived"}
	CardRestored   = Def{"cardRestored", "Fired when a card has been restored from the archive"}
	CardDeleted    = Def{"cardDeleted", "Fired when a card has been deleted"}
	CardAssigned   = Def{"cardAssigned", "Fired when a user has been added to a card"}
	CardUnassigned = Def{"cardUnassigned", "Fired when a user has been removed from a card"}
	CardUpdated    = Def{"cardUpdated", "Fired when an unhandled update happens to a card"}
	CardCommented  = Def{"cardCommented", "Fired when a comment has been posted on a card"}
)

var catalog = []Def{
	CardCreated,
	CardMoved,
	CardArchived,
	CardRestored,
	CardDeleted,
	CardAssigned,
	CardUnassigned,
	CardUpdated,
	CardCommented,
}

var defaultWatched = []Def{
	CardCreated,
	CardMoved,
	CardArchived,
	CardRestored,
	CardDeleted,
	CardAssigned,
	CardUnassigned,
	CardUpdated,
	CardCommented,
}

// All returns the full catalog in display order. The slice is a copy.
func All() []Def {
	return append([]Def(nil), catalog...)
}

// DefaultWatched returns the events a room receives for a board before it
// configures anything for that board.
func DefaultWatched() []Def {
	return append([]Def(nil), defaultWatched...)
}

// DefaultWatchedNames is DefaultWatched reduced to event names.
func DefaultWatchedNames() []string {
	return Names(defaultWatched)
}

func Lookup(name string) (Def, bool) {
	for _, def := range catalog {
		if def.Name == name {
			return def, true
		}
	}
	return Def{}, false
}

func Names(defs []Def) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}
