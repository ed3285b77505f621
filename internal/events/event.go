package events

import (
	"html"
	"regexp"

	"github.com/chxlky/trello-matrix-bot/internal/models"
)

// Event is one classified webhook delivery. Template omits the board name and
// is used in rooms whose default board is the event's board; BoardTemplate
// names the board.
type Event struct {
	Board         models.Board
	Def           Def
	Template      string
	BoardTemplate string
	Variables     map[string]string
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render fills {name} placeholders in template from vars. Values are HTML
// escaped; unknown placeholders render as empty.
func Render(template string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		return html.EscapeString(vars[name])
	})
}
