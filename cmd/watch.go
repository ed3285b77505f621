package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/chxlky/trello-matrix-bot/internal/resolver"
	"github.com/chxlky/trello-matrix-bot/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchRoomID string
	watchUserID string
)

var watchCmd = &cobra.Command{
	Use:   "watch <board>",
	Short: "Post a board's activity into a room",
	Long: `Registers a Trello webhook for the board and records that the room
watches it. The board is resolved the same way chat commands resolve it:
by ID, short URL, room alias or name prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatchCommand(cmd, args[0], (*watch.Service).Watch, "Watching")
	},
}

var unwatchCmd = &cobra.Command{
	Use:   "unwatch <board>",
	Short: "Stop posting a board's activity into a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatchCommand(cmd, args[0], (*watch.Service).Unwatch, "No longer watching")
	},
}

type watchFunc func(s *watch.Service, ctx context.Context, roomID, userID, boardRef string) (*models.Board, error)

func runWatchCommand(cmd *cobra.Command, boardRef string, fn watchFunc, verb string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	board, err := fn(a.watchService(), ctx, watchRoomID, watchUserID, boardRef)
	switch {
	case errors.Is(err, watch.ErrNoToken):
		return fmt.Errorf("%s has not linked a Trello account", watchUserID)
	case errors.Is(err, resolver.ErrNotFound):
		return fmt.Errorf("no board matches %q", boardRef)
	case err != nil:
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) in %s\n", verb, board.Name, board.URL, watchRoomID)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{watchCmd, unwatchCmd} {
		c.Flags().StringVar(&watchRoomID, "room", "", "Matrix room ID")
		c.Flags().StringVar(&watchUserID, "user", "", "Matrix user whose Trello token is used")
		_ = c.MarkFlagRequired("room")
		_ = c.MarkFlagRequired("user")
		rootCmd.AddCommand(c)
	}
}
