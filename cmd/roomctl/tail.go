package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/darkconsole/console-chat/chat"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Prints the history of a room and then its live messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd.OutOrStdout())
		c, err := connect(cmd.Context(), func(s *chat.Session, roomID string) {
			p.update(s.Messages(roomID))
		})
		if err != nil {
			return err
		}
		defer c.Close()
		cmd.PrintErrf("tailing %s as %s, ctrl-c to stop\n", c.room.ID, viewerLabel(c.session))

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func viewerLabel(s *chat.Session) string {
	v := s.Viewer()
	switch {
	case v.Anonymous():
		return "guest"
	case v.Privileged:
		return v.DisplayName + " (staff)"
	default:
		return v.DisplayName
	}
}
