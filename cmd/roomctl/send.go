package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darkconsole/console-chat/chat"
)

const (
	textFlag    = "text"
	imageFlag   = "image"
	timeoutFlag = "timeout"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sends one message to a room and waits for the relay to echo it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		attachment, err := readImage(viper.GetString(imageFlag))
		if err != nil {
			return err
		}

		updates := make(chan struct{}, 1)
		c, err := connect(cmd.Context(), func(*chat.Session, string) {
			select {
			case updates <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer c.Close()

		draft := &chat.Draft{}
		draft.Set(viper.GetString(textFlag), attachment, nil)
		env, err := c.session.Send(c.room.ID, draft)
		if err != nil {
			return err
		}

		deadline := time.After(viper.GetDuration(timeoutFlag))
		for {
			if m, ok := findEcho(c.session.Messages(c.room.ID), env.ClientID); ok {
				fmt.Fprintln(cmd.OutOrStdout(), formatView(m))
				return nil
			}
			select {
			case <-updates:
			case <-deadline:
				return errors.Errorf("no echo for message %s", env.ClientID)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
	},
}

func init() {
	sendCmd.Flags().String(textFlag, "", "message text")
	sendCmd.Flags().String(imageFlag, "", "path of an image to attach")
	sendCmd.Flags().Duration(timeoutFlag, 10*time.Second, "how long to wait for the echo")
	for _, key := range []string{textFlag, imageFlag, timeoutFlag} {
		if err := viper.BindPFlag(key, sendCmd.Flags().Lookup(key)); err != nil {
			panic(err)
		}
	}
}

func findEcho(views []chat.View, clientID string) (chat.View, bool) {
	for _, v := range views {
		if v.ClientID == clientID && v.ID != "" {
			return v, true
		}
	}
	return chat.View{}, false
}

// readImage encodes the file at path as a data URI
func readImage(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read image")
	}
	return "data:" + http.DetectContentType(b) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
