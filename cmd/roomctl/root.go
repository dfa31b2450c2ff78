package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/api/handlers"
	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/transport"
)

const (
	urlFlag     = "url"
	apiFlag     = "api"
	tokenFlag   = "token"
	kindFlag    = "kind"
	orderFlag   = "order"
	eventFlag   = "event"
	verboseFlag = "verbose"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "roomctl",
	Short:         "Tails and writes chat rooms on a console-chat relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(viper.GetBool(verboseFlag))
	},
}

func init() {
	viper.SetEnvPrefix("ROOMCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String(urlFlag, "ws://localhost:8080/ws/chat", "relay websocket URL")
	flags.String(apiFlag, "http://localhost:8080", "relay REST base URL used for history")
	flags.String(tokenFlag, "", "viewer token, empty connects as a guest")
	flags.String(kindFlag, "community", "room kind: order, community, event or event-support")
	flags.String(orderFlag, "", "order id for order rooms")
	flags.String(eventFlag, "", "event id for event rooms")
	flags.BoolP(verboseFlag, "v", false, "log transport and session activity")

	for _, key := range []string{urlFlag, apiFlag, tokenFlag, kindFlag, orderFlag, eventFlag, verboseFlag} {
		bindPersistentFlag(key, rootCmd)
	}

	rootCmd.AddCommand(tailCmd, sendCmd)
}

// bindPersistentFlag binds key to the persistent flag of the same name
func bindPersistentFlag(key string, command *cobra.Command) {
	if err := viper.BindPFlag(key, command.PersistentFlags().Lookup(key)); err != nil {
		zap.S().Errorw("viper.BindPFlag failed", "key", key, "error", err)
	}
}

func initLogger(verbose bool) error {
	conf := zap.NewDevelopmentConfig()
	conf.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		conf.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := conf.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// descriptor reads the room flags
func descriptor() (chat.Descriptor, error) {
	kind, err := chat.ParseKind(viper.GetString(kindFlag))
	if err != nil {
		return chat.Descriptor{}, err
	}
	d := chat.Descriptor{
		Kind:    kind,
		OrderID: viper.GetString(orderFlag),
		EventID: viper.GetString(eventFlag),
	}
	if _, err := d.RoomID(); err != nil {
		return chat.Descriptor{}, err
	}
	return d, nil
}

// client is a connected session with its room entered
type client struct {
	conn    *transport.Conn
	session *chat.Session
	room    *chat.Room
}

// connect dials the relay, builds a session for the token's viewer and enters the
// room named by the flags
func connect(ctx context.Context, onUpdate func(s *chat.Session, roomID string)) (*client, error) {
	d, err := descriptor()
	if err != nil {
		return nil, err
	}
	token := viper.GetString(tokenFlag)
	viewer, err := api.PeekToken(token)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := transport.Dial(dialCtx, viper.GetString(urlFlag), transport.Options{
		Token:  token,
		Logger: zap.S().Named("transport"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to relay")
	}

	history := chat.HTTPHistory{BaseURL: viper.GetString(apiFlag), Token: token}
	session := chat.NewSession(conn, history, viewer, chat.Options{
		// the relay decides order ownership, the client only keeps guests out
		Authorizer: chat.Policy{Members: handlers.TrustedMembership{}},
		Logger:     zap.S().Named("session"),
	})
	if onUpdate != nil {
		session.OnUpdate(func(roomID string) { onUpdate(session, roomID) })
	}
	room, err := session.Enter(d)
	if err != nil {
		session.Close()
		conn.Close()
		return nil, err
	}
	return &client{conn: conn, session: session, room: room}, nil
}

func (c *client) Close() {
	c.session.Close()
	c.conn.Close()
}
