package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

var (
	watchAddr string
	watchKeep bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <sessionId>",
	Short: "Print a session's live feed",
	Long: `Connect to a running server's live feed for one session and print
every message and lifecycle event as it happens. Stops when the session
ends unless --keep is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "http://localhost:8080", "server base URL")
	watchCmd.Flags().BoolVar(&watchKeep, "keep", false, "keep watching after the session ends")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	streamURL, err := streamURL(watchAddr, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s...\n", streamURL)
	client, err := NewWatchClient(ctx, streamURL)
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	err = client.ReadEvents(cmd.OutOrStdout(), !watchKeep)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// streamURL maps a server base URL to the session's WebSocket endpoint.
func streamURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in server address", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ai/sessions/" + url.PathEscape(sessionID) + "/stream"
	return u.String(), nil
}

// WatchClient reads a session's live feed.
type WatchClient struct {
	conn *websocket.Conn
}

// NewWatchClient dials the feed at addr.
func NewWatchClient(ctx context.Context, addr string) (*WatchClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, addr, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &WatchClient{conn: conn}, nil
}

// Close closes the client connection.
func (c *WatchClient) Close() error {
	return c.conn.Close()
}

// ReadEvents prints each frame to out until the connection closes, or
// until the session ends when stopOnEnd is set.
func (c *WatchClient) ReadEvents(out io.Writer, stopOnEnd bool) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var event domain.StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Fprintf(out, "[unparsed] %s\n", data)
			continue
		}
		fmt.Fprintln(out, formatEvent(event))

		if stopOnEnd && event.Type == domain.StreamEventSessionEnded {
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}

func formatEvent(event domain.StreamEvent) string {
	ts := time.UnixMilli(event.Ts).Format(time.TimeOnly)
	if event.Message == nil {
		return fmt.Sprintf("%s [%s] %s", ts, event.Type, event.SessionID)
	}
	return fmt.Sprintf("%s [%s] %s (%s): %s", ts, event.Type, event.Message.ID, event.Message.Type, event.Message.Content)
}
