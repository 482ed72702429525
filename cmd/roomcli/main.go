// roomcli joins a voice room from the terminal: it drives the same session
// controller the room page uses, prints roster updates, and maps keys to
// mic toggle and leave.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yahabaat/voiceroom/internal/app"
	"github.com/yahabaat/voiceroom/internal/domain"
	"github.com/yahabaat/voiceroom/internal/presence"
	"github.com/yahabaat/voiceroom/internal/token"
	"github.com/yahabaat/voiceroom/internal/transport"
)

var (
	flagServerURL string
	flagTokenURL  string
	flagRedisAddr string
	flagRoom      string
	flagRoomID    string
	flagIdentity  string
	flagAudio     string
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	root := &cobra.Command{
		Use:   "roomcli",
		Short: "terminal client for voiceroom",
	}

	join := &cobra.Command{
		Use:   "join",
		Short: "join a voice room",
		RunE:  runJoin,
	}
	join.Flags().StringVar(&flagServerURL, "server", "ws://localhost:7880", "media server url")
	join.Flags().StringVar(&flagTokenURL, "token-url", "http://localhost:8080/token", "token endpoint")
	join.Flags().StringVar(&flagRedisAddr, "redis", "localhost:6379", "presence store address")
	join.Flags().StringVar(&flagRoom, "room", "", "room name")
	join.Flags().StringVar(&flagRoomID, "room-id", "", "room id for presence (defaults to room name)")
	join.Flags().StringVar(&flagIdentity, "identity", "", "display name")
	join.Flags().StringVar(&flagAudio, "audio", "", "ogg file published as the microphone")
	root.AddCommand(join)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runJoin(cmd *cobra.Command, args []string) error {
	if flagRoom == "" || flagIdentity == "" {
		return fmt.Errorf("--room and --identity are required")
	}
	roomID := flagRoomID
	if roomID == "" {
		roomID = flagRoom
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: flagRedisAddr})
	defer rdb.Close()

	ctl := app.NewController(app.Options{
		ServerURL: flagServerURL,
		Tokens:    token.NewClient(flagTokenURL),
		Dialer:    &transport.LiveKitDialer{MicPath: flagAudio},
		Sinks:     transport.DiscardSinks,
		Presence:  presence.NewStore(rdb),
	})
	ctl.Subscribe(printRoster)

	room := domain.Room{ID: domain.RoomID(roomID), Name: domain.RoomName(flagRoom)}
	if err := ctl.Join(ctx, domain.Identity(flagIdentity), room); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	defer ctl.Leave()

	fmt.Printf("joined %q as %q — [m] toggle mic, [q] leave\n", flagRoom, flagIdentity)

	keys := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			keys <- strings.TrimSpace(scanner.Text())
		}
		close(keys)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			switch key {
			case "m":
				muted := ctl.ToggleMic()
				if muted {
					fmt.Println("mic muted")
				} else {
					fmt.Println("mic live")
				}
			case "q":
				return nil
			}
		}
	}
}

func printRoster(view domain.RosterView) {
	var b strings.Builder
	for i, p := range view.Participants {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(p.Identity))
		if p.IsLocal {
			b.WriteString(" (you)")
		}
		if p.IsMuted {
			b.WriteString(" [muted]")
		}
		if p.IsSpeaking {
			b.WriteString(" *speaking*")
		}
	}
	fmt.Printf("roster (%d online): %s\n", view.OnlineCount, b.String())
}
