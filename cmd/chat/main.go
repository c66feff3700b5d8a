package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-client/internal/config"
	"chat-client/internal/database"
	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/session"
	"chat-client/internal/transport"
	"chat-client/internal/transport/loopback"
	"chat-client/internal/transport/natsbridge"
	"chat-client/internal/transport/ws"
	"chat-client/pkg/logger"
)

func main() {
	league := flag.String("league", "", "logical league id of the room to join")
	flag.Parse()
	if *league == "" {
		logger.Fatal("-league is required")
	}

	// Load configuration
	cfg := config.Load()

	ident, err := identity.FromToken(cfg.Session.Token, cfg.Session.Secret)
	if err != nil {
		logger.Fatal("Failed to read session identity: %v", err)
	}
	logger.Info("Signed in as %s (%s)", ident.DisplayName, ident.MemberID)

	// Initialize database
	db, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	tr, cleanup, err := newTransport(cfg)
	if err != nil {
		logger.Fatal("Failed to set up transport: %v", err)
	}
	defer cleanup()

	ctrl := session.NewController(db, tr, ident, cfg.Chat.MaxMessageLength)

	ctx := context.Background()
	sess, err := ctrl.Enter(ctx, *league)
	if err != nil {
		logger.Fatal("Failed to enter room: %v", err)
	}
	defer sess.Leave()
	if sess.Degraded() {
		logger.Error("Realtime channel unavailable; running local-only until restart")
	}

	printedID := printHistory(sess)
	unsubscribe := sess.Subscribe(func() {
		if msg, ok := latestConfirmed(sess.CurrentState(), printedID); ok {
			printedID = msg.ID
			printMessage(msg.AuthorName, msg.Body, msg.ID)
		}
	})
	defer unsubscribe()

	// Leave cleanly on interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		sess.Leave()
		os.Exit(0)
	}()

	readLoop(ctx, sess)
}

func newStore(cfg *config.Config) (database.Store, error) {
	// "memory" keeps everything in process, for demos without Postgres.
	if cfg.Database.URL == "memory" {
		return database.NewMemoryDB(), nil
	}
	return database.NewPostgresDB(cfg.Database.URL)
}

func newTransport(cfg *config.Config) (transport.Transport, func(), error) {
	switch cfg.Transport.Kind {
	case "nats":
		tr, err := natsbridge.Dial(cfg.Transport.URL, cfg.Transport.HeartbeatInterval)
		if err != nil {
			return nil, nil, err
		}
		return tr, tr.Close, nil
	case "ws":
		return ws.New(cfg.Transport.URL), func() {}, nil
	case "memory":
		// Single-process loopback, for demos without a relay or NATS.
		return loopback.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

func readLoop(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/quit":
			return
		case line == "/online":
			snap := sess.CurrentState()
			fmt.Printf("online (%d): %s\n", len(snap.Online), strings.Join(snap.Online, ", "))
		case strings.HasPrefix(line, "/react "):
			parts := strings.Fields(line)
			if len(parts) != 3 {
				fmt.Println("usage: /react <message-id> <emoji>")
				continue
			}
			if err := sess.ToggleReaction(ctx, parts[1], parts[2]); err != nil {
				logger.Error("Reaction failed: %v", err)
			}
		default:
			if err := sess.Send(ctx, line); err != nil {
				logger.Error("Send failed: %v", err)
			}
		}
	}
}

// printHistory renders the hydrated backlog and returns the id of the
// last message so the live printer does not repeat it.
func printHistory(sess *session.Session) string {
	snap := sess.CurrentState()
	for _, msg := range snap.Messages {
		printMessage(msg.AuthorName, msg.Body, msg.ID)
	}
	fmt.Printf("-- %d members, %d online --\n", len(snap.Members), len(snap.Online))
	if len(snap.Messages) == 0 {
		return ""
	}
	return snap.Messages[len(snap.Messages)-1].ID
}

// latestConfirmed picks the newest confirmed message out of a state
// change, skipping notifications that only touched presence or
// reactions and the provisional entry of an in-flight send.
func latestConfirmed(snap models.Snapshot, printedID string) (models.Message, bool) {
	if len(snap.Messages) == 0 {
		return models.Message{}, false
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Provisional() || last.ID == printedID {
		return models.Message{}, false
	}
	return last, true
}

func printMessage(author, body, id string) {
	fmt.Printf("[%s] %s  (%s)\n", author, body, id)
}
