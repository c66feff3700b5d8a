package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-client/internal/models"
	"chat-client/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Room Repository Implementation
func (db *PostgresDB) FindRoomByLeague(ctx context.Context, leagueID string) (*models.Room, error) {
	query := `SELECT id, league_id, created_at FROM rooms WHERE league_id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, leagueID).Scan(
		&room.ID, &room.LeagueID, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) CreateRoom(ctx context.Context, leagueID string) (*models.Room, error) {
	query := `
		INSERT INTO rooms (league_id, created_at)
		VALUES ($1, NOW())
		RETURNING id, league_id, created_at`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, leagueID).Scan(
		&room.ID, &room.LeagueID, &room.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateRoom
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

// Membership Repository Implementation
func (db *PostgresDB) EnsureMembership(ctx context.Context, roomID string, member *models.Member) error {
	query := `
		INSERT INTO room_members (room_id, member_id, display_name, avatar_url, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (room_id, member_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, roomID, member.ID, member.DisplayName, member.AvatarURL)
	return err
}

func (db *PostgresDB) ListMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	query := `
		SELECT member_id, display_name, COALESCE(avatar_url, '')
		FROM room_members
		WHERE room_id = $1
		ORDER BY display_name`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.DisplayName, &member.AvatarURL); err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (room_id, author_id, author_name, avatar_url, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, seq, created_at`

	stored := &models.Message{
		RoomID:     msg.RoomID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		AvatarURL:  msg.AvatarURL,
		Body:       msg.Body,
	}
	err := db.pool.QueryRow(ctx, query,
		msg.RoomID, msg.AuthorID, msg.AuthorName, msg.AvatarURL, msg.Body,
	).Scan(&stored.ID, &stored.Seq, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return stored, nil
}

func (db *PostgresDB) ListMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	// Reactions are joined in so the first render never shows a
	// reaction-less flash.
	query := `
		SELECT m.id, m.room_id, m.author_id, m.author_name, COALESCE(m.avatar_url, ''),
		       m.body, m.created_at, m.seq,
		       r.id, r.member_id, r.emoji, r.created_at
		FROM messages m
		LEFT JOIN reactions r ON r.message_id = m.id
		WHERE m.room_id = $1
		ORDER BY m.created_at, m.seq, r.created_at`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	var current *models.Message
	for rows.Next() {
		msg := &models.Message{}
		var reactionID, reactionMember, reactionEmoji *string
		var reactionAt *time.Time
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.AvatarURL,
			&msg.Body, &msg.CreatedAt, &msg.Seq,
			&reactionID, &reactionMember, &reactionEmoji, &reactionAt,
		); err != nil {
			return nil, err
		}

		if current == nil || current.ID != msg.ID {
			current = msg
			messages = append(messages, current)
		}
		if reactionID != nil {
			current.Reactions = append(current.Reactions, models.Reaction{
				ID:        *reactionID,
				MessageID: current.ID,
				MemberID:  *reactionMember,
				Emoji:     *reactionEmoji,
				CreatedAt: *reactionAt,
			})
		}
	}

	return messages, rows.Err()
}

// Reaction Repository Implementation
func (db *PostgresDB) InsertReaction(ctx context.Context, reaction *models.Reaction) (*models.Reaction, error) {
	query := `
		INSERT INTO reactions (message_id, member_id, emoji, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (message_id, member_id, emoji) DO UPDATE SET emoji = EXCLUDED.emoji
		RETURNING id, message_id, member_id, emoji, created_at`

	stored := &models.Reaction{}
	err := db.pool.QueryRow(ctx, query,
		reaction.MessageID, reaction.MemberID, reaction.Emoji,
	).Scan(&stored.ID, &stored.MessageID, &stored.MemberID, &stored.Emoji, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reaction: %w", err)
	}

	return stored, nil
}

func (db *PostgresDB) DeleteReaction(ctx context.Context, messageID, memberID, emoji string) error {
	query := `DELETE FROM reactions WHERE message_id = $1 AND member_id = $2 AND emoji = $3`
	_, err := db.pool.Exec(ctx, query, messageID, memberID, emoji)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
