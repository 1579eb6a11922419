package chat

import (
	"context"
	"fmt"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/chitchat-dev/chitchat/internal/ai"
	"github.com/chitchat-dev/chitchat/internal/token"
)

// Store persists chats in sqlite. It is constructed explicitly and passed to
// whoever needs it; there is no package-level connection.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenStore opens (or creates) the database at path and ensures the schema.
func OpenStore(path string) (*Store, error) {
	// Cascade deletes depend on sqlite enforcing foreign keys.
	dsn := path + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st := NewStore(db)
	if err := st.EnsureSchema(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureSchema creates the three tables if absent. Safe to call repeatedly.
func (s *Store) EnsureSchema() error {
	if err := s.db.AutoMigrate(&ChatRow{}, &RequestRow{}, &MessageRow{}); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveChat inserts a chat row for the session and returns the assigned id.
func (s *Store) SaveChat(ctx context.Context, sess *Session) (int64, error) {
	row := ChatRow{
		Title:         sess.Title(),
		SystemMessage: sess.SystemMessage(),
		DateStarted:   sess.DateStarted(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("save chat: %w", err)
	}
	return row.ID, nil
}

// SaveRequest inserts the request row and its two message rows as one
// transaction.
func (s *Store) SaveRequest(ctx context.Context, chatID int64, req Request) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := RequestRow{
			ChatID:           chatID,
			Model:            req.Model,
			Timestamp:        req.Timestamp,
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			PresencePenalty:  req.PresencePenalty,
			FrequencyPenalty: req.FrequencyPenalty,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		msgs := []MessageRow{
			{RequestID: row.ID, Role: "user", Content: req.Prompt},
			{RequestID: row.ID, Role: "assistant", Content: req.Response},
		}
		return tx.Create(&msgs).Error
	})
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

func (s *Store) RenameChat(ctx context.Context, id int64, title string) error {
	res := s.db.WithContext(ctx).Model(&ChatRow{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("rename chat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChat removes the chat row; the request and message rows go with it
// via the cascade constraints.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&ChatRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete chat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ChatTitle is one entry of the chat list.
type ChatTitle struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ListChatTitles returns (id, title) pairs in ascending insertion order.
func (s *Store) ListChatTitles(ctx context.Context) ([]ChatTitle, error) {
	var titles []ChatTitle
	err := s.db.WithContext(ctx).
		Model(&ChatRow{}).
		Select("id", "title").
		Order("id ASC").
		Scan(&titles).Error
	if err != nil {
		return nil, fmt.Errorf("list chat titles: %w", err)
	}
	return titles, nil
}

// HistoryRow is one row of the full-history join. Request-derived fields are
// nil on the placeholder row of a chat with no requests.
type HistoryRow struct {
	ChatID           int64
	Title            string
	SystemMessage    string
	DateStarted      string
	Model            *string
	Prompt           *string
	Response         *string
	Timestamp        *string
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

const fullHistoryQuery = `
SELECT
	chats.id AS chat_id,
	chats.title AS title,
	chats.system_message AS system_message,
	chats.date_started AS date_started,
	requests.model AS model,
	prompts.content AS prompt,
	responses.content AS response,
	requests.timestamp AS timestamp,
	requests.temperature AS temperature,
	requests.top_p AS top_p,
	requests.presence_penalty AS presence_penalty,
	requests.frequency_penalty AS frequency_penalty
FROM chats
	LEFT JOIN requests ON chats.id = requests.chat_id
	LEFT JOIN (SELECT request_id, content FROM messages WHERE role = 'user') AS prompts
		ON requests.id = prompts.request_id
	LEFT JOIN (SELECT request_id, content FROM messages WHERE role = 'assistant') AS responses
		ON requests.id = responses.request_id
ORDER BY chats.id ASC, requests.id ASC`

// FetchFullHistory returns every chat joined with its turns, ordered by chat
// and then by request insertion. A chat with zero requests yields exactly one
// row with all request fields nil.
func (s *Store) FetchFullHistory(ctx context.Context) ([]HistoryRow, error) {
	var rows []HistoryRow
	if err := s.db.WithContext(ctx).Raw(fullHistoryQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch full history: %w", err)
	}
	return rows, nil
}

// RestoreSessions rebuilds sessions from full-history rows. Chats appear in
// the order their first row is seen; per-chat history follows row order.
// Placeholder rows (nil model) mark empty chats and produce no Request.
func RestoreSessions(rows []HistoryRow, provider ai.Provider, counter token.Counter) []*Session {
	var order []int64
	histories := make(map[int64][]Request)
	heads := make(map[int64]HistoryRow)

	for _, row := range rows {
		if _, seen := heads[row.ChatID]; !seen {
			heads[row.ChatID] = row
			order = append(order, row.ChatID)
		}
		if row.Model == nil {
			continue
		}
		req := Request{
			Model:            *row.Model,
			Temperature:      row.Temperature,
			TopP:             row.TopP,
			PresencePenalty:  row.PresencePenalty,
			FrequencyPenalty: row.FrequencyPenalty,
		}
		if row.Prompt != nil {
			req.Prompt = *row.Prompt
		}
		if row.Response != nil {
			req.Response = *row.Response
		}
		if row.Timestamp != nil {
			req.Timestamp = *row.Timestamp
		}
		histories[row.ChatID] = append(histories[row.ChatID], req)
	}

	sessions := make([]*Session, 0, len(order))
	for _, id := range order {
		head := heads[id]
		sessions = append(sessions, restoreSession(
			provider, counter,
			id, head.Title, head.SystemMessage, head.DateStarted,
			histories[id],
		))
	}
	return sessions
}
