package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the gorm handle with the queries the relay needs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a new directory account.
func (s *Store) CreateUser(u *User) error {
	if err := s.db.Create(u).Error; err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

// UserByName looks up an account by username.
func (s *Store) UserByName(username string) (*User, error) {
	var u User
	err := s.db.Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", username, err)
	}
	return &u, nil
}

// UserExists reports whether username is already registered.
func (s *Store) UserExists(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count user %s: %w", username, err)
	}
	return count > 0, nil
}

// SetOnline flips an account's presence flag.
func (s *Store) SetOnline(username string, online bool) error {
	if err := s.db.Model(&User{}).Where("username = ?", username).Update("online", online).Error; err != nil {
		return fmt.Errorf("set online %s=%t: %w", username, online, err)
	}
	return nil
}

// OnlineUsers returns the usernames currently flagged online.
func (s *Store) OnlineUsers() ([]string, error) {
	var names []string
	if err := s.db.Model(&User{}).Where("online = ?", true).Order("username").Pluck("username", &names).Error; err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	return names, nil
}

// SaveMessage appends one envelope to the message log.
func (s *Store) SaveMessage(m *Message) error {
	if err := s.db.Create(m).Error; err != nil {
		return fmt.Errorf("save message for chat %s: %w", m.ChatID, err)
	}
	return nil
}

// MessagesByChat returns a chat's stored envelopes in insertion order.
func (s *Store) MessagesByChat(chatID string) ([]Message, error) {
	var msgs []Message
	if err := s.db.Where("chat_id = ?", chatID).Order("id").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages for chat %s: %w", chatID, err)
	}
	return msgs, nil
}
