// Package database persists directory accounts and the append-only message
// log on the relay.
package database

import (
	"time"

	"gorm.io/gorm"
)

// User is a directory account. The private key is stored only sealed under the
// account password; the relay cannot read it.
type User struct {
	ID               uint   `gorm:"primaryKey"`
	Username         string `gorm:"uniqueIndex;not null"`
	PasswordHash     []byte `gorm:"not null"`
	PublicKeyPEM     []byte `gorm:"not null"`
	SealedPrivateKey []byte `gorm:"not null"`
	KeySalt          []byte `gorm:"not null"`
	Online           bool   `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// Message is one stored chat envelope. Rows are append-only; nothing updates
// them after insertion.
type Message struct {
	ID         uint   `gorm:"primaryKey"`
	ChatID     string `gorm:"index;not null"`
	Sender     string `gorm:"not null"`
	Ciphertext []byte `gorm:"not null"`
	Signature  []byte `gorm:"not null"`
	Scheme     string `gorm:"not null"`
	Timestamp  time.Time
	CreatedAt  time.Time
}
