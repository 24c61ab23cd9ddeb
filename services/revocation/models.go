package revocation

import "time"

// RevokedToken is the durable mirror of token-level cache entries. It exists
// so individually revoked tokens survive a cache flush; user-level markers
// are best-effort cache values only and are not mirrored.
type RevokedToken struct {
	JTI       string    `json:"jti" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id" gorm:"index;size:36"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}
