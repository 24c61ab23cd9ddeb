package refreshtoken

import "time"

// RefreshTokenRecord is the durable record of every refresh token ever
// issued. Only the sha256 hash of the raw token is stored. Records are
// revoked, never deleted, so replayed tokens remain auditable.
type RefreshTokenRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"user_id" gorm:"not null;index;size:36"`
	TokenHash  string    `json:"-" gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	Revoked    bool      `json:"revoked" gorm:"not null;default:false;index"`
	DeviceInfo string    `json:"device_info" gorm:"size:500"`
	IPAddress  string    `json:"ip_address" gorm:"size:45"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (RefreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// SessionMeta is optional device/IP metadata captured at issuance.
type SessionMeta struct {
	DeviceInfo string
	IPAddress  string
}

// IssuedToken carries a freshly minted refresh token back to the caller. Raw
// is the only copy of the plaintext token that will ever exist server-side.
type IssuedToken struct {
	Raw       string
	JTI       string
	ExpiresAt time.Time
}
