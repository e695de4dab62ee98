package domain

import "time"

// User carries the per-user symmetric key used to encrypt messages addressed
// to this user. The key is generated once at account creation and never
// rotated here.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	EncKeyHex string    `bson:"enc_key" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
