package domain

import "time"

const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusDeleted   = "deleted"
)

// PayloadEntry is one recipient's ciphertext. Group messages carry one entry
// per member at send time; direct messages carry a single entry for the
// recipient. All entries of a message share the message IV.
type PayloadEntry struct {
	UserID     string `bson:"user_id" json:"user_id"`
	Ciphertext string `bson:"ciphertext" json:"ciphertext"`
	AuthTag    string `bson:"auth_tag" json:"auth_tag"`
}

// Attachment is an opaque descriptor produced by the upload layer.
type Attachment struct {
	Type       string    `bson:"type" json:"type"`
	URL        string    `bson:"url" json:"url"`
	Key        string    `bson:"key" json:"key"`
	Name       string    `bson:"name" json:"name"`
	Size       int64     `bson:"size" json:"size"`
	MimeType   string    `bson:"mime_type" json:"mime_type"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

type Message struct {
	ID          string         `bson:"_id" json:"id"`
	SenderID    string         `bson:"sender_id" json:"sender_id"`
	RecipientID string         `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	GroupID     string         `bson:"group_id,omitempty" json:"group_id,omitempty"`
	IV          string         `bson:"iv" json:"iv"`
	Payloads    []PayloadEntry `bson:"payloads" json:"payloads"`
	Attachments []Attachment   `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Encrypted   bool           `bson:"encrypted" json:"encrypted"`

	SelfDestruct   bool       `bson:"self_destruct" json:"self_destruct"`
	SelfDestructAt *time.Time `bson:"self_destruct_at,omitempty" json:"self_destruct_at,omitempty"`

	ReadBy    []ReadReceipt `bson:"read_by" json:"read_by"`
	Status    string        `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	DeletedAt *time.Time    `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	// Content is filled on fetch after decryption. Never persisted.
	Content string `bson:"-" json:"content,omitempty"`
}

func (m *Message) IsDirect() bool { return m.RecipientID != "" }
func (m *Message) IsGroup() bool  { return m.GroupID != "" }

// PayloadFor returns the entry encrypted for the given user, if any.
func (m *Message) PayloadFor(userID string) (PayloadEntry, bool) {
	for _, p := range m.Payloads {
		if p.UserID == userID {
			return p, true
		}
	}
	return PayloadEntry{}, false
}
