package domain

import "time"

type Group struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name,omitempty" json:"name,omitempty"`
	Members      []string  `bson:"members" json:"members"`
	Admins       []string  `bson:"admins" json:"admins"`
	MessageCount int64     `bson:"message_count" json:"message_count"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (g *Group) IsAdmin(userID string) bool {
	for _, a := range g.Admins {
		if a == userID {
			return true
		}
	}
	return false
}
