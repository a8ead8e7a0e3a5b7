package types

import (
	"time"
)

// Subscriber is one browser installation registered for push, keyed by its
// push token. UserID is informational only; nothing cascades from accounts.
type Subscriber struct {
	PushToken  string    `gorm:"primaryKey" json:"push_token"`
	UserID     *string   `json:"user_id,omitempty"`
	City       *string   `gorm:"index" json:"city,omitempty"`
	Categories []string  `gorm:"type:text;serializer:json" json:"category,omitempty"`
	Endpoint   string    `json:"-"`
	P256DH     string    `gorm:"column:p256dh" json:"-"`
	Auth       string    `json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "push_subscribers"
}

// CanReceive reports whether the record carries enough to deliver a web push.
func (s Subscriber) CanReceive() bool {
	return s.Endpoint != "" && s.P256DH != "" && s.Auth != ""
}

func (s Subscriber) InCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Profile is the optional data a client attaches when subscribing.
type Profile struct {
	UserID     string   `json:"user_id" form:"user_id"`
	City       string   `json:"city" form:"city"`
	Categories []string `json:"category" form:"category"`
}

func (p Profile) Apply(s Subscriber) Subscriber {
	if p.UserID != "" {
		u := p.UserID
		s.UserID = &u
	}
	if p.City != "" {
		c := p.City
		s.City = &c
	}
	if len(p.Categories) > 0 {
		s.Categories = append([]string(nil), p.Categories...)
	}
	return s
}
