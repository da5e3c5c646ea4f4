package model

import (
	"time"
)

type EventType string

const (
	EventPurchase        EventType = "purchase"
	EventWhitelisted     EventType = "whitelisted"
	EventPresaler        EventType = "presaler_registered"
	EventPostsalerAdded  EventType = "postsaler_added"
	EventFinalized       EventType = "finalized"
	EventClaimed         EventType = "postsaler_claimed"
	EventVestingReleased EventType = "vesting_released"
	EventVestingRevoked  EventType = "vesting_revoked"
)

// SaleEvent records one committed sale operation.
type SaleEvent struct {
	ID        string            `json:"id" gorm:"primaryKey;type:text"`
	Type      EventType         `json:"type" gorm:"type:text;index:idx_sale_events_type_created,priority:1"`
	RequestID string            `json:"request_id,omitempty" gorm:"type:text"`
	Actor     string            `json:"actor" gorm:"type:text"`
	Subject   string            `json:"subject" gorm:"type:text;index"`
	Phase     string            `json:"phase,omitempty" gorm:"type:text"`
	Amount    string            `json:"amount,omitempty" gorm:"type:text"` // ether contributed
	Tokens    string            `json:"tokens,omitempty" gorm:"type:text"` // tokens moved
	Details   map[string]string `json:"details,omitempty" gorm:"serializer:json"`
	CreatedAt time.Time         `json:"created_at" gorm:"index:idx_sale_events_type_created,priority:2"`
}

func (SaleEvent) TableName() string { return "sale_events" }

// EventFilter narrows event listings. Zero fields match everything.
type EventFilter struct {
	Type    EventType
	Subject string
	From    *time.Time
	To      *time.Time
	Limit   int
}

func (f EventFilter) Match(e *SaleEvent) bool {
	if e == nil {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
