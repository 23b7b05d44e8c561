package domain

import (
	cryptoRand "crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// OrderIntent is a request to open a new position.
type OrderIntent struct {
	Symbol     string
	Side       PositionSide
	Size       float64
	EntryPrice float64 // Reference price used to derive the protective levels
	StopLoss   float64
	TakeProfit float64
}

// IntentStatus tracks what happened to a stop-modification intent.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentApplied  IntentStatus = "applied"
	IntentRejected IntentStatus = "rejected"
)

// StopIntent is a request to tighten the protective stop of an open position.
type StopIntent struct {
	ID         string
	PositionID string
	Symbol     string
	Side       PositionSide
	Size       float64
	OldStop    float64
	NewStop    float64
	Price      float64 // Price the candidate was computed from
	CreatedAt  time.Time
	Status     IntentStatus
	Reason     string // Rejection reason, if any
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(cryptoRand.Reader, 0)
)

// NewIntentID returns a time-sortable identifier for an intent.
func NewIntentID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), idEntropy).String()
}
