// Package monitor implements the channel-monitoring pipeline: update
// ingestion and filtering, content classification, forward formatting, and
// the twice-daily report scheduler.
package monitor

import "time"

// Update is the transport-neutral shape of one inbound chat message.
type Update struct {
	ChatID         string
	ChatTitle      string
	ChatUsername   string // without leading @, empty for private channels
	SenderID       string
	SenderUsername string
	SenderName     string
	MessageID      int64
	Text           string
	HasMedia       bool
	MediaType      string // photo, document, webpage, other
	Timestamp      time.Time
}

// Outcome is the pipeline verdict for one update.
type Outcome int

const (
	// Drop means no forward and no cache write.
	Drop Outcome = iota
	// ForwardNormal forwards to the default destination.
	ForwardNormal
	// ForwardVIP forwards to the VIP destination.
	ForwardVIP
	// CacheOnly skips the forward but still feeds the report cache.
	CacheOnly
)

func (o Outcome) String() string {
	switch o {
	case Drop:
		return "drop"
	case ForwardNormal:
		return "forward-normal"
	case ForwardVIP:
		return "forward-vip"
	case CacheOnly:
		return "cache-only"
	default:
		return "unknown"
	}
}

// Decision is the full pipeline result for one update.
type Decision struct {
	Outcome Outcome
	Reason  string // which guard decided, for the log
	Target  string // destination channel for forward outcomes
	Cache   bool   // whether the report-cache side effect applies
	VIP     bool
}
