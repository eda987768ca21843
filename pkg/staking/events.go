package staking

// Event is an engine notification, emitted after the originating mutation has
// been committed under the writer lock. Type doubles as the Pub/Sub channel
// suffix.
type Event interface {
	EventType() string
}

// EventSink receives engine events. Implementations must not block; slow
// consumers buffer on their side (see pkg/reporter).
type EventSink interface {
	Emit(Event)
}

type StakeEvent struct {
	Event   string `json:"event"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Balance uint64 `json:"balance"`
	Tier    Tier   `json:"tier"`
	At      uint64 `json:"at"`
}

func (StakeEvent) EventType() string { return "stake" }

type WithdrawRequestedEvent struct {
	Event       string `json:"event"`
	Address     string `json:"address"`
	RequestID   uint64 `json:"requestId"`
	Amount      uint64 `json:"amount"`
	At          uint64 `json:"at"`
	AvailableAt uint64 `json:"availableAt"`
}

func (WithdrawRequestedEvent) EventType() string { return "withdraw.requested" }

type WithdrawCompletedEvent struct {
	Event     string `json:"event"`
	Address   string `json:"address"`
	RequestID uint64 `json:"requestId"`
	Amount    uint64 `json:"amount"`
	At        uint64 `json:"at"`
}

func (WithdrawCompletedEvent) EventType() string { return "withdraw.completed" }

type TierChangedEvent struct {
	Event   string `json:"event"`
	Address string `json:"address"`
	From    Tier   `json:"fromTier"`
	To      Tier   `json:"toTier"`
	Rank    int    `json:"rank"`
	At      uint64 `json:"at"`
}

func (TierChangedEvent) EventType() string { return "tier.changed" }

type RateChangedEvent struct {
	Event string `json:"event"`
	Tier  Tier   `json:"tier"`
	Rate  uint64 `json:"rate"`
	At    uint64 `json:"at"`
}

func (RateChangedEvent) EventType() string { return "rate.changed" }

type ThresholdChangedEvent struct {
	Event     string `json:"event"`
	Threshold uint64 `json:"threshold"`
	At        uint64 `json:"at"`
}

func (ThresholdChangedEvent) EventType() string { return "threshold.changed" }

type InterestClaimedEvent struct {
	Event   string `json:"event"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	At      uint64 `json:"at"`
}

func (InterestClaimedEvent) EventType() string { return "interest.claimed" }

type InterestCompoundedEvent struct {
	Event   string `json:"event"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Balance uint64 `json:"balance"`
	At      uint64 `json:"at"`
}

func (InterestCompoundedEvent) EventType() string { return "interest.compounded" }

// Channel returns the Redis Pub/Sub channel for an event type.
// Channel format: tiervault:{eventType}
func Channel(eventType string) string {
	return "tiervault:" + eventType
}
