package ledger

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
)

const (
	SequencePrincipal = 0
	SequenceFee       = 1
)

// Event is a canonical ledger entry. Events are values; use WithIdentifier to attach a stored id.
type Event struct {
	EventIdentifier string
	SequenceIndex   int
	Timestamp       TimestampMS
	Location        Location
	EventType       EventType
	EventSubtype    EventSubtype
	Asset           assets.Asset
	Balance         Balance
	Notes           string
	ExtraData       map[string]any
	Identifier      *int64
}

// WithIdentifier returns a copy carrying the persisted identifier.
func (e Event) WithIdentifier(id int64) Event {
	e.Identifier = &id
	return e
}

// HashID returns the hex keccak256 digest of s.
func HashID(s string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// EventIdentifier derives the grouping key for a movement. The exchange unique id wins when present.
func EventIdentifier(location Location, uniqueID string, ts TimestampMS, asset assets.Asset, amount decimal.Decimal) string {
	if uniqueID != "" {
		return HashID(string(location) + uniqueID)
	}
	return HashID(string(location) + strconv.FormatInt(int64(ts), 10) + asset.Identifier + amount.String())
}

// Movement describes a single exchange transfer before decomposition.
type Movement struct {
	Location  Location
	Type      EventType
	Timestamp TimestampMS
	Asset     assets.Asset
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	FeeAsset  assets.Asset
	UniqueID  string
	ExtraData map[string]any
}

// NewAssetMovement builds the principal event for a transfer.
func NewAssetMovement(m Movement) (Event, error) {
	amount := m.Amount.Abs()
	if amount.IsZero() {
		return Event{}, errs.Deserialization(string(m.Location), "asset movement with zero amount", nil)
	}
	subtype := EventSubtypeDepositAsset
	notes := fmt.Sprintf("Deposit %s %s to %s", amount.String(), m.Asset.Symbol, m.Location.DisplayName())
	switch m.Type {
	case EventTypeDeposit:
	case EventTypeWithdrawal:
		subtype = EventSubtypeRemoveAsset
		notes = fmt.Sprintf("Withdraw %s %s from %s", amount.String(), m.Asset.Symbol, m.Location.DisplayName())
	default:
		return Event{}, errs.Deserialization(string(m.Location), "unknown movement type "+string(m.Type), nil)
	}

	var extra map[string]any
	if len(m.ExtraData) > 0 {
		extra = make(map[string]any, len(m.ExtraData))
		for k, v := range m.ExtraData {
			extra[k] = v
		}
	}

	return Event{
		EventIdentifier: EventIdentifier(m.Location, m.UniqueID, m.Timestamp, m.Asset, amount),
		SequenceIndex:   SequencePrincipal,
		Timestamp:       m.Timestamp,
		Location:        m.Location,
		EventType:       m.Type,
		EventSubtype:    subtype,
		Asset:           m.Asset,
		Balance:         Balance{Amount: amount, USDValue: decimal.Zero},
		Notes:           notes,
		ExtraData:       extra,
	}, nil
}

// NewAssetMovementWithFee builds the principal event and, for a nonzero fee, a fee event sharing its identifier.
func NewAssetMovementWithFee(m Movement) ([]Event, error) {
	principal, err := NewAssetMovement(m)
	if err != nil {
		return nil, err
	}
	fee := m.Fee.Abs()
	if fee.IsZero() {
		return []Event{principal}, nil
	}
	feeAsset := m.FeeAsset
	if feeAsset.IsZero() {
		feeAsset = m.Asset
	}
	return []Event{principal, {
		EventIdentifier: principal.EventIdentifier,
		SequenceIndex:   SequenceFee,
		Timestamp:       m.Timestamp,
		Location:        m.Location,
		EventType:       m.Type,
		EventSubtype:    EventSubtypeFee,
		Asset:           feeAsset,
		Balance:         Balance{Amount: fee, USDValue: decimal.Zero},
		Notes:           fmt.Sprintf("Pay %s %s as %s %s fee", fee.String(), feeAsset.Symbol, m.Location.DisplayName(), m.Type.Lower()),
	}}, nil
}
