package coinbasepro

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/observability"
)

const movementFailure = "Failed to deserialize a Coinbasepro deposit/withdrawal. Check logs for details. Ignoring it."

// Window is a closed interval of millisecond timestamps.
type Window struct {
	Start ledger.TimestampMS
	End   ledger.TimestampMS
}

// Contains reports whether ts lies within [Start, End].
func (w Window) Contains(ts ledger.TimestampMS) bool {
	return ts >= w.Start && ts <= w.End
}

type transferRecord struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AccountID   string          `json:"account_id"`
	Amount      string          `json:"amount"`
	CompletedAt *string         `json:"completed_at"`
	CanceledAt  *string         `json:"canceled_at"`
	Details     transferDetails `json:"details"`
}

type transferDetails struct {
	CryptoAddress         *string `json:"crypto_address"`
	SentToAddress         *string `json:"sent_to_address"`
	CryptoTransactionHash *string `json:"crypto_transaction_hash"`
	Fee                   *string `json:"fee"`
}

func parseTransferType(raw string) (ledger.EventType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deposit", "internal_deposit":
		return ledger.EventTypeDeposit, nil
	case "withdraw", "withdrawal", "internal_withdraw":
		return ledger.EventTypeWithdrawal, nil
	default:
		return "", errs.Deserialization(coinbaseproMetadata.identifier, "unknown transfer type "+raw, nil)
	}
}

// NormalizeMovements converts raw transfers into ledger events. Input order is kept. Pending and
// canceled transfers, and those outside window, are dropped without a diagnostic.
func NormalizeMovements(raw []json.RawMessage, directory map[string]assets.Asset, window Window) ([]ledger.Event, []ledger.Diagnostic) {
	var (
		events []ledger.Event
		diags  []ledger.Diagnostic
	)
	for _, item := range raw {
		produced, diag, ok := normalizeTransfer(item, directory, window)
		if !ok {
			diags = append(diags, diag)
			continue
		}
		events = append(events, produced...)
	}
	return events, diags
}

// normalizeTransfer returns ok=false only with a diagnostic to record.
func normalizeTransfer(item json.RawMessage, directory map[string]assets.Asset, window Window) ([]ledger.Event, ledger.Diagnostic, bool) {
	fail := func(err error) ([]ledger.Event, ledger.Diagnostic, bool) {
		return nil, ledger.Failure(movementFailure, string(item), err), false
	}

	var record transferRecord
	if err := json.Unmarshal(item, &record); err != nil {
		return fail(errs.Deserialization(coinbaseproMetadata.identifier, "decode transfer", err))
	}
	if record.CanceledAt != nil && *record.CanceledAt != "" {
		observability.Log().Debug("skipping canceled coinbasepro transfer", observability.F("id", record.ID))
		return nil, ledger.Diagnostic{}, true
	}
	if record.CompletedAt == nil || *record.CompletedAt == "" {
		observability.Log().Debug("skipping pending coinbasepro transfer", observability.F("id", record.ID))
		return nil, ledger.Diagnostic{}, true
	}
	completed, err := parseTimestamp(*record.CompletedAt)
	if err != nil {
		return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid completed_at", err))
	}
	ts := ledger.FromTime(completed)
	if !window.Contains(ts) {
		return nil, ledger.Diagnostic{}, true
	}

	required := [...]struct{ key, value string }{
		{"id", record.ID},
		{"type", record.Type},
		{"account_id", record.AccountID},
		{"amount", record.Amount},
	}
	for _, field := range required {
		if field.value == "" {
			return fail(errs.MissingKey(coinbaseproMetadata.identifier, field.key))
		}
	}
	eventType, err := parseTransferType(record.Type)
	if err != nil {
		return fail(err)
	}
	amount, err := decimal.NewFromString(record.Amount)
	if err != nil {
		return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid amount "+record.Amount, err))
	}

	asset, ok := directory[record.AccountID]
	if !ok {
		return nil, ledger.Warning(
			"Skipping coinbase pro asset movement due to inability to match account id "+record.AccountID+" to an asset",
			string(item)), false
	}

	var address string
	fee := decimal.Zero
	switch eventType {
	case ledger.EventTypeDeposit:
		address = deref(record.Details.CryptoAddress)
	case ledger.EventTypeWithdrawal:
		address = deref(record.Details.SentToAddress)
		if raw := deref(record.Details.Fee); raw != "" {
			fee, err = decimal.NewFromString(raw)
			if err != nil {
				return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid fee "+raw, err))
			}
		}
	}
	txID := deref(record.Details.CryptoTransactionHash)
	if txID != "" && asset.IsEthereumFamily() && !strings.HasPrefix(txID, "0x") {
		txID = "0x" + txID
	}

	extra := map[string]any{}
	if address != "" {
		extra["address"] = address
	}
	if txID != "" {
		extra["transaction_id"] = txID
	}

	events, err := ledger.NewAssetMovementWithFee(ledger.Movement{
		Location:  coinbaseproMetadata.location,
		Type:      eventType,
		Timestamp: ts,
		Asset:     asset,
		Amount:    amount,
		Fee:       fee,
		FeeAsset:  asset,
		UniqueID:  record.ID,
		ExtraData: extra,
	})
	if err != nil {
		return fail(err)
	}
	return events, ledger.Diagnostic{}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
