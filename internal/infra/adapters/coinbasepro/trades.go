package coinbasepro

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
)

const tradeFailure = "Failed to deserialize a coinbasepro trade. Check logs for details. Ignoring it."

var fillColumns = []string{
	"created at", "product", "side", "size", "price", "fee", "price/fee/total unit", "trade id",
}

type fillRow map[string]string

func (r fillRow) get(key string) (string, error) {
	v, ok := r[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", errs.MissingKey(coinbaseproMetadata.identifier, key)
	}
	return strings.TrimSpace(v), nil
}

func (r fillRow) String() string {
	parts := make([]string, 0, len(fillColumns))
	for _, c := range fillColumns {
		parts = append(parts, c+"="+r[c])
	}
	return strings.Join(parts, ", ")
}

// readTrades parses a fills report. Rows that cannot be converted become diagnostics.
func readTrades(path string, resolver assets.Resolver) ([]ledger.Trade, []ledger.Diagnostic) {
	file, err := os.Open(path)
	if err != nil {
		return nil, []ledger.Diagnostic{ledger.Failure("Failed to open a coinbasepro fills report", path, err)}
	}
	defer func() {
		_ = file.Close()
	}()
	return parseFills(file, resolver)
}

func parseFills(src io.Reader, resolver assets.Resolver) ([]ledger.Trade, []ledger.Diagnostic) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, []ledger.Diagnostic{ledger.Failure(tradeFailure, "", err)}
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	var (
		trades []ledger.Trade
		diags  []ledger.Diagnostic
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			diags = append(diags, ledger.Failure(tradeFailure, strings.Join(record, ","), err))
			continue
		}
		row := make(fillRow, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		trade, diag, ok := convertFill(row, resolver)
		if !ok {
			diags = append(diags, diag)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, diags
}

// offendingAsset names the asset carried by err, else fallback.
func offendingAsset(err error, fallback string) string {
	var e *errs.E
	if errors.As(err, &e) && e.Asset != "" {
		return e.Asset
	}
	return fallback
}

func convertFill(row fillRow, resolver assets.Resolver) (ledger.Trade, ledger.Diagnostic, bool) {
	raw := row.String()
	fail := func(err error) (ledger.Trade, ledger.Diagnostic, bool) {
		return ledger.Trade{}, ledger.Failure(tradeFailure, raw, err), false
	}

	values := make(map[string]string, len(fillColumns))
	for _, column := range fillColumns {
		v, err := row.get(column)
		if err != nil {
			return fail(err)
		}
		values[column] = v
	}

	created, err := parseTimestamp(values["created at"])
	if err != nil {
		return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid created at", err))
	}
	pair, err := ledger.ToWorldPair(coinbaseproMetadata.location, values["product"], resolver)
	switch {
	case err == nil:
	case errs.CodeOf(err) == errs.CodeUnprocessablePair:
		return ledger.Trade{}, ledger.Warning(
			fmt.Sprintf("Found unprocessable Coinbasepro pair %s. Ignoring the trade.", values["product"]), raw), false
	case errs.IsRecordScoped(err):
		return ledger.Trade{}, ledger.Warning(
			fmt.Sprintf("Found unknown Coinbasepro asset %s. Ignoring the trade.", offendingAsset(err, values["product"])), raw), false
	default:
		return fail(err)
	}
	side, ok := ledger.ParseTradeSide(values["side"])
	if !ok {
		return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid trade side "+values["side"], nil))
	}
	numbers := make(map[string]decimal.Decimal, 3)
	for _, column := range []string{"size", "price", "fee"} {
		d, err := decimal.NewFromString(values[column])
		if err != nil {
			return fail(errs.Deserialization(coinbaseproMetadata.identifier, "invalid "+column+" "+values[column], err))
		}
		numbers[column] = d
	}
	feeCurrency, err := resolver.FromCoinbase(values["price/fee/total unit"])
	if err != nil {
		return ledger.Trade{}, ledger.Warning(
			fmt.Sprintf("Found unknown Coinbasepro asset %s. Ignoring the trade.", values["price/fee/total unit"]), raw), false
	}

	return ledger.Trade{
		Timestamp:   ledger.FromTime(created),
		Location:    coinbaseproMetadata.location,
		Pair:        pair,
		Side:        side,
		Amount:      numbers["size"].Abs(),
		Rate:        numbers["price"],
		Fee:         numbers["fee"].Abs(),
		FeeCurrency: feeCurrency,
		Link:        values["trade id"],
	}, ledger.Diagnostic{}, true
}
