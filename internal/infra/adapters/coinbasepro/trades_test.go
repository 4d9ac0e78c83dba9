package coinbasepro

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
)

const fillsHeader = "portfolio,trade id,product,side,created at,size,size unit,price,fee,total,price/fee/total unit\n"

func TestParseFills(t *testing.T) {
	report := fillsHeader +
		"default,74,BTC-USD,BUY,2020-05-01T10:11:12.345Z,0.5,BTC,9000.00,4.5,-4504.5,USD\n" +
		"default,75,BTCUSD,SELL,2020-05-01T10:11:12.345Z,0.5,BTC,9000.00,4.5,4495.5,USD\n" +
		"default,76,ETH-BTC,SELL,2020-05-02T00:00:00.000Z,2,ETH,0.02,0.0001,0.0399,BTC\n" +
		"default,77,ETH-BTC,HOLD,2020-05-02T00:00:00.000Z,2,ETH,0.02,0.0001,0.0399,BTC\n" +
		"default,78,ETH-USD,BUY,2020-05-02T00:00:00.000Z,,ETH,200,1,-401,USD\n" +
		"default,79,ETH-USD,BUY,2020-05-02T00:00:00.000Z,1,ETH,200,1,-201,XYZ\n"

	trades, diags := parseFills(strings.NewReader(report), assets.Default())
	if len(trades) != 2 {
		t.Fatalf("expected two trades, got %d: %+v", len(trades), diags)
	}
	if len(diags) != 4 {
		t.Fatalf("expected four skipped rows, got %+v", diags)
	}

	first := trades[0]
	if first.Pair != "BTC_USD" || first.Side != ledger.TradeSideBuy || first.Link != "74" {
		t.Fatalf("unexpected trade %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("0.5")) || !first.Rate.Equal(decimal.NewFromInt(9000)) || !first.Fee.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("unexpected numbers %+v", first)
	}
	if first.FeeCurrency.Symbol != "USD" || first.Timestamp != 1588327872345 {
		t.Fatalf("unexpected fee currency or timestamp %+v", first)
	}
	if trades[1].Pair != "ETH_BTC" || trades[1].Side != ledger.TradeSideSell {
		t.Fatalf("unexpected second trade %+v", trades[1])
	}

	if diags[0].Severity != ledger.SeverityWarning || !strings.Contains(diags[0].Message, "BTCUSD") {
		t.Fatalf("expected unprocessable pair warning first, got %+v", diags[0])
	}
	if diags[3].Severity != ledger.SeverityWarning || !strings.Contains(diags[3].Message, "XYZ") {
		t.Fatalf("expected unknown fee currency warning last, got %+v", diags[3])
	}
}

func TestParseFillsResolvesPairAssets(t *testing.T) {
	report := fillsHeader +
		"default,90,FOO-USD,BUY,2021-01-01T00:00:00Z,1,FOO,2,0.01,-2.01,USD\n" +
		"default,91,USDC-USD,SELL,2021-01-01T00:00:01Z,100,USDC,1,0.1,99.9,USD\n" +
		"default,92,BTC-USD,BUY,2021-01-01T00:00:02Z,0.1,BTC,30000,3,-3003,USD\n"

	registry := assets.Default()
	trades, diags := parseFills(strings.NewReader(report), registry)
	if len(trades) != 2 || len(diags) != 1 {
		t.Fatalf("expected two trades and one skipped row, got %d trades %+v", len(trades), diags)
	}
	if diags[0].Severity != ledger.SeverityWarning || !strings.Contains(diags[0].Message, "unknown Coinbasepro asset FOO") {
		t.Fatalf("expected unknown asset warning, got %+v", diags[0])
	}
	usdc, err := registry.FromCoinbase("USDC")
	if err != nil {
		t.Fatalf("resolve usdc: %v", err)
	}
	if trades[0].Pair != ledger.TradePair(usdc.Identifier+"_USD") || trades[0].Link != "91" {
		t.Fatalf("expected identifier-keyed pair, got %+v", trades[0])
	}
	if trades[1].Pair != "BTC_USD" {
		t.Fatalf("unexpected pair %s", trades[1].Pair)
	}
}

func TestParseFillsEmptyReport(t *testing.T) {
	trades, diags := parseFills(strings.NewReader(""), assets.Default())
	if len(trades) != 0 || len(diags) != 0 {
		t.Fatalf("expected nothing from an empty report")
	}
}
