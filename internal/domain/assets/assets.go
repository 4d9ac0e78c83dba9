// Package assets resolves exchange currency codes into canonical assets.
package assets

import (
	"strings"
	"sync"

	"github.com/coachpo/tally/errs"
)

// Type classifies an asset by where it lives.
type Type string

const (
	TypeFiat          Type = "fiat"
	TypeOwnChain      Type = "own chain"
	TypeEthereumToken Type = "ethereum token"
)

// Asset identifies a validated currency.
type Asset struct {
	Identifier string
	Symbol     string
	Type       Type
}

// IsZero reports whether the asset is unset.
func (a Asset) IsZero() bool { return a.Identifier == "" }

func (a Asset) String() string { return a.Identifier }

// IsEthereumFamily reports whether transaction ids for the asset are ethereum hashes.
func (a Asset) IsEthereumFamily() bool {
	return a.Identifier == "ETH" || a.Type == TypeEthereumToken
}

// Resolver maps exchange currency codes to assets.
type Resolver interface {
	FromCoinbase(symbol string) (Asset, error)
}

const exchangeName = "coinbasepro"

// Registry is an in-memory Resolver keyed by exchange symbol.
type Registry struct {
	mu          sync.RWMutex
	bySymbol    map[string]Asset
	unsupported map[string]struct{}
}

// NewRegistry builds a registry from the supplied assets. Symbols are matched case-insensitively.
func NewRegistry(known []Asset, unsupported ...string) *Registry {
	r := &Registry{
		bySymbol:    make(map[string]Asset, len(known)),
		unsupported: make(map[string]struct{}, len(unsupported)),
	}
	for _, a := range known {
		r.Register(a)
	}
	for _, sym := range unsupported {
		r.unsupported[normalizeSymbol(sym)] = struct{}{}
	}
	return r
}

// Register adds or replaces an asset.
func (r *Registry) Register(a Asset) {
	sym := normalizeSymbol(a.Symbol)
	if sym == "" {
		return
	}
	if a.Identifier == "" {
		a.Identifier = sym
	}
	r.mu.Lock()
	r.bySymbol[sym] = a
	r.mu.Unlock()
}

// FromCoinbase resolves a Coinbase currency code.
func (r *Registry) FromCoinbase(symbol string) (Asset, error) {
	sym := normalizeSymbol(symbol)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.unsupported[sym]; ok {
		return Asset{}, errs.UnsupportedAsset(exchangeName, symbol)
	}
	a, ok := r.bySymbol[sym]
	if !ok {
		return Asset{}, errs.UnknownAsset(exchangeName, symbol)
	}
	return a, nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Default returns a registry seeded with the currencies commonly held on Coinbase Pro.
func Default() *Registry {
	return NewRegistry(defaultAssets, defaultUnsupported...)
}

var defaultAssets = []Asset{
	{Identifier: "USD", Symbol: "USD", Type: TypeFiat},
	{Identifier: "EUR", Symbol: "EUR", Type: TypeFiat},
	{Identifier: "GBP", Symbol: "GBP", Type: TypeFiat},
	{Identifier: "BTC", Symbol: "BTC", Type: TypeOwnChain},
	{Identifier: "ETH", Symbol: "ETH", Type: TypeOwnChain},
	{Identifier: "LTC", Symbol: "LTC", Type: TypeOwnChain},
	{Identifier: "BCH", Symbol: "BCH", Type: TypeOwnChain},
	{Identifier: "ETC", Symbol: "ETC", Type: TypeOwnChain},
	{Identifier: "XLM", Symbol: "XLM", Type: TypeOwnChain},
	{Identifier: "ALGO", Symbol: "ALGO", Type: TypeOwnChain},
	{Identifier: "XTZ", Symbol: "XTZ", Type: TypeOwnChain},
	{Identifier: "ATOM", Symbol: "ATOM", Type: TypeOwnChain},
	{Identifier: "eip155:1/erc20:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Type: TypeEthereumToken},
	{Identifier: "eip155:1/erc20:0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Type: TypeEthereumToken},
	{Identifier: "eip155:1/erc20:0x514910771AF9Ca656af840dff83E8264EcF986CA", Symbol: "LINK", Type: TypeEthereumToken},
	{Identifier: "eip155:1/erc20:0x0D8775F648430679A709E98d2b0Cb6250d2887EF", Symbol: "BAT", Type: TypeEthereumToken},
	{Identifier: "eip155:1/erc20:0xE41d2489571d322189246DaFA5ebDe1F4699F498", Symbol: "ZRX", Type: TypeEthereumToken},
	{Identifier: "eip155:1/erc20:0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Symbol: "UNI", Type: TypeEthereumToken},
}

var defaultUnsupported = []string{"CGLD"}
