package coinbasepro

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/observability"
)

type accountRecord struct {
	ID        string `json:"id"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	Available string `json:"available"`
	Hold      string `json:"hold"`
}

// Directory maps exchange account ids to assets. It is built once per session.
type Directory struct {
	client   *Client
	resolver assets.Resolver
	messages observability.Messages

	mu      sync.Mutex
	entries map[string]assets.Asset
}

func newDirectory(client *Client, resolver assets.Resolver, messages observability.Messages) *Directory {
	return &Directory{client: client, resolver: resolver, messages: messages}
}

// Resolve returns the account mapping, fetching it on first use. A failed fetch is retried on the
// next call. The returned map must not be modified.
func (d *Directory) Resolve(ctx context.Context) (map[string]assets.Asset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entries != nil {
		return d.entries, nil
	}

	raw, err := fetchAccounts(ctx, d.client)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]assets.Asset, len(raw))
	for _, item := range raw {
		var account accountRecord
		if err := json.Unmarshal(item, &account); err != nil {
			d.messages.AddWarning("Found coinbase pro account entry that could not be decoded. Ignoring it")
			continue
		}
		if account.ID == "" || account.Currency == "" {
			missing := "id"
			if account.ID != "" {
				missing = "currency"
			}
			d.messages.AddWarning(fmt.Sprintf("Found coinbase pro account entry with missing %s field. Ignoring it", missing))
			continue
		}
		asset, err := d.resolver.FromCoinbase(account.Currency)
		if err != nil {
			switch errs.CodeOf(err) {
			case errs.CodeUnsupportedAsset:
				d.messages.AddWarning(fmt.Sprintf("Found coinbase pro account with unsupported asset %s. Ignoring it.", account.Currency))
			default:
				d.messages.AddWarning(fmt.Sprintf("Found coinbase pro account result with unknown asset %s. Ignoring it.", account.Currency))
			}
			continue
		}
		entries[account.ID] = asset
	}
	d.entries = entries
	return entries, nil
}

func fetchAccounts(ctx context.Context, client *Client) ([]json.RawMessage, error) {
	resp, err := client.Query(ctx, Request{Endpoint: coinbaseproMetadata.accountsPath})
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, errs.New(client.exchange, errs.CodeRemote,
			errs.WithMessage("expected a list of accounts"),
			errs.WithCause(err))
	}
	return raw, nil
}
