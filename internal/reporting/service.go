// Package reporting serves cached invoice summaries for dashboards.
package reporting

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/invoicely/invoicely/internal/invoice"
)

// Source lists invoices for aggregation.
type Source interface {
	ListInvoices(ctx context.Context, req invoice.ListInvoicesRequest) ([]invoice.Invoice, error)
}

// Service coordinates summary computation with the cache layer. Concurrent
// misses for the same key share one computation.
type Service struct {
	source Source
	cache  *Cache
	group  singleflight.Group
}

var _ invoice.SummaryReader = (*Service)(nil)

// NewService wires a Source with a Cache helper.
func NewService(source Source, cache *Cache) *Service {
	return &Service{source: source, cache: cache}
}

// Summary returns the summary across all invoices.
func (s *Service) Summary(ctx context.Context) (invoice.Summary, error) {
	return s.fetch(ctx, keySummary(), invoice.ListInvoicesRequest{})
}

// ClientSummary returns the summary for one client.
func (s *Service) ClientSummary(ctx context.Context, clientID int64) (invoice.Summary, error) {
	return s.fetch(ctx, keyClientSummary(clientID), invoice.ListInvoicesRequest{ClientID: clientID})
}

// Bump drops every cached summary.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Warm precomputes the global summary and the given client summaries.
func (s *Service) Warm(ctx context.Context, clientIDs ...int64) error {
	if _, err := s.Summary(ctx); err != nil {
		return fmt.Errorf("warm summary: %w", err)
	}
	for _, id := range clientIDs {
		if _, err := s.ClientSummary(ctx, id); err != nil {
			return fmt.Errorf("warm client %d summary: %w", id, err)
		}
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, base string, req invoice.ListInvoicesRequest) (invoice.Summary, error) {
	key, err := s.cache.BuildKey(ctx, base)
	if err != nil {
		return invoice.Summary{}, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out invoice.Summary
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			invoices, err := s.source.ListInvoices(ctx, req)
			if err != nil {
				return nil, err
			}
			return invoice.Summarize(invoices).Rounded(), nil
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return invoice.Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return invoice.Summary{}, res.Err
		}
		return res.Val.(invoice.Summary), nil
	}
}
