package aggregates

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"
)

type linksEnvelope struct {
	Links []*LinkCard `json:"links"`
}

type domainsEnvelope struct {
	Domains []*DomainCard `json:"domains"`
}

type externalCardsEnvelope struct {
	Top []*ExternalCard `json:"top"`
}

func (s *service) topLinks(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.LinkCounts(ctx, feedID, since, resultLimit)
	if err != nil {
		return nil, err
	}

	cards := make([]*LinkCard, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, &LinkCard{Type: "link", URI: row.URI, Count: row.Count})
	}
	return &Result{Payload: linksEnvelope{Links: cards}}, nil
}

func (s *service) topDomains(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	uris, err := s.repo.LinkURIs(ctx, feedID, since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	var order []string
	for _, raw := range uris {
		domain := domainOf(raw)
		if domain == "" {
			continue
		}
		if _, ok := counts[domain]; !ok {
			order = append(order, domain)
		}
		counts[domain]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > resultLimit {
		order = order[:resultLimit]
	}

	cards := make([]*DomainCard, 0, len(order))
	for _, domain := range order {
		cards = append(cards, &DomainCard{Type: "domain", Domain: domain, Count: counts[domain]})
	}
	return &Result{Payload: domainsEnvelope{Domains: cards}}, nil
}

// domainOf extracts the lowercased host from a link, dropping a leading www.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func (s *service) topLinkCards(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.LinkCards(ctx, feedID, since, nil, true, resultLimit)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: externalCardsEnvelope{Top: externalCards(rows)}}, nil
}

func (s *service) topNewsLinkCards(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	domains := s.news.Current()
	if len(domains) == 0 {
		return &Result{Payload: externalCardsEnvelope{Top: []*ExternalCard{}}}, nil
	}

	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.LinkCards(ctx, feedID, since, domains, false, resultLimit)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: externalCardsEnvelope{Top: externalCards(rows)}}, nil
}

func externalCards(rows []*LinkCardRow) []*ExternalCard {
	cards := make([]*ExternalCard, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, &ExternalCard{
			Type:        "link_card",
			URI:         row.URI,
			URL:         stringValue(row.LinkURL),
			Title:       stringValue(row.LinkTitle),
			Description: stringValue(row.LinkDescription),
			Image:       row.ThumbnailURL,
			Count:       row.Count,
		})
	}
	return cards
}
