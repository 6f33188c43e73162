package rss

import (
	"context"
	"fmt"
	"time"

	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/ident"
	"github.com/feedeater/feedeater/pkg/models"
)

// poll sweeps every configured feed once. Feed failures are isolated;
// the sweep errors only when no feed could be fetched at all.
func (m *Module) poll(ctx context.Context, s *collect.Session) error {
	cfg, err := parseSettings(s.Settings)
	if err != nil {
		return err
	}

	fetcher := s.NewFetcher(cfg.RequestTimeout)
	now := time.Now().UTC()

	failed := 0
	for _, feedURL := range cfg.FeedURLs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fresh, err := m.pollFeed(ctx, s, fetcher, feedURL, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			s.Count("feeds_failed")
			s.Log.Warn("Feed sweep failed", map[string]any{"feed": feedURL, "error": err.Error()})
			continue
		}

		s.Count("feeds_polled")
		if fresh == 0 {
			s.Count("feeds_unchanged")
		}
	}

	if failed > 0 && failed == len(cfg.FeedURLs) {
		return fmt.Errorf("all %d feeds failed", failed)
	}
	return nil
}

// pollFeed fetches one feed and stores its previously unseen items,
// returning how many were fresh.
func (m *Module) pollFeed(ctx context.Context, s *collect.Session, fetcher *collect.Fetcher, feedURL string, now time.Time) (int, error) {
	body, err := fetcher.Get(ctx, feedURL)
	if err != nil {
		return 0, err
	}

	feed, err := DecodeFeed(body, now)
	if err != nil {
		return 0, err
	}

	host := FeedHost(feedURL)
	fresh := 0
	for i := range feed.Items {
		item := &feed.Items[i]
		inserted, err := m.storeItem(ctx, s, host, item, now)
		if err != nil {
			if ctx.Err() != nil {
				return fresh, err
			}
			s.Log.Warn("Failed to store feed item", map[string]any{
				"feed": host, "guid": item.GUID, "error": err.Error(),
			})
			continue
		}
		if !inserted {
			continue
		}

		fresh++
		s.Count("items_collected")
		if s.Bus.PublishMessage(m.message(host, item)) {
			s.Count("messages_published")
		}
	}
	return fresh, nil
}

// storeItem inserts an item and its retrieval row, reporting whether
// the item was previously unseen. The id derives from the natural key,
// so replayed feed content lands on the conflict path.
func (m *Module) storeItem(ctx context.Context, s *collect.Session, host string, item *Item, now time.Time) (bool, error) {
	id := itemID(host, item.GUID)

	tag, err := s.Store.Exec(ctx, `
		INSERT INTO `+itemsTable+` (id, feed_host, guid, title, link, author, summary, published_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		id, host, item.GUID, item.Title, item.Link, item.Author, item.Summary, item.PublishedAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	content := item.Title
	if item.Summary != "" {
		content = item.Title + "\n" + item.Summary
	}
	if _, err := s.Store.Exec(ctx, `
		INSERT INTO `+embeddingsTable+` (record_id, source_key, content, collected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO NOTHING`,
		id, host, content, now); err != nil {
		return true, fmt.Errorf("failed to insert retrieval row: %w", err)
	}
	return true, nil
}

func (m *Module) message(host string, item *Item) models.Message {
	from := item.Author
	if from == "" {
		from = host
	}
	text := item.Title
	if text == "" {
		text = item.Summary
	}

	return models.Message{
		ID:        itemID(host, item.GUID),
		CreatedAt: item.PublishedAt,
		Source:    models.Source{Module: moduleName, Stream: host},
		Text:      text,
		From:      from,
		ContextRef: &models.ContextRef{
			OwnerModule: moduleName,
			SourceKey:   host,
		},
		Tags: models.Tags{
			"feed": host,
			"link": item.Link,
		},
	}
}

// itemID derives the canonical message id from the item's natural key.
func itemID(host, guid string) string {
	return ident.MessageID(moduleName, ident.SourceID(moduleName, host, guid))
}
