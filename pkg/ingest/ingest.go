// Package ingest implements the thin RSS-fetch + dedup-hash glue that
// seeds news.raw. It is explicitly out-of-scope "hard engineering" per
// the pipeline spec (HTTP + library glue only); it exists so the
// pipeline has a real news source rather than requiring an external
// feeder process.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/dedup"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Feed names a single RSS source to poll.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds mirrors the Python source's DEFAULT_FEEDS table.
var DefaultFeeds = []Feed{
	{Name: "coindesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
	{Name: "cointelegraph", URL: "https://cointelegraph.com/rss"},
}

// Service polls a fixed set of RSS feeds, dedups entries by a
// source+title+url hash, and publishes fresh ones to news.raw.
type Service struct {
	busConn       bus.EventBus
	dedup         dedup.Store
	feeds         []Feed
	defaultTTLSec int
	parser        *gofeed.Parser
}

// New builds a Service. feeds defaults to DefaultFeeds when nil.
func New(busConn bus.EventBus, dedupStore dedup.Store, feeds []Feed, defaultTTLSec int) *Service {
	if feeds == nil {
		feeds = DefaultFeeds
	}
	return &Service{
		busConn:       busConn,
		dedup:         dedupStore,
		feeds:         feeds,
		defaultTTLSec: defaultTTLSec,
		parser:        gofeed.NewParser(),
	}
}

func makeDedupHash(source, title, url string) string {
	raw := fmt.Sprintf("%s|%s|%s", source, strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(url)))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// fetchFeed pulls one feed and returns the NewsEvents for entries not
// already seen by the dedup store. A fetch error is logged and treated
// as zero new events, matching the Python source's fail-open behavior.
func (s *Service) fetchFeed(ctx context.Context, feed Feed) []models.NewsEvent {
	log := slog.With("component", "ingest", "feed", feed.Name)

	parsed, err := s.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		log.Error("failed to fetch feed", "url", feed.URL, "error", err)
		return nil
	}

	var out []models.NewsEvent
	for _, item := range parsed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		content := strings.TrimSpace(item.Description)
		if content == "" {
			content = title
		}
		link := strings.TrimSpace(item.Link)

		dedupHash := makeDedupHash(feed.Name, title, link)
		seen, err := s.dedup.SeenOrAdd(ctx, dedupHash, s.defaultTTLSec)
		if err != nil {
			log.Error("dedup check failed", "error", err)
			continue
		}
		if seen {
			continue
		}

		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}

		event := models.NewNewsEvent(dedupHash[:16], feed.Name, published, title, content)
		event.URL = link
		event.DedupHash = dedupHash
		out = append(out, event)
	}
	return out
}

// RunOnce polls every configured feed once and publishes fresh entries
// to news.raw, returning the count published.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for _, feed := range s.feeds {
		for _, event := range s.fetchFeed(ctx, feed) {
			payload, err := models.Encode(event)
			if err != nil {
				return total, err
			}
			if _, err := s.busConn.Publish(ctx, models.StreamNewsRaw, payload); err != nil {
				return total, err
			}
			total++
		}
	}
	slog.Info("ingest published", "count", total)
	return total, nil
}

// RunForever polls every interval until ctx is canceled.
func (s *Service) RunForever(ctx context.Context, interval time.Duration) {
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("ingest run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
