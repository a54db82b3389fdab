// Package marketplace handles locker listings (kind 30402 classifieds
// tagged t=locker) and vendor trust scores.
package marketplace

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

// Listing statuses.
const (
	StatusAvailable   = "available"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
)

// LockerListing is a parsed locker classified.
type LockerListing struct {
	ID          string          `json:"id"`
	Pubkey      string          `json:"pubkey"`
	DTag        string          `json:"d_tag"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Geohash     string          `json:"geohash"`
	Location    string          `json:"location,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Dimensions  string          `json:"dimensions,omitempty"`
	OverdueFee  decimal.Decimal `json:"overdue_fee"`
	OverdueDays int             `json:"overdue_days"`
	ProxyMode   bool            `json:"proxy_mode"`
	ProxyFee    decimal.Decimal `json:"proxy_fee"`
	AbandonDays int             `json:"abandon_days"`
	Images      []string        `json:"images"`
	CreatedAt   int64           `json:"created_at"`
}

// LockerConfig describes a locker to publish.
type LockerConfig struct {
	Title       string
	Description string
	Location    string
	Geohash     string
	BaseFee     decimal.Decimal
	OverdueFee  decimal.Decimal
	OverdueDays int
	ProxyMode   bool
	ProxyFee    decimal.Decimal
	AbandonDays int
	Dimensions  string
}

// ParseListing parses a kind 30402 event into a LockerListing. Events of
// other kinds, or classifieds not tagged as lockers, yield nil.
func ParseListing(ev *nostr.Event) *LockerListing {
	if ev == nil || ev.Kind != nostr.KindLockerListing {
		return nil
	}

	isLocker := false
	for _, t := range ev.Tags.All("t") {
		if t == "locker" {
			isLocker = true
			break
		}
	}
	if !isLocker {
		return nil
	}

	dTag := ev.Tags.First("d")
	if dTag == "" {
		return nil
	}

	listing := &LockerListing{
		ID:          ev.ID,
		Pubkey:      ev.Pubkey,
		DTag:        dTag,
		Title:       ev.Tags.First("title"),
		Description: ev.Content,
		Status:      ev.Tags.First("status"),
		Geohash:     ev.Tags.First("g"),
		Location:    ev.Tags.First("location"),
		Currency:    "SATS",
		Dimensions:  ev.Tags.First("dimensions"),
		OverdueFee:  parseDecimalTag(ev.Tags, "overdue-fee", decimal.Zero),
		OverdueDays: parseIntTag(ev.Tags, "overdue-days", 7),
		ProxyMode:   ev.Tags.First("proxy-mode") == "true",
		ProxyFee:    parseDecimalTag(ev.Tags, "proxy-fee", decimal.Zero),
		AbandonDays: parseIntTag(ev.Tags, "abandon-days", 30),
		Images:      ev.Tags.All("image"),
		CreatedAt:   ev.CreatedAt,
	}

	if listing.Title == "" {
		listing.Title = "Unnamed Locker"
	}
	if listing.Status == "" {
		listing.Status = StatusAvailable
	}

	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "price" {
			if v, err := decimal.NewFromString(tag[1]); err == nil {
				listing.Price = v
			}
			if len(tag) >= 3 && tag[2] != "" {
				listing.Currency = tag[2]
			}
			break
		}
	}

	return listing
}

// BuildListingTags produces the tag set for publishing a locker
// classified. A fresh d tag identifies the listing.
func BuildListingTags(cfg LockerConfig) nostr.Tags {
	tags := nostr.Tags{
		{"d", uuid.New().String()},
		{"title", cfg.Title},
		{"t", "locker"},
		{"t", "dead-drop"},
		{"g", cfg.Geohash},
		{"price", cfg.BaseFee.String(), "SATS"},
		{"status", StatusAvailable},
		{"dimensions", cfg.Dimensions},
		{"overdue-fee", cfg.OverdueFee.String()},
		{"overdue-days", strconv.Itoa(cfg.OverdueDays)},
		{"proxy-mode", strconv.FormatBool(cfg.ProxyMode)},
		{"abandon-days", strconv.Itoa(cfg.AbandonDays)},
	}

	if cfg.Location != "" {
		tags = append(tags, nostr.Tag{"location", cfg.Location})
	}
	if cfg.ProxyMode && cfg.ProxyFee.IsPositive() {
		tags = append(tags, nostr.Tag{"proxy-fee", cfg.ProxyFee.String()})
	}

	return tags
}

// Querier runs relay queries. Satisfied by *relay.Pool.
type Querier interface {
	Query(ctx context.Context, filters ...relay.Filter) ([]*nostr.Event, error)
}

// Service answers marketplace queries over a relay pool.
type Service struct {
	relays Querier
}

// NewService creates a marketplace service.
func NewService(relays Querier) *Service {
	return &Service{relays: relays}
}

// Listings fetches locker classifieds from the relay set.
func (s *Service) Listings(ctx context.Context) ([]*LockerListing, error) {
	events, err := s.relays.Query(ctx, relay.Filter{
		Kinds: []int{nostr.KindLockerListing},
		Tags:  map[string][]string{"t": {"locker"}},
		Limit: 200,
	})
	if err != nil {
		return nil, err
	}

	listings := make([]*LockerListing, 0, len(events))
	for _, ev := range events {
		if l := ParseListing(ev); l != nil {
			listings = append(listings, l)
		}
	}

	return listings, nil
}

func parseIntTag(tags nostr.Tags, name string, defaultVal int) int {
	v := tags.First(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseDecimalTag(tags nostr.Tags, name string, defaultVal decimal.Decimal) decimal.Decimal {
	v := tags.First(name)
	if v == "" {
		return defaultVal
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return defaultVal
	}
	return d
}
