// Package notify delivers outbound "board milestone" webhooks when new
// regions open, so an operator can plug an external integration (a
// Discord bot, an analytics pipeline) in without touching the WebSocket
// fanout path. Optional: a NoopDelivery is used when no Svix token is
// configured.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/url"

	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"

	"pixelboard/internal/board"
)

// WebhookDelivery dispatches a single kind of event: a batch of regions
// having just opened.
type WebhookDelivery interface {
	RegionsOpened(ctx context.Context, regions []board.RegionCoord) error
}

// SvixClient delivers regions-opened events through a single pre-created
// Svix application.
type SvixClient struct {
	client *svix.Svix
	appID  string
}

var _ WebhookDelivery = (*SvixClient)(nil)

// NewSvixClient dials Svix and ensures appID's application exists.
func NewSvixClient(ctx context.Context, authToken, serverURL, appID string) (*SvixClient, error) {
	var opts *svix.SvixOptions
	if serverURL != "" {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("notify: parse svix server url: %w", err)
		}
		opts = &svix.SvixOptions{ServerUrl: u}
	}

	client, err := svix.New(authToken, opts)
	if err != nil {
		return nil, fmt.Errorf("notify: create svix client: %w", err)
	}

	uid := appID
	if _, err := client.Application.GetOrCreate(ctx, models.ApplicationIn{
		Name: "pixelboard",
		Uid:  &uid,
	}, nil); err != nil {
		return nil, fmt.Errorf("notify: create application: %w", err)
	}

	return &SvixClient{client: client, appID: appID}, nil
}

// RegionsOpened dispatches a "regions_opened" message carrying every newly
// opened region's coordinates.
func (s *SvixClient) RegionsOpened(ctx context.Context, regions []board.RegionCoord) error {
	payload := make([]map[string]int32, len(regions))
	for i, r := range regions {
		payload[i] = map[string]int32{"rx": r.RX, "ry": r.RY}
	}
	msg, err := s.client.Message.Create(ctx, s.appID, models.MessageIn{
		EventType: "regions_opened",
		Payload:   map[string]interface{}{"regions": payload},
	}, nil)
	if err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}
	log.Printf("[notify] regions_opened dispatched: id=%s count=%d", msg.Id, len(regions))
	return nil
}

// NoopDelivery discards every event; used when no webhook provider is
// configured.
type NoopDelivery struct{}

var _ WebhookDelivery = (*NoopDelivery)(nil)

func (NoopDelivery) RegionsOpened(_ context.Context, regions []board.RegionCoord) error {
	log.Printf("[notify/noop] regions_opened: count=%d", len(regions))
	return nil
}
