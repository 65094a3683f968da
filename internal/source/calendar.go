package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarConnector pulls calendar entries; appointments and service visits
// often carry amounts ("Dentist — $120 copay") worth ingesting.
type CalendarConnector struct {
	CalendarID string
	MaxResults int64
}

func (c *CalendarConnector) Kind() string { return "calendar" }

func (c *CalendarConnector) Search(ctx context.Context, token string, since time.Time) ([]Item, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}

	calID := c.CalendarID
	if calID == "" {
		calID = "primary"
	}
	max := c.MaxResults
	if max <= 0 {
		max = 100
	}

	list, err := svc.Events.List(calID).
		TimeMin(since.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(max).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar list: %w", err)
	}

	items := make([]Item, 0, len(list.Items))
	for _, ev := range list.Items {
		item := Item{
			ExternalID: ev.Id,
			Subject:    ev.Summary,
			Body:       ev.Description,
		}
		if ev.Organizer != nil {
			item.Sender = ev.Organizer.Email
		}
		if ev.Start != nil {
			raw := ev.Start.DateTime
			if raw == "" {
				raw = ev.Start.Date
			}
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				item.ReceivedAt = t.UTC()
			} else if t, err := time.Parse("2006-01-02", raw); err == nil {
				item.ReceivedAt = t.UTC()
			}
		}
		items = append(items, item)
	}
	return items, nil
}
