// Package notion stores landing-page leads in a Notion database.
package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Lead database property names.
const (
	PropName      = "Name"
	PropEmail     = "Email"
	PropCompany   = "Company"
	PropMessage   = "Message"
	PropSource    = "Source"
	PropSubmitted = "Submitted"
)

// Client is the lead database. Leads are keyed by their lowercased email.
type Client interface {
	FindByEmail(ctx context.Context, email string) (*notionapi.Page, error)
	CreateLead(ctx context.Context, lead Lead, submitted time.Time) (*notionapi.Page, error)
	UpdateLead(ctx context.Context, pageID string, lead Lead, submitted time.Time) (*notionapi.Page, error)
}

// databaseQuerier and pageWriter are the slices of notionapi's services the
// lead database touches.
type databaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type pageWriter interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures the lead database client.
type ClientOption func(*leadDB)

// WithRateLimit overrides the default Notion rate limit (3 req/s).
func WithRateLimit(rps float64) ClientOption {
	return func(c *leadDB) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type leadDB struct {
	dbID    string
	db      databaseQuerier
	pages   pageWriter
	limiter *rate.Limiter
}

// NewClient returns the lead database dbID, authenticated with an
// integration token. Calls are throttled to 3 req/s by default.
func NewClient(token, dbID string, opts ...ClientOption) Client {
	inner := notionapi.NewClient(notionapi.Token(token))
	return newLeadDB(dbID, inner.Database, inner.Page, opts...)
}

func newLeadDB(dbID string, db databaseQuerier, pages pageWriter, opts ...ClientOption) *leadDB {
	c := &leadDB{
		dbID:    dbID,
		db:      db,
		pages:   pages,
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *leadDB) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// FindByEmail returns the lead page for email, or nil when there is none.
func (c *leadDB) FindByEmail(ctx context.Context, email string) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	resp, err := c.db.Query(ctx, notionapi.DatabaseID(c.dbID), &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropEmail,
			RichText: &notionapi.TextFilterCondition{Equals: email},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: query database %s", c.dbID))
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// CreateLead adds a page for lead.
func (c *leadDB) CreateLead(ctx context.Context, lead Lead, submitted time.Time) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(c.dbID),
		},
		Properties: leadProperties(lead, submitted),
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

// UpdateLead refreshes an existing lead page. The email property is the
// lookup key and is left as stored.
func (c *leadDB) UpdateLead(ctx context.Context, pageID string, lead Lead, submitted time.Time) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	props := leadProperties(lead, submitted)
	delete(props, PropEmail)
	page, err := c.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: update page %s", pageID))
	}
	return page, nil
}

func leadProperties(l Lead, submitted time.Time) notionapi.Properties {
	date := notionapi.Date(submitted)
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(l.Name),
		},
		PropEmail: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.Email),
		},
		PropSubmitted: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &date},
		},
	}
	// Notion rejects empty rich_text values on some property types; skip them.
	for name, v := range map[string]string{PropCompany: l.Company, PropMessage: l.Message, PropSource: l.Source} {
		if v == "" {
			continue
		}
		props[name] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(v),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}
