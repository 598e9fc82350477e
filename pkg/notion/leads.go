package notion

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Lead is a landing-page contact submission.
type Lead struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Normalize trims every field and lowercases the email.
func (l Lead) Normalize() Lead {
	return Lead{
		Name:    strings.TrimSpace(l.Name),
		Email:   strings.ToLower(strings.TrimSpace(l.Email)),
		Company: strings.TrimSpace(l.Company),
		Message: strings.TrimSpace(l.Message),
		Source:  strings.TrimSpace(l.Source),
	}
}

// Validate requires a name and a parseable email address.
func (l Lead) Validate() error {
	if l.Name == "" {
		return eris.New("notion: lead name is required")
	}
	if l.Email == "" {
		return eris.New("notion: lead email is required")
	}
	if _, err := mail.ParseAddress(l.Email); err != nil {
		return eris.Wrapf(err, "notion: invalid lead email %q", l.Email)
	}
	return nil
}

// CaptureLead records a lead. A lead whose email already exists updates that
// page instead of creating a duplicate; created reports which happened.
func CaptureLead(ctx context.Context, c Client, lead Lead, now time.Time) (page *notionapi.Page, created bool, err error) {
	lead = lead.Normalize()
	if err := lead.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := c.FindByEmail(ctx, lead.Email)
	if err != nil {
		return nil, false, eris.Wrap(err, "notion: find lead")
	}

	if existing != nil {
		page, err := c.UpdateLead(ctx, string(existing.ID), lead, now)
		if err != nil {
			return nil, false, eris.Wrap(err, "notion: update lead")
		}
		return page, false, nil
	}

	page, err = c.CreateLead(ctx, lead, now)
	if err != nil {
		return nil, false, eris.Wrap(err, "notion: create lead")
	}
	return page, true, nil
}
