package notion

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Queue statuses stored in the Status property.
const (
	StatusQueued    = "Queued"
	StatusEnriched  = "Enriched"
	StatusNoContact = "No Contact"
	StatusFailed    = "Failed"
)

// Property names of the lead database.
const (
	propName         = "Name"
	propURL          = "URL"
	propDomain       = "Domain"
	propStatus       = "Status"
	propContact      = "Contact"
	propTitle        = "Title"
	propEmail        = "Email"
	propConfidence   = "Confidence"
	propSources      = "Sources"
	propLastEnriched = "Last Enriched"
	propError        = "Error"
)

// Lead is one queued company.
type Lead struct {
	PageID string
	Name   string
	Domain string
}

// QueryAll fetches every page of a database query. The next page is
// requested while the current one is appended.
func QueryAll(ctx context.Context, c Client, dbID string, base *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	request := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if base != nil {
			req.Filter = base.Filter
			req.Sorts = base.Sorts
			req.PageSize = base.PageSize
		}
		return req
	}

	type page struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	fetch := func(cursor notionapi.Cursor) <-chan page {
		ch := make(chan page, 1)
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, request(cursor))
			ch <- page{resp, err}
		}()
		return ch
	}

	var all []notionapi.Page
	next := fetch("")
	for {
		p := <-next
		if p.err != nil {
			return nil, eris.Wrap(p.err, "notion: query all")
		}
		if p.resp.HasMore {
			next = fetch(p.resp.NextCursor)
		}
		all = append(all, p.resp.Results...)
		if !p.resp.HasMore {
			return all, nil
		}
	}
}

// QueuedLeads returns every lead whose Status is Queued. Pages without a
// company name are skipped.
func QueuedLeads(ctx context.Context, c Client, dbID string) ([]Lead, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propStatus,
			Status:   &notionapi.StatusFilterCondition{Equals: StatusQueued},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: query queued leads")
	}

	leads := make([]Lead, 0, len(pages))
	for _, p := range pages {
		if l := LeadFromPage(p); l.Name != "" {
			leads = append(leads, l)
		}
	}
	return leads, nil
}

// LeadFromPage reads the company name and domain from a lead page. The
// domain comes from the Domain text property or, failing that, the host
// of the URL property.
func LeadFromPage(p notionapi.Page) Lead {
	l := Lead{PageID: string(p.ID)}

	if tp, ok := p.Properties[propName].(*notionapi.TitleProperty); ok {
		l.Name = plainText(tp.Title)
	}
	if rp, ok := p.Properties[propDomain].(*notionapi.RichTextProperty); ok {
		l.Domain = plainText(rp.RichText)
	}
	if l.Domain == "" {
		if up, ok := p.Properties[propURL].(*notionapi.URLProperty); ok {
			l.Domain = DomainFromURL(up.URL)
		}
	}
	return l
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// DomainFromURL returns the lower-cased host of raw without a leading
// "www.". Bare domains are accepted.
func DomainFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Outcome is what gets written back to a lead page after enrichment.
type Outcome struct {
	Status     string
	Contact    string
	Title      string
	Email      string
	Confidence float64
	Sources    []string
	Error      string
	At         time.Time
}

// UpdateLead writes o to the lead page.
func UpdateLead(ctx context.Context, c Client, pageID string, o Outcome) error {
	at := notionapi.Date(o.At)
	props := notionapi.Properties{
		propStatus:       notionapi.StatusProperty{Status: notionapi.Status{Name: o.Status}},
		propLastEnriched: notionapi.DateProperty{Date: &notionapi.DateObject{Start: &at}},
	}
	if o.Contact != "" {
		props[propContact] = richText(o.Contact)
		props[propTitle] = richText(o.Title)
		props[propConfidence] = notionapi.NumberProperty{Number: o.Confidence}
		props[propSources] = richText(strings.Join(o.Sources, ", "))
	}
	if o.Email != "" {
		props[propEmail] = notionapi.EmailProperty{Email: o.Email}
	}
	if o.Error != "" {
		msg := o.Error
		if len(msg) > 200 {
			msg = msg[:200]
		}
		props[propError] = richText(msg)
	}

	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: update lead %s to %s", pageID, o.Status))
	}
	return nil
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}
