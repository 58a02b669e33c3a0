package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ImportLeads queues leads in the database, skipping leads without a name
// and repeated domains. It returns the number of pages created.
func ImportLeads(ctx context.Context, c Client, dbID string, leads []Lead) (int, error) {
	seen := make(map[string]struct{}, len(leads))
	created := 0
	for _, l := range leads {
		name := strings.Trim(strings.TrimSpace(l.Name), `"`)
		if name == "" {
			continue
		}
		domain := DomainFromURL(l.Domain)
		dedupe := domain
		if dedupe == "" {
			dedupe = strings.ToLower(name)
		}
		if _, dup := seen[dedupe]; dup {
			continue
		}
		seen[dedupe] = struct{}{}

		if err := ctx.Err(); err != nil {
			return created, eris.Wrap(err, "notion: import leads cancelled")
		}
		if _, err := c.CreatePage(ctx, leadPage(dbID, name, domain)); err != nil {
			return created, eris.Wrapf(err, "notion: create lead %s", name)
		}
		created++
	}
	return created, nil
}

func leadPage(dbID, name, domain string) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		propName: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: name}},
			},
		},
		propStatus: notionapi.StatusProperty{Status: notionapi.Status{Name: StatusQueued}},
	}
	if domain != "" {
		props[propDomain] = richText(domain)
		props[propURL] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: "https://" + domain}
	}
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	}
}
