package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestImportLeads_DedupesAndSkipsNameless(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var created []*notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) { created = append(created, args.Get(1).(*notionapi.PageCreateRequest)) }).
		Return(&notionapi.Page{}, nil)

	n, err := ImportLeads(ctx, mc, "db-1", []Lead{
		{Name: `"Acme Corp"`, Domain: "https://www.acme.com"},
		{Name: "Acme Duplicate", Domain: "acme.com"},
		{Name: "", Domain: "nameless.com"},
		{Name: "No Domain Co"},
		{Name: "no domain co"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, created, 2)

	first := created[0]
	assert.Equal(t, notionapi.DatabaseID("db-1"), first.Parent.DatabaseID)
	assert.Equal(t, "Acme Corp", first.Properties[propName].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.Equal(t, StatusQueued, first.Properties[propStatus].(notionapi.StatusProperty).Status.Name)
	assert.Equal(t, "https://acme.com", first.Properties[propURL].(notionapi.URLProperty).URL)
	assert.Equal(t, "acme.com", first.Properties[propDomain].(notionapi.RichTextProperty).RichText[0].Text.Content)

	assert.NotContains(t, created[1].Properties, propURL)
}

func TestImportLeads_CreateError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError).Once()

	n, err := ImportLeads(ctx, mc, "db-1", []Lead{{Name: "Acme", Domain: "acme.com"}})
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "notion: create lead Acme")
}

func TestImportLeads_Cancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := ImportLeads(ctx, mc, "db-1", []Lead{{Name: "Acme", Domain: "acme.com"}})
	assert.Error(t, err)
	assert.Zero(t, n)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}
