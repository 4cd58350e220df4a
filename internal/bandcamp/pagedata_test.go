package bandcamp

import (
	"errors"
	"html"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageDataBlob(t *testing.T) {
	blob := `{"fan_data":{"fan_id":42}}`
	page := `<!DOCTYPE html><html><head><title>x</title></head><body>` +
		`<div id="other" data-blob="nope"></div>` +
		`<div id="pagedata" data-blob="` + html.EscapeString(blob) + `"></div>` +
		`</body></html>`

	got, err := pageDataBlob(strings.NewReader(page))
	require.NoError(t, err)
	// The tokenizer hands attribute values back unescaped.
	assert.Equal(t, blob, got)
}

func TestPageDataBlobMissing(t *testing.T) {
	_, err := pageDataBlob(strings.NewReader(`<html><body><p>not a fan page</p></body></html>`))
	assert.True(t, errors.Is(err, ErrPage))
}

func TestScanItemPage(t *testing.T) {
	props := `{"item_type":"a","item_id":321}`
	blob := `{"thumbs":[],"more_thumbs_available":false,"shown_thumbs":[]}`
	page := `<!DOCTYPE html><html><head>` +
		`<meta name="bc-page-properties" content="` + html.EscapeString(props) + `">` +
		`</head><body>` +
		`<div id="collectors-data" data-blob="` + html.EscapeString(blob) + `"></div>` +
		`</body></html>`

	blobs := scanItemPage(strings.NewReader(page))
	assert.Equal(t, blob, blobs.collectorsData)
	assert.Equal(t, props, blobs.pageProps)
	assert.False(t, blobs.subscription)
}

func TestScanItemPageSubscription(t *testing.T) {
	page := `<html><body><div id="subscription-collectors-data" data-blob="{}"></div></body></html>`

	blobs := scanItemPage(strings.NewReader(page))
	assert.Empty(t, blobs.collectorsData)
	assert.True(t, blobs.subscription)
}

func TestItemPagePageProperties(t *testing.T) {
	p := &ItemPage{RawPageProperties: `{"item_type":"a","item_id":321}`}
	props, err := p.PageProperties()
	require.NoError(t, err)
	assert.Equal(t, PageProperties{ItemType: "a", ItemID: 321}, props)

	// Pages that finish on the inline thumbs never carry the meta tag;
	// asking for it anyway is a page-structure error.
	empty := &ItemPage{}
	_, err = empty.PageProperties()
	assert.True(t, errors.Is(err, ErrPage))
}
