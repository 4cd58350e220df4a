package bandcamp

import (
	"errors"
	"io"

	"golang.org/x/net/html"
)

// The scraped payloads live in attributes of known elements, so a flat
// token walk is enough; no DOM is ever built.

// pageDataBlob returns the data-blob attribute of the id="pagedata"
// element, present on every fan page.
func pageDataBlob(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", clientErr(KindPage, "scan fan page", errors.New("no pagedata element"))
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if attrValue(t, "id") != "pagedata" {
				continue
			}
			if blob := attrValue(t, "data-blob"); blob != "" {
				return blob, nil
			}
			return "", clientErr(KindPage, "scan fan page", errors.New("pagedata element without data-blob"))
		}
	}
}

type itemBlobs struct {
	collectorsData string
	subscription   bool
	pageProps      string
}

// scanItemPage walks an item page and collects every payload the item
// crawl might need. Which of them are required depends on how far the
// pagination goes, so absence is judged by the caller.
func scanItemPage(r io.Reader) itemBlobs {
	var blobs itemBlobs
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return blobs
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch attrValue(t, "id") {
			case "collectors-data":
				blobs.collectorsData = attrValue(t, "data-blob")
			case "subscription-collectors-data":
				blobs.subscription = true
			}
			if t.Data == "meta" && attrValue(t, "name") == "bc-page-properties" {
				blobs.pageProps = attrValue(t, "content")
			}
		}
	}
}

func attrValue(t html.Token, key string) string {
	for _, attr := range t.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
