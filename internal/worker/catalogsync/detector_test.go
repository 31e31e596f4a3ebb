package catalogsync

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Format
	}{
		{"JSON", "application/json; charset=utf-8", `[{"university":"Tokyo"}]`, FormatJSON},
		{"JSON配列（汎用Content-Type）", "text/plain", "\n  [ ]", FormatJSON},
		{"RSS", "application/rss+xml", "", FormatFeed},
		{"Atom", "application/atom+xml; charset=utf-8", "", FormatFeed},
		{"XMLのRSS", "text/xml", `<?xml version="1.0"?><rss version="2.0"></rss>`, FormatFeed},
		{"XMLのAtom", "application/xml", `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, FormatFeed},
		{"フィードでないXML", "application/xml", `<note></note>`, FormatUnknown},
		{"HTML", "text/html; charset=utf-8", `<html></html>`, FormatHTML},
		{"Content-Typeなしのフィード", "", `<rss version="2.0"></rss>`, FormatFeed},
		{"不明", "image/png", "\x89PNG", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeedLinksFromHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html><head>
<title>Scholarships</title>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" title="RSS" href="/feed.xml">
<link rel="alternate" type="application/atom+xml" title="Atom" href="https://cdn.example.net/atom.xml">
<link rel="alternate" type="text/html" href="/en">
</head><body>
<link rel="alternate" type="application/rss+xml" href="/ignored.xml">
</body></html>`

	links := FeedLinksFromHTML([]byte(page), "https://scholarships.example.com/list")
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2: %+v", len(links), links)
	}
	if links[0].URL != "https://scholarships.example.com/feed.xml" || links[0].Atom {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].URL != "https://cdn.example.net/atom.xml" || !links[1].Atom || links[1].Title != "Atom" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestSelectFeed(t *testing.T) {
	page := "https://scholarships.example.com/list"

	t.Run("候補なし", func(t *testing.T) {
		if _, ok := SelectFeed(nil, page); ok {
			t.Error("expected no selection")
		}
	})

	t.Run("同一ホストを優先", func(t *testing.T) {
		got, _ := SelectFeed([]FeedLink{
			{URL: "https://cdn.example.net/atom.xml", Atom: true},
			{URL: "https://scholarships.example.com/feed.xml"},
		}, page)
		if got.URL != "https://scholarships.example.com/feed.xml" {
			t.Errorf("got %s", got.URL)
		}
	})

	t.Run("同一ホスト内ではAtomを優先", func(t *testing.T) {
		got, _ := SelectFeed([]FeedLink{
			{URL: "https://scholarships.example.com/rss.xml"},
			{URL: "https://scholarships.example.com/atom.xml", Atom: true},
		}, page)
		if got.URL != "https://scholarships.example.com/atom.xml" {
			t.Errorf("got %s", got.URL)
		}
	})

	t.Run("同点なら先頭", func(t *testing.T) {
		got, _ := SelectFeed([]FeedLink{
			{URL: "https://a.example.org/rss.xml"},
			{URL: "https://b.example.org/rss.xml"},
		}, page)
		if got.URL != "https://a.example.org/rss.xml" {
			t.Errorf("got %s", got.URL)
		}
	})
}
