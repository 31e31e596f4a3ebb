package catalogsync

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Format は同期元レスポンスの形式。
type Format string

const (
	// FormatJSON はカタログ行のJSON配列。
	FormatJSON Format = "json"
	// FormatFeed はRSS/Atomフィード。
	FormatFeed Format = "feed"
	// FormatHTML はフィードリンクを探すHTMLページ。
	FormatHTML Format = "html"
	// FormatUnknown は扱えない形式。
	FormatUnknown Format = "unknown"
)

var feedContentTypes = map[string]struct{}{
	"application/rss+xml":  {},
	"application/atom+xml": {},
}

var xmlContentTypes = map[string]struct{}{
	"text/xml":        {},
	"application/xml": {},
}

// DetectFormat はContent-Typeとボディ先頭からレスポンスの形式を判定する。
// Content-Typeが汎用的な場合（text/plain や application/octet-stream）はボディで判断する。
func DetectFormat(contentType string, body []byte) Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	if _, ok := feedContentTypes[mediaType]; ok {
		return FormatFeed
	}
	if mediaType == "application/json" || isJSONArray(body) {
		return FormatJSON
	}
	if _, ok := xmlContentTypes[mediaType]; ok && isRSSOrAtomXML(body) {
		return FormatFeed
	}
	if strings.Contains(mediaType, "html") {
		return FormatHTML
	}
	if isRSSOrAtomXML(body) {
		return FormatFeed
	}
	return FormatUnknown
}

func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n\xef\xbb\xbf")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// isRSSOrAtomXML はXMLボディの先頭4KBを解析してRSS/Atomフィードかを判定する。
func isRSSOrAtomXML(body []byte) bool {
	checkSize := min(len(body), 4096)
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// FeedLink はHTMLから検出されたフィードリンク。
type FeedLink struct {
	URL   string
	Atom  bool
	Title string
}

// FeedLinksFromHTML はHTMLのheadから rel="alternate" のRSS/Atomリンクを抽出する。
// 相対URLはbaseURLを基準に絶対URLに解決する。
func FeedLinksFromHTML(body []byte, baseURL string) []FeedLink {
	var links []FeedLink

	base, err := url.Parse(baseURL)
	if err != nil {
		return links
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if _, ok := feedContentTypes[linkType]; !ok {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, FeedLink{
				URL:   base.ResolveReference(ref).String(),
				Atom:  linkType == "application/atom+xml",
				Title: title,
			})

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return links
			}
		}
	}
}

// SelectFeed は候補から同期に使うフィードを選ぶ。
// 優先順位: 同一ホスト > Atom > 先頭
func SelectFeed(links []FeedLink, pageURL string) (FeedLink, bool) {
	if len(links) == 0 {
		return FeedLink{}, false
	}

	pageHost := hostOf(pageURL)
	bestIdx, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return links[bestIdx], true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
