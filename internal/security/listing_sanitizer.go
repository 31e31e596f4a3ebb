// Package security は出品データと外部取得データの安全性を担保する。
//
// ListingSanitizer は商品説明・奨学金説明などの管理者入力や同期元から
// 取り込んだテキストを、bluemondayの許可リストポリシーで無害化する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ListingSanitizer は出品テキストの無害化を行う。
type ListingSanitizer interface {
	// Description は説明文に許可された書式タグのみを残したHTMLを返す。
	Description(raw string) string

	// PlainText は全てのタグを除去し、前後の空白を取り除いた文字列を返す。
	// 名称・国名・学位など書式を持たないフィールドに使用する。
	PlainText(raw string) string

	// ImageURL は画像URLとして受け入れ可能な値かを判定する。
	// https の絶対URLと data:image/ で始まるデータURIのみ許可する。
	ImageURL(raw string) bool
}

type listingSanitizer struct {
	description *bluemonday.Policy
	strict      *bluemonday.Policy
}

// NewListingSanitizer は説明文用と平文用の2つのポリシーを構築する。
//
// 説明文ポリシー:
//   - 許可タグ: p, br, ul, ol, li, strong, em, a
//   - aタグのhrefは https/http の絶対URLのみ、target="_blank" と rel="noopener noreferrer" を付与
//   - img, script, iframe, style および on* 属性は除去
func NewListingSanitizer() *listingSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &listingSanitizer{
		description: p,
		strict:      bluemonday.StrictPolicy(),
	}
}

func (s *listingSanitizer) Description(raw string) string {
	return strings.TrimSpace(s.description.Sanitize(raw))
}

func (s *listingSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

func (s *listingSanitizer) ImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "data:image/") {
		return strings.Contains(raw, ";base64,")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}
