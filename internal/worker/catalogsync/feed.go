package catalogsync

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/scholarship"
	"github.com/hitoshi/showcase/internal/security"
)

// feedItemsToScholarships はフィード記事を奨学金に変換する。
//   - タイトル → 名称・プログラム名
//   - リンク（なければGUID） → external_id
//   - 説明 → 無害化した説明文
//   - 独自要素 deadline / country / degree / university があれば使う
//
// external_idを決められない記事は除外する。
func feedItemsToScholarships(items []*gofeed.Item, source string, sanitizer security.ListingSanitizer, now time.Time) []*model.Scholarship {
	out := make([]*model.Scholarship, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		externalID := strings.TrimSpace(item.Link)
		if externalID == "" {
			externalID = strings.TrimSpace(item.GUID)
		}
		if externalID == "" {
			continue
		}

		name := sanitizer.PlainText(item.Title)
		if name == "" {
			name = "Untitled Scholarship"
		}
		description := item.Description
		if description == "" {
			description = item.Content
		}

		country := sanitizer.PlainText(custom(item, "country"))
		if country == "" {
			country = scholarship.DefaultCountry
		}
		degree := sanitizer.PlainText(custom(item, "degree"))

		image := scholarship.PlaceholderImage
		if item.Image != nil && sanitizer.ImageURL(item.Image.URL) {
			image = item.Image.URL
		}

		requirements := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c = sanitizer.PlainText(c); c != "" {
				requirements = append(requirements, c)
			}
		}

		out = append(out, &model.Scholarship{
			ExternalID:   externalID,
			Source:       source,
			Name:         name,
			Description:  sanitizer.Description(description),
			Country:      country,
			Level:        orUnknown(degree),
			FundingType:  "Unknown",
			ImageURL:     image,
			Requirements: requirements,
			Deadline:     strings.TrimSpace(custom(item, "deadline")),
			Degree:       degree,
			Program:      name,
			University:   sanitizer.PlainText(custom(item, "university")),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out
}

// custom はRSSの独自要素の値を返す。
func custom(item *gofeed.Item, key string) string {
	if item.Custom == nil {
		return ""
	}
	return item.Custom[key]
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
