package feedfetch

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// entry is one normalized feed item regardless of envelope dialect.
type entry struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
}

type rssEnvelope struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Date        string `xml:"date"`
}

type atomEnvelope struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// parseFeed decodes an RSS 2.0 or Atom document into normalized entries.
func parseFeed(data []byte) ([]entry, error) {
	var rss rssEnvelope
	if err := xml.Unmarshal(data, &rss); err == nil && len(rss.Channel.Items) > 0 {
		entries := make([]entry, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			entries = append(entries, entry{
				Title:       strings.TrimSpace(item.Title),
				Link:        strings.TrimSpace(item.Link),
				Summary:     strings.TrimSpace(item.Description),
				PublishedAt: parseFeedTime(item.PubDate, item.Date),
			})
		}
		return entries, nil
	}

	var atom atomEnvelope
	if err := xml.Unmarshal(data, &atom); err == nil && len(atom.Entries) > 0 {
		entries := make([]entry, 0, len(atom.Entries))
		for _, item := range atom.Entries {
			summary := strings.TrimSpace(item.Summary)
			if summary == "" {
				summary = strings.TrimSpace(item.Content)
			}
			entries = append(entries, entry{
				Title:       strings.TrimSpace(item.Title),
				Link:        atomEntryLink(item.Links),
				Summary:     summary,
				PublishedAt: parseFeedTime(item.Published, item.Updated),
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("document is neither RSS nor Atom, or contains no items")
}

func atomEntryLink(links []atomLink) string {
	for _, link := range links {
		if link.Rel == "alternate" || link.Rel == "" {
			return strings.TrimSpace(link.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

// feedTimeLayouts covers the date formats seen across real feeds.
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

func parseFeedTime(values ...string) *time.Time {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		for _, layout := range feedTimeLayouts {
			if parsed, err := time.Parse(layout, value); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		}
	}
	return nil
}
