// Package notify renders backend notification payloads for terminal and
// tool output. Notification bodies arrive as HTML fragments; they are
// stripped down and converted to markdown.
package notify

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// Notification is the backend notification shape.
type Notification struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"` // HTML fragment
	Category  string          `json:"category,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// Rendered is a notification body reduced to markdown plus extracted links.
type Rendered struct {
	Title    string
	Markdown string
	Links    []string
}

// Render converts one notification's HTML body to markdown. Invisible and
// interactive elements are dropped first; anchors are collected before
// removal so the link list survives the conversion.
func Render(n Notification) (Rendered, error) {
	out := Rendered{Title: strings.TrimSpace(n.Title)}
	body := strings.TrimSpace(n.Body)
	if body == "" {
		return out, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(body)))
	if err != nil {
		return out, err
	}
	doc.Find("script, style, noscript, iframe, img, svg, form, input, button").Remove()

	linkSet := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil || u.Scheme == "javascript" || u.Scheme == "mailto" {
			return
		}
		linkSet[u.String()] = struct{}{}
	})
	out.Links = make([]string, 0, len(linkSet))
	for l := range linkSet {
		out.Links = append(out.Links, l)
	}
	sort.Strings(out.Links)

	htmlStr, err := doc.Html()
	if err != nil {
		return out, err
	}
	markdown, err := htmltomarkdown.ConvertString(htmlStr)
	if err != nil {
		// Fall back to the visible text when conversion chokes.
		out.Markdown = strings.Join(strings.Fields(doc.Text()), " ")
		return out, nil
	}
	out.Markdown = strings.TrimSpace(markdown)
	return out, nil
}

// RenderList formats notifications as one markdown document, unread first.
func RenderList(items []Notification) (string, error) {
	sorted := append([]Notification(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Read != sorted[j].Read {
			return !sorted[i].Read
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder
	for _, n := range sorted {
		r, err := Render(n)
		if err != nil {
			return "", err
		}
		sb.WriteString("## ")
		if !n.Read {
			sb.WriteString("[unread] ")
		}
		sb.WriteString(r.Title)
		sb.WriteString("\n\n")
		if r.Markdown != "" {
			sb.WriteString(r.Markdown)
			sb.WriteString("\n\n")
		}
		for _, l := range r.Links {
			sb.WriteString("- ")
			sb.WriteString(l)
			sb.WriteString("\n")
		}
		if len(r.Links) > 0 {
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}
