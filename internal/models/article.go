package models

// ArticleContent is the structured result of a successful fetch+extract.
// It is created once per task and never mutated afterwards.
type ArticleContent struct {
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Author      string   `json:"author,omitempty"`
	Date        string   `json:"date,omitempty"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	SiteName    string   `json:"sitename,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Images      []string `json:"images,omitempty"`
	Language    string   `json:"language,omitempty"`
}
