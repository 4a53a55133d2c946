package model

import (
	"context"
	"time"
)

// Template is a user's worked example of a formatted announcement.
type Template struct {
	Text        string // the example announcement, markup included
	Description string // free-text notes on the example's structure, may be empty
}

// ExtractionResult is the content pulled out of a raw user message.
// SourceURL is set whenever a URL was found, even if fetching it failed.
type ExtractionResult struct {
	Text      string
	SourceURL string
}

// GenerationRequest carries everything the prompt compiler needs for one run.
type GenerationRequest struct {
	Template     string
	Description  string
	Content      string
	Instructions string // optional per-call notes typed by the user
}

// Prompt is a compiled system/user instruction pair.
type Prompt struct {
	System string
	User   string
}

// Announcement is the finished output of one pipeline run.
type Announcement struct {
	RequestID string
	UserID    string
	Text      string
	SourceURL string
	Fallback  bool // true when Text is the non-AI fallback rendering
	CreatedAt time.Time
}

// TemplateStore maps user IDs to their template.
type TemplateStore interface {
	SetTemplate(userID, text, description string) error
	UpdateDescription(userID, description string) error
	GetTemplate(userID string) (Template, bool, error)
}

// PageFetcher downloads the raw HTML body of a page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Notifier mirrors finished announcements to an external feed.
type Notifier interface {
	Notify(a Announcement) error
}
