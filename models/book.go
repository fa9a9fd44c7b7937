// Package models defines data structures for the scraper.
package models

import "time"

// Book is one product scraped from a catalogue page. It is passed by value,
// so every record owns its fields.
type Book struct {
	Title    string `json:"book_title"`
	ImageURL string `json:"image"`
	Price    string `json:"price"`
	InStock  string `json:"in_stock"`
	Rating   string `json:"rating"`
}

// RunResult holds the overall result of one scrape run.
type RunResult struct {
	RunID         string
	StartTime     time.Time
	EndTime       time.Time
	PageCount     int
	RecordCount   int
	ObjectURI     string
	ReaperOutcome string
}

// Duration reports how long the run took.
func (r *RunResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
