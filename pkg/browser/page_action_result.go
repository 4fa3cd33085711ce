package model

// OpenResult is the outcome of a navigation
type OpenResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// SnapshotResult is a readable rendering of the page, written next to failures
type SnapshotResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}
