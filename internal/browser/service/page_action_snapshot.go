package service

import (
	"context"
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// Snapshot renders the current page as Markdown. It is written next to a
// failed scenario's screenshots so the page state can be read without a browser.
func (p *Session) Snapshot(ctx context.Context) (*model.SnapshotResult, error) {
	if err := p.checkOpen(ctx); err != nil {
		return nil, err
	}

	htmlContent, err := p.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}

	title, err := p.page.Title()
	if err != nil {
		title = ""
		p.logger.Debug("Failed to get title for session %s: %v", p.ID, err)
	}

	markdown, err := HTMLToMarkdown(htmlContent)
	if err != nil {
		return nil, err
	}

	return &model.SnapshotResult{
		URL:      p.page.URL(),
		Title:    title,
		Markdown: markdown,
	}, nil
}

// HTMLToMarkdown converts page HTML to Markdown
func HTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return out, nil
}
