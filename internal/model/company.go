package model

import (
	"strings"
	"time"
)

// Company is a tracked brand whose visibility is being monitored.
type Company struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// NameAliases are alternative brand spellings matched alongside Name.
	NameAliases []string `json:"name_aliases,omitempty"`
	Website     string   `json:"website"`
	// LLMUnderstanding is the serialized site summary produced by the crawl
	// pipeline's content-understanding step.
	LLMUnderstanding string `json:"llm_understanding"`
	Products         string `json:"products,omitempty"`
	// IsPlaceholder marks companies created only to back a competitor link.
	IsPlaceholder bool      `json:"is_placeholder"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BrandNames returns every name that counts as a brand mention: the company
// name, the name with spaces stripped, and all aliases.
func (c *Company) BrandNames() []string {
	names := []string{c.Name, strings.ReplaceAll(c.Name, " ", "")}
	names = append(names, c.NameAliases...)
	return names
}

// PromptBlock renders the company as tagged text chunks for inclusion in an
// LLM prompt, skipping empty fields.
func (c *Company) PromptBlock() string {
	var chunks []string
	if c.Name != "" {
		chunks = append(chunks, "<company-name>"+c.Name+"</company-name>")
	}
	if c.Description != "" {
		chunks = append(chunks, "<company-description>"+c.Description+"</company-description>")
	}
	if c.Products != "" {
		chunks = append(chunks, "<main-products>"+c.Products+"</main-products>")
	}
	if c.Website != "" {
		chunks = append(chunks, "<website>"+c.Website+"</website>")
	}
	return strings.Join(chunks, "\n")
}

// Competitor is a directional company-to-competitor link. Company A listing B
// as a competitor does not imply the reverse.
type Competitor struct {
	ID           int64   `json:"id"`
	CompanyID    int64   `json:"company_id"`
	CompetitorID int64   `json:"competitor_id"`
	Weight       float64 `json:"weight"` // 0 if the user marks it a non-competitor
}

// SiteSummary is the structured company profile extracted from a crawled site.
type SiteSummary struct {
	CompanyName        string   `json:"company_name"`
	CompanyDescription string   `json:"company_description"`
	MainProducts       []string `json:"main_products"`
}

// ProductsText renders main products as a bulleted list for storage on the
// company record.
func (s *SiteSummary) ProductsText() string {
	lines := make([]string, 0, len(s.MainProducts))
	for _, p := range s.MainProducts {
		lines = append(lines, "- "+p)
	}
	return strings.Join(lines, "\n")
}
