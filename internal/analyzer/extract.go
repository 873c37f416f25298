package analyzer

import (
	"strings"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/urlnorm"
)

// citation is one cited source from an answer, in citation order. Domain is
// the source's domain or URL; Page is the destination page URL, empty when
// the destination could not be resolved.
type citation struct {
	Domain string
	Page   string
}

// signals holds the brand-visibility fields extracted from one answer.
type signals struct {
	BrandMentioned    bool
	CompanyDomainRank *int
	TopDomain         *string
	MentionedPages    []string
}

// extract derives the run signals from an answer text and its citations.
// Brand mention is a case-insensitive substring match over the company's
// names. Rank is the 1-based position of the first citation whose domain
// suffix-matches the company domain, so subdomains count. Pages are
// canonicalized and deduplicated preserving first-seen order.
func extract(answerText string, citations []citation, company *model.Company) signals {
	var sig signals

	lower := strings.ToLower(answerText)
	for _, name := range company.BrandNames() {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			sig.BrandMentioned = true
			break
		}
	}

	companyDomain := urlnorm.Domain(company.Website)
	seen := make(map[string]struct{})
	for i, c := range citations {
		domain := urlnorm.Domain(c.Domain)
		if i == 0 && domain != "" {
			sig.TopDomain = &domain
		}
		if sig.CompanyDomainRank == nil && companyDomain != "" && urlnorm.IsSuffixMatch(domain, companyDomain) {
			rank := i + 1
			sig.CompanyDomainRank = &rank
		}
		if c.Page == "" {
			continue
		}
		page := urlnorm.Canonicalize(c.Page)
		if page == "" {
			continue
		}
		if _, ok := seen[page]; ok {
			continue
		}
		seen[page] = struct{}{}
		sig.MentionedPages = append(sig.MentionedPages, page)
	}

	return sig
}
