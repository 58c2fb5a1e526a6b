package distribution

// specialtyByProductTag maps a lead's product-interest tags to the coarse
// specialty categories declared on team members. Tags without an entry do
// not contribute a category; a lead whose tags derive no category is simply
// routed by load.
var specialtyByProductTag = map[string]string{
	"pj-registration":     "pj",
	"pj-migration":        "pj",
	"company-opening":     "pj",
	"mei-registration":    "mei",
	"mei-upgrade":         "mei",
	"bookkeeping":         "accounting",
	"accounting-monthly":  "accounting",
	"payroll":             "accounting",
	"tax-review":          "tax",
	"tax-planning":        "tax",
	"digital-certificate": "certificate",
}

// DeriveCategories resolves a lead's product tags into specialty categories,
// preserving first-seen order and dropping duplicates.
func DeriveCategories(productTags []string) []string {
	seen := make(map[string]struct{}, len(productTags))
	categories := make([]string, 0, len(productTags))
	for _, tag := range productTags {
		category, ok := specialtyByProductTag[tag]
		if !ok {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	return categories
}

func hasSpecialty(memberSpecialties, categories []string) bool {
	for _, s := range memberSpecialties {
		for _, c := range categories {
			if s == c {
				return true
			}
		}
	}
	return false
}
