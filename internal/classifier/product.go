package classifier

import "strings"

// ProductRule names a product and the keywords that imply it. Rules are
// evaluated in order and the first match wins.
type ProductRule struct {
	Name     string
	Keywords []string
}

// DefaultProductRules covers the campaigns the operators currently run.
// Campaign metadata is consulted before free-text message content.
var DefaultProductRules = []ProductRule{
	{Name: "Implante", Keywords: []string{"implante", "implantes"}},
	{Name: "Ortodontia", Keywords: []string{"ortodontia", "aparelho", "invisalign"}},
	{Name: "Harmonização", Keywords: []string{"harmonização", "harmonizacao", "botox", "preenchimento"}},
	{Name: "Clareamento", Keywords: []string{"clareamento"}},
	{Name: "Prótese", Keywords: []string{"prótese", "protese"}},
	{Name: "Avaliação", Keywords: []string{"avaliação", "avaliacao", "consulta"}},
}

// DetectProduct infers a product from campaign metadata first, then message
// content. No match yields an empty product; nothing is ever fabricated.
func DetectProduct(campaign, message string) string {
	for _, text := range []string{campaign, message} {
		lowered := strings.ToLower(text)
		if lowered == "" {
			continue
		}
		for _, rule := range DefaultProductRules {
			for _, kw := range rule.Keywords {
				if strings.Contains(lowered, kw) {
					return rule.Name
				}
			}
		}
	}
	return ""
}
