// Package classifier decides what a canonical event means for the sheet: a
// new lead row or a status transition, and in the latter case whether the
// transition is a sale, a loss, or an intermediate step.
package classifier

import (
	"strings"

	"leadsync/internal/models"
)

// Transition sub-classification of a status update.
const (
	TransitionSale         = "sale"
	TransitionLoss         = "loss"
	TransitionIntermediate = "intermediate"
)

// Outcome is the classification result the worker acts on.
type Outcome struct {
	Kind       string
	Transition string
	Product    string
	Paid       bool
}

// Keyword sets are matched as case-insensitive substrings against the status
// label. Loss is checked first so "não comprou" never reads as a sale.
var (
	lossKeywords = []string{
		"não comprou",
		"nao comprou",
		"perdido",
		"perdeu",
		"desqualificado",
		"sem interesse",
		"desistiu",
	}
	saleKeywords = []string{
		"comprou",
		"vendido",
		"venda realizada",
		"ganho",
		"fechou",
	}
	organicKeywords = []string{
		"orgânico",
		"organico",
		"indicação",
		"indicacao",
		"boca a boca",
	}
)

// Classify applies the transition rules in priority order: an explicit source
// marker is trusted unconditionally; otherwise only a positive sale amount
// turns an ambiguous event into a status update.
func Classify(ev *models.CanonicalEvent) Outcome {
	out := Outcome{Paid: IsPaid(ev.LeadSource)}

	if ev.KindExplicit {
		out.Kind = ev.Kind
	} else if ev.HasSale() {
		out.Kind = models.KindUpdate
	} else {
		out.Kind = models.KindCreate
	}

	if out.Kind == models.KindUpdate {
		out.Transition = DetectTransition(ev.StatusLabel, ev.SaleAmount)
	}

	out.Product = DetectProduct(ev.Campaign, ev.Message)
	return out
}

// DetectTransition classifies a status label. A positive sale amount counts
// as a sale even when the label is unrecognized.
func DetectTransition(statusLabel string, saleAmount float64) string {
	label := strings.ToLower(statusLabel)

	for _, kw := range lossKeywords {
		if strings.Contains(label, kw) {
			return TransitionLoss
		}
	}
	for _, kw := range saleKeywords {
		if strings.Contains(label, kw) {
			return TransitionSale
		}
	}
	if saleAmount > 0 {
		return TransitionSale
	}
	return TransitionIntermediate
}

// IsPaid gates pipeline events on the prospecting source. Only an explicit
// organic marker excludes a lead; unknown or empty sources stay in, since
// dropping a paid lead is worse than keeping an unclassified one.
func IsPaid(leadSource string) bool {
	source := strings.ToLower(leadSource)
	for _, kw := range organicKeywords {
		if strings.Contains(source, kw) {
			return false
		}
	}
	return true
}
