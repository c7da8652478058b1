package classifier

import (
	"testing"

	"leadsync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestExplicitMarkerOverridesHeuristic(t *testing.T) {
	// An explicit creation marker wins even with a sale amount attached.
	ev := &models.CanonicalEvent{
		Kind:         models.KindCreate,
		KindExplicit: true,
		SaleAmount:   1500,
	}
	out := Classify(ev)
	assert.Equal(t, models.KindCreate, out.Kind)
}

func TestAmbiguousEventDefaultsToNewLead(t *testing.T) {
	ev := &models.CanonicalEvent{Kind: models.KindCreate, StatusLabel: "Fez Contato"}
	out := Classify(ev)
	assert.Equal(t, models.KindCreate, out.Kind)
	assert.Empty(t, out.Transition)
}

func TestPositiveSaleAmountImpliesUpdate(t *testing.T) {
	ev := &models.CanonicalEvent{Kind: models.KindCreate, SaleAmount: 900}
	out := Classify(ev)
	assert.Equal(t, models.KindUpdate, out.Kind)
	assert.Equal(t, TransitionSale, out.Transition)
}

func TestDetectTransition(t *testing.T) {
	tests := []struct {
		label  string
		amount float64
		want   string
	}{
		{"Comprou", 0, TransitionSale},
		{"COMPROU - pagamento à vista", 0, TransitionSale},
		{"Venda Realizada", 0, TransitionSale},
		{"Não Comprou", 0, TransitionLoss},
		{"Desqualificado", 0, TransitionLoss},
		{"Sem Interesse", 0, TransitionLoss},
		{"Em Negociação", 0, TransitionIntermediate},
		{"Em Negociação", 500, TransitionSale},
		{"", 0, TransitionIntermediate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectTransition(tt.label, tt.amount), "label=%q", tt.label)
	}
}

func TestDetectProductCampaignBeatsMessage(t *testing.T) {
	got := DetectProduct("Campanha Implante Dezembro", "quero saber sobre clareamento")
	assert.Equal(t, "Implante", got)
}

func TestDetectProductFallsBackToMessage(t *testing.T) {
	got := DetectProduct("", "gostaria de um orçamento de clareamento")
	assert.Equal(t, "Clareamento", got)
}

func TestDetectProductNoMatchIsEmpty(t *testing.T) {
	assert.Empty(t, DetectProduct("generic campaign", "hello"))
}

func TestIsPaid(t *testing.T) {
	assert.False(t, IsPaid("Orgânico"))
	assert.False(t, IsPaid("indicação de paciente"))
	assert.True(t, IsPaid("Facebook Ads"))
	// Unknown sources stay in rather than silently dropping leads.
	assert.True(t, IsPaid(""))
}
