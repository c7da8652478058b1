package normalizer

import (
	"net/url"
	"testing"
	"time"

	"leadsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLegacyAndLiveShapesAgree(t *testing.T) {
	legacy := []byte(`{
		"instanceId": "inst-42",
		"moment": "2025-03-10T14:30:00",
		"chatName": "Maria Silva",
		"phone": "+55 (11) 99208-3378"
	}`)
	live := []byte(`{
		"account": {"code": "inst-42"},
		"created_isoformat": "2025-03-10T14:30:00",
		"name": "Maria Silva",
		"phone": "5511992083378",
		"status": {"id": 7, "name": "Fez Contato"}
	}`)

	a, err := Chat(legacy)
	require.NoError(t, err)
	b, err := Chat(live)
	require.NoError(t, err)

	assert.Equal(t, a.Phone, b.Phone)
	assert.Equal(t, a.DisplayName, b.DisplayName)
	assert.True(t, a.OccurredAt.Equal(b.OccurredAt))
	assert.Equal(t, "inst-42", a.TenantHint)
	assert.Equal(t, "Fez Contato", b.StatusLabel)
	assert.Equal(t, "7", b.StatusID)
}

func TestChatExplicitKindMarker(t *testing.T) {
	body := []byte(`{"account":{"code":"x"},"phone":"5511988887777","type":"lead_updated"}`)
	ev, err := Chat(body)
	require.NoError(t, err)
	assert.Equal(t, models.KindUpdate, ev.Kind)
	assert.True(t, ev.KindExplicit)
}

func TestChatLegacyHasNoMarker(t *testing.T) {
	body := []byte(`{"instanceId":"inst-1","phone":"5511988887777"}`)
	ev, err := Chat(body)
	require.NoError(t, err)
	assert.False(t, ev.KindExplicit)
}

func TestChatRejectsWhenPhoneAndInstanceAbsent(t *testing.T) {
	_, err := Chat([]byte(`{"chatName":"ghost"}`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestChatDefaultsMissingDateToNow(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ev, err := Chat([]byte(`{"instanceId":"i","phone":"5511988887777"}`))
	require.NoError(t, err)
	assert.True(t, ev.OccurredAt.After(before))
}

func TestPhoneTailMatching(t *testing.T) {
	assert.True(t, SamePhone("5511992083378", "(11)99208-3378"))
	assert.True(t, SamePhone("11992083378", "+55 11 99208-3378"))
	assert.False(t, SamePhone("5511992083378", "(11)99208-0000"))
	assert.False(t, SamePhone("", "5511992083378"))
}

func TestPhoneTailToleratesMissingNinthDigit(t *testing.T) {
	// Older cells may predate the extra mobile digit.
	assert.True(t, SamePhone("5511992083378", "(11)9208-3378"))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "(11)99208-3378", FormatPhone("5511992083378"))
	assert.Equal(t, "(11)3208-3378", FormatPhone("1132083378"))
}

func TestPipelineCreateEvent(t *testing.T) {
	form := url.Values{}
	form.Set("account[id]", "777")
	form.Set("leads[add][0][id]", "9001")
	form.Set("leads[add][0][name]", "João Pereira")
	form.Set("leads[add][0][created_at]", "2025-03-10 09:00:00")
	form.Set("leads[add][0][custom_fields][0][code]", "PHONE")
	form.Set("leads[add][0][custom_fields][0][values][0][value]", "+55 11 99208-3378")
	form.Set("leads[add][0][custom_fields][1][name]", "Fonte de Prospecção")
	form.Set("leads[add][0][custom_fields][1][values][0][value]", "Facebook Ads")

	ev, err := Pipeline(form)
	require.NoError(t, err)
	assert.Equal(t, models.SourcePipeline, ev.Source)
	assert.Equal(t, models.KindCreate, ev.Kind)
	assert.True(t, ev.KindExplicit)
	assert.Equal(t, "777", ev.TenantHint)
	assert.Equal(t, "5511992083378", ev.Phone)
	assert.Equal(t, "João Pereira", ev.DisplayName)
	assert.Equal(t, "Facebook Ads", ev.LeadSource)
}

func TestPipelineStatusEventIsUpdate(t *testing.T) {
	form := url.Values{}
	form.Set("account[subdomain]", "acme")
	form.Set("leads[status][0][id]", "9001")
	form.Set("leads[status][0][status_id]", "142")
	form.Set("leads[status][0][sale]", "1500")
	form.Set("leads[status][0][custom_fields][0][code]", "PHONE")
	form.Set("leads[status][0][custom_fields][0][values][0][value]", "5511992083378")

	ev, err := Pipeline(form)
	require.NoError(t, err)
	assert.Equal(t, models.KindUpdate, ev.Kind)
	assert.Equal(t, "142", ev.StatusID)
	assert.Equal(t, float64(1500), ev.SaleAmount)
}

func TestPipelinePhoneFromContactsGroup(t *testing.T) {
	form := url.Values{}
	form.Set("account[id]", "777")
	form.Set("leads[add][0][name]", "Sem Telefone no Lead")
	form.Set("contacts[add][0][custom_fields][0][code]", "PHONE")
	form.Set("contacts[add][0][custom_fields][0][values][0][value]", "(11)98877-6655")

	ev, err := Pipeline(form)
	require.NoError(t, err)
	assert.Equal(t, "11988776655", ev.Phone)
}

func TestPipelineRejectsEmptyBody(t *testing.T) {
	_, err := Pipeline(url.Values{})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAsSequenceCoercesBothShapes(t *testing.T) {
	arr := []any{map[string]any{"v": "a"}, map[string]any{"v": "b"}}
	numeric := map[string]any{
		"1": map[string]any{"v": "b"},
		"0": map[string]any{"v": "a"},
	}

	fromArr := asSequence(arr)
	fromMap := asSequence(numeric)
	require.Len(t, fromArr, 2)
	require.Len(t, fromMap, 2)
	assert.Equal(t, fromArr[0]["v"], fromMap[0]["v"])
	assert.Equal(t, fromArr[1]["v"], fromMap[1]["v"])
}

func TestCustomFieldCodeBeatsName(t *testing.T) {
	fields := []map[string]any{
		{"name": "PHONE", "values": map[string]any{"0": map[string]any{"value": "by-name"}}},
		{"code": "PHONE", "values": map[string]any{"0": map[string]any{"value": "by-code"}}},
	}
	assert.Equal(t, "by-code", customField(fields, "PHONE"))
}
