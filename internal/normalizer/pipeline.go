package normalizer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"leadsync/internal/models"

	"github.com/google/uuid"
)

// Pipeline normalizes a pipeline-CRM delivery. The body arrives form-encoded
// with bracketed group keys (leads[add][0][name]=...); it is decoded into a
// tree once, coerced into plain sequences, and never branched on again.
func Pipeline(form url.Values) (*models.CanonicalEvent, error) {
	tree := decodeForm(form)

	leads, _ := tree["leads"].(map[string]any)
	contacts, _ := tree["contacts"].(map[string]any)
	if leads == nil && contacts == nil {
		return nil, fmt.Errorf("%w: no leads or contacts groups", ErrInvalidPayload)
	}

	// One delivery carries one group; add wins over status over update so a
	// combined delivery is treated as the creation it announces.
	var lead map[string]any
	kind := models.KindUpdate
	for _, group := range []struct {
		name string
		kind string
	}{
		{"add", models.KindCreate},
		{"status", models.KindUpdate},
		{"update", models.KindUpdate},
	} {
		if items := asSequence(leads[group.name]); len(items) > 0 {
			lead = items[0]
			kind = group.kind
			break
		}
	}
	if lead == nil {
		if items := anyContactItems(contacts); len(items) > 0 {
			lead = items[0]
		} else {
			return nil, fmt.Errorf("%w: empty lead groups", ErrInvalidPayload)
		}
	}

	fields := asSequence(lead["custom_fields"])
	phone := firstNonEmpty(
		customField(fields, "PHONE", "telefone", "fone"),
		contactPhone(contacts),
	)
	phone = DigitsOnly(phone)

	account, _ := tree["account"].(map[string]any)
	hint := firstNonEmpty(
		str(account["id"]),
		str(account["subdomain"]),
		str(lead["pipeline_id"]),
	)
	if phone == "" && hint == "" {
		return nil, fmt.Errorf("%w: phone and account identifier both absent", ErrInvalidPayload)
	}

	raw, _ := json.Marshal(tree)

	ev := &models.CanonicalEvent{
		TraceID:      uuid.NewString(),
		Source:       models.SourcePipeline,
		TenantHint:   hint,
		Phone:        phone,
		DisplayName:  str(lead["name"]),
		OccurredAt:   parseWhen(firstNonEmpty(str(lead["created_at"]), str(lead["updated_at"]), str(lead["date_create"]))),
		Kind:         kind,
		KindExplicit: true,
		StatusLabel:  firstNonEmpty(str(lead["status_name"]), customField(fields, "STATUS", "status", "situação")),
		StatusID:     str(lead["status_id"]),
		SaleAmount:   parseAmount(firstNonEmpty(str(lead["sale"]), str(lead["price"]))),
		Campaign:     customField(fields, "CAMPAIGN", "campanha", "utm_campaign"),
		Message:      customField(fields, "MESSAGE", "mensagem", "observação"),
		LeadSource:   customField(fields, "PROSPECT_SOURCE", "fonte de prospecção", "origem"),
		RawPayload:   raw,
	}

	return ev, nil
}

// decodeForm turns bracketed form keys into a nested map tree. Only the first
// value of each key is kept, matching how the sender encodes scalars.
func decodeForm(form url.Values) map[string]any {
	root := make(map[string]any)
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		path := splitBrackets(key)
		if len(path) == 0 {
			continue
		}
		insertPath(root, path, values[0])
	}
	return root
}

// splitBrackets parses "leads[status][0][name]" into its path segments.
func splitBrackets(key string) []string {
	var path []string
	head := key
	if i := strings.IndexByte(key, '['); i >= 0 {
		head = key[:i]
		rest := key[i:]
		for len(rest) > 0 {
			if rest[0] != '[' {
				return nil
			}
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil
			}
			path = append(path, rest[1:close])
			rest = rest[close+1:]
		}
	}
	if head == "" {
		return nil
	}
	return append([]string{head}, path...)
}

func insertPath(node map[string]any, path []string, value string) {
	for i, seg := range path {
		if i == len(path)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
}

// asSequence coerces the two shapes a lenient parser produces, a true array
// or an object with numeric keys, into one ordered slice of items.
func asSequence(v any) []map[string]any {
	switch vv := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		type keyed struct {
			idx  int
			item map[string]any
		}
		var entries []keyed
		for k, item := range vv {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return nil
			}
			m, ok := item.(map[string]any)
			if !ok {
				return nil
			}
			entries = append(entries, keyed{idx, m})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.item)
		}
		return out
	default:
		return nil
	}
}

// customField finds a custom field by code, then name, then id. First match
// wins; matching is case-insensitive.
func customField(fields []map[string]any, keys ...string) string {
	match := func(get func(map[string]any) string) string {
		for _, key := range keys {
			for _, f := range fields {
				if strings.EqualFold(get(f), key) {
					return fieldValue(f)
				}
			}
		}
		return ""
	}

	if v := match(func(f map[string]any) string { return str(f["code"]) }); v != "" {
		return v
	}
	if v := match(func(f map[string]any) string { return str(f["name"]) }); v != "" {
		return v
	}
	return match(func(f map[string]any) string { return str(f["id"]) })
}

func fieldValue(f map[string]any) string {
	values := asSequence(f["values"])
	if len(values) == 0 {
		// Scalar value shape.
		return str(f["value"])
	}
	return str(values[0]["value"])
}

func anyContactItems(contacts map[string]any) []map[string]any {
	for _, group := range []string{"add", "update"} {
		if items := asSequence(contacts[group]); len(items) > 0 {
			return items
		}
	}
	return nil
}

func contactPhone(contacts map[string]any) string {
	for _, item := range anyContactItems(contacts) {
		fields := asSequence(item["custom_fields"])
		if v := customField(fields, "PHONE", "telefone", "fone"); v != "" {
			return v
		}
	}
	return ""
}

func str(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case json.Number:
		return vv.String()
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", vv)
	}
}
