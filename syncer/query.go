package syncer

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

const (
	sortUserMtimeAsc = "user_mtime asc"
	purgePageSize    = 50
)

type advancedQuery struct {
	JSONModelType string   `json:"jsonmodel_type"`
	Query         subquery `json:"query"`
}

type subquery struct {
	JSONModelType string     `json:"jsonmodel_type"`
	Op            string     `json:"op,omitempty"`
	Subqueries    []subquery `json:"subqueries,omitempty"`
	Field         string     `json:"field,omitempty"`
	Value         string     `json:"value,omitempty"`
	Comparator    string     `json:"comparator,omitempty"`
	Negated       bool       `json:"negated,omitempty"`
}

func dateGreaterThan(field string, t time.Time) subquery {
	return subquery{
		JSONModelType: "date_field_query",
		Field:         field,
		Value:         t.UTC().Format(time.RFC3339),
		Comparator:    "greater_than",
	}
}

// updatedSince builds the advanced query matching records modified after
// threshold, excluding public-interface-only records.
func updatedSince(threshold time.Time) string {
	aq := advancedQuery{
		JSONModelType: "advanced_query",
		Query: subquery{
			JSONModelType: "boolean_query",
			Op:            "AND",
			Subqueries: []subquery{
				{
					JSONModelType: "boolean_query",
					Op:            "OR",
					Subqueries: []subquery{
						dateGreaterThan("user_mtime", threshold),
						dateGreaterThan("system_mtime", threshold),
					},
				},
				{
					JSONModelType: "field_query",
					Field:         "types",
					Value:         "pui_only",
					Negated:       true,
				},
			},
		},
	}
	b, _ := json.Marshal(aq)
	return string(b)
}

func updateParams(threshold time.Time, page int, itemType string, pageSize int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("sort", sortUserMtimeAsc)
	params.Set("aq", updatedSince(threshold))
	if itemType != "" {
		params.Set("type[]", itemType)
	}
	if pageSize > 0 {
		params.Set("page_size", strconv.Itoa(pageSize))
	}
	return params
}

func purgeParams(page int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(purgePageSize))
	return params
}

func withPage(params url.Values, page int) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Set("page", strconv.Itoa(page))
	return out
}
