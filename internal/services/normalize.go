package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// reSGPAColumn matches per-period SGPA keys the model sometimes emits instead of
// the SGPA list: SGPA_I, SGPA_II, SGPA_1, SGPA 2 ...
var reSGPAColumn = regexp.MustCompile(`(?i)^sgpa[\s_-]*([ivx]+|\d+)$`)

var keyAliases = map[string]string{
	"seat_no":           "Seat_No",
	"seatno":            "Seat_No",
	"seat no":           "Seat_No",
	"seat number":       "Seat_No",
	"name":              "Name",
	"name of candidate": "Name",
	"candidate name":    "Name",
	"grand_total":       "Grand_Total",
	"grandtotal":        "Grand_Total",
	"grand total":       "Grand_Total",
	"total":             "Grand_Total",
	"sgpa":              "SGPA",
	"cgpa":              "CGPA",
	"remark":            "Remark",
	"remarks":           "Remark",
	"result":            "Remark",
	"subjects":          "Subjects",
}

var subjectKeyAliases = map[string]string{
	"name":        "Name",
	"subject":     "Name",
	"code":        "Name",
	"total":       "Total",
	"tot":         "Total",
	"marks":       "Total",
	"grade":       "Grade",
	"lg":          "Grade",
	"gp":          "GP",
	"grade_point": "GP",
	"grade point": "GP",
}

// normalizeRow turns one raw model object into the canonical record shape so it can
// be validated. It only repairs what is safe to repair: keys are mapped onto the
// canonical names, numeric strings become numbers, placeholders in optional fields
// are dropped, and Name is uppercased. The returned list names what was dropped.
func normalizeRow(raw map[string]any, logger *slog.Logger) (map[string]any, []string) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string]any, 8)
	var dropped []string
	sgpaColumns := map[int]any{}

	for k, v := range raw {
		key := strings.TrimSpace(k)
		if m := reSGPAColumn.FindStringSubmatch(key); m != nil {
			if idx, ok := columnIndex(m[1]); ok {
				sgpaColumns[idx] = v
				continue
			}
		}
		canonical, ok := keyAliases[strings.ToLower(key)]
		if !ok {
			dropped = append(dropped, key+"(unknown)")
			continue
		}
		if _, exists := out[canonical]; exists && canonical != key {
			// the exact key wins over an alias
			continue
		}
		out[canonical] = v
	}

	for _, k := range []string{"Seat_No", "Name", "Remark"} {
		v, ok := out[k]
		if !ok {
			continue
		}
		s, ok := textValue(v)
		if !ok || isPlaceholder(s) {
			delete(out, k)
			dropped = append(dropped, k)
			continue
		}
		if k == "Name" {
			s = strings.ToUpper(s)
		}
		out[k] = s
	}

	if v, ok := out["Grand_Total"]; ok {
		if n, ok := numberValue(v); ok {
			out["Grand_Total"] = math.Round(n)
		} else {
			delete(out, "Grand_Total")
			dropped = append(dropped, "Grand_Total")
		}
	}
	if v, ok := out["CGPA"]; ok {
		if n, ok := numberValue(v); ok {
			out["CGPA"] = n
		} else {
			delete(out, "CGPA")
			dropped = append(dropped, "CGPA")
		}
	}

	sgpa := numberList(out["SGPA"])
	if len(sgpa) == 0 && len(sgpaColumns) > 0 {
		idx := make([]int, 0, len(sgpaColumns))
		for i := range sgpaColumns {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			if n, ok := numberValue(sgpaColumns[i]); ok {
				sgpa = append(sgpa, n)
			}
		}
	}
	if len(sgpa) > 0 {
		out["SGPA"] = sgpa
	} else {
		delete(out, "SGPA")
	}

	subjects := []any{}
	if list, ok := out["Subjects"].([]any); ok {
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				dropped = append(dropped, fmt.Sprintf("Subjects[%d]", i))
				continue
			}
			subj, ok := normalizeSubject(obj)
			if !ok {
				dropped = append(dropped, fmt.Sprintf("Subjects[%d]", i))
				continue
			}
			subjects = append(subjects, subj)
		}
	}
	out["Subjects"] = subjects

	if len(dropped) > 0 {
		logger.Debug("Normalized extracted row.", "dropped", dropped)
	}
	return out, dropped
}

func normalizeSubject(raw map[string]any) (map[string]any, bool) {
	out := make(map[string]any, 4)
	for k, v := range raw {
		if canonical, ok := subjectKeyAliases[strings.ToLower(strings.TrimSpace(k))]; ok {
			if _, exists := out[canonical]; !exists || canonical == k {
				out[canonical] = v
			}
		}
	}
	name, ok := textValue(out["Name"])
	if !ok || isPlaceholder(name) {
		return nil, false
	}
	out["Name"] = name

	if n, ok := numberValue(out["Total"]); ok {
		out["Total"] = math.Round(n)
	} else {
		out["Total"] = float64(0)
	}
	if g, ok := textValue(out["Grade"]); ok && !isPlaceholder(g) {
		out["Grade"] = g
	} else {
		out["Grade"] = ""
	}
	if n, ok := numberValue(out["GP"]); ok {
		out["GP"] = n
	} else {
		out["GP"] = float64(0)
	}
	return out, true
}

func isPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "--", "---", "null", "none", "n/a", "na":
		return true
	}
	return false
}

// textValue accepts strings and bare numbers (seat numbers often come back as numbers).
func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if isPlaceholder(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func numberList(v any) []any {
	list, ok := v.([]any)
	if !ok {
		if n, ok := numberValue(v); ok {
			return []any{n}
		}
		return nil
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if n, ok := numberValue(item); ok {
			out = append(out, n)
		}
	}
	return out
}

var romanValues = map[rune]int{'i': 1, 'v': 5, 'x': 10}

// columnIndex reads an SGPA column suffix written as a roman or arabic numeral.
func columnIndex(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	s = strings.ToLower(s)
	total := 0
	for i, r := range s {
		v, ok := romanValues[r]
		if !ok {
			return 0, false
		}
		if i+1 < len(s) && romanValues[rune(s[i+1])] > v {
			total -= v
		} else {
			total += v
		}
	}
	return total, total > 0
}
