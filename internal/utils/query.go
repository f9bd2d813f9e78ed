package utils

import "strings"

// ParseQueryList handles both repeated and comma-separated query params,
// dropping blanks and repeats while keeping first-seen order.
// Example:
//
//	?tables=parcels,roads           → ["parcels","roads"]
//	?tables=parcels&tables=roads    → ["parcels","roads"]
func ParseQueryList(q map[string][]string, key string) []string {
	values := q[key]

	if len(values) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

// SplitList applies ParseQueryList rules to a single comma-separated value,
// as given on the command line.
func SplitList(s string) []string {
	return ParseQueryList(map[string][]string{"v": {s}}, "v")
}
