package domain

import "strings"

// municipalSuffixes are the designators accepted after a city name in
// exact mode (渋谷 matches 渋谷区).
var municipalSuffixes = []string{"市", "区", "町", "村"}

// MatchCandidates returns the entities that fall inside the subscription's
// area. Inactive subscriptions never match.
//
// In contains mode the entity city only has to contain the subscription
// city, so 府中 matches both 府中市 and 府中町. Exact mode compares the whole
// name, optionally followed by a municipal suffix.
func MatchCandidates(entities []Candidate, sub Subscription, mode CityMatchMode) []Candidate {
	if !sub.IsActive() {
		return nil
	}

	prefecture := strings.TrimSpace(sub.Prefecture)
	city := sub.CityName()

	var matched []Candidate
	for _, e := range entities {
		if strings.TrimSpace(e.Prefecture) != prefecture {
			continue
		}
		if city != "" && !cityMatches(strings.TrimSpace(e.City), city, mode) {
			continue
		}
		matched = append(matched, e)
	}
	return matched
}

func cityMatches(entityCity, subCity string, mode CityMatchMode) bool {
	if mode != CityMatchExact {
		return strings.Contains(entityCity, subCity)
	}
	if entityCity == subCity {
		return true
	}
	for _, suffix := range municipalSuffixes {
		if entityCity == subCity+suffix {
			return true
		}
	}
	return false
}
