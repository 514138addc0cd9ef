package utils

import (
	"strings"
)

// disciplineAliases maps each canonical discipline to the words riders use for it
var disciplineAliases = map[string][]string{
	"road":   {"road", "roadie", "road bike", "tarmac", "asphalt", "paved"},
	"gravel": {"gravel", "gravel bike", "adventure", "bikepacking", "unpaved"},
	"mtb":    {"mtb", "mountain", "mountain bike", "trail", "singletrack", "enduro", "xc"},
	"mixed":  {"mixed", "mixed terrain", "all-road", "allroad", "all road", "hybrid"},
}

// disciplineOrder keeps alias scanning deterministic; "mixed" first so
// "mixed terrain" never resolves to another discipline by substring.
var disciplineOrder = []string{"mixed", "gravel", "mtb", "road"}

// NormalizeDiscipline maps free text to one of road, gravel, mtb or mixed.
// Returns false when the text names none of them.
func NormalizeDiscipline(s string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return "", false
	}

	// Exact canonical or alias match
	for _, d := range disciplineOrder {
		for _, alias := range disciplineAliases[d] {
			if lower == alias {
				return d, true
			}
		}
	}

	// Contains match on whole words
	words := " " + strings.Join(strings.FieldsFunc(lower, isSeparator), " ") + " "
	for _, d := range disciplineOrder {
		for _, alias := range disciplineAliases[d] {
			if strings.Contains(words, " "+alias+" ") {
				return d, true
			}
		}
	}

	return "", false
}

// FuzzyMatchDiscipline reports whether a ride's free-text terrain description
// matches the wanted discipline. "mixed" terrain matches any discipline.
func FuzzyMatchDiscipline(want, terrain string) bool {
	got, ok := NormalizeDiscipline(terrain)
	if !ok {
		return false
	}
	wantNorm, ok := NormalizeDiscipline(want)
	if !ok {
		return false
	}
	return got == wantNorm || got == "mixed"
}

// Slugify normalizes a community name or slug: trimmed, lower-case,
// runs of spaces, underscores and dashes collapsed to one dash.
func Slugify(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(parts, "-")
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', ',', '/', '(', ')', ';', '.', '\t', '\n':
		return true
	}
	return false
}
