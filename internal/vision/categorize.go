package vision

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

type categoryRule struct {
	name    string
	pattern *regexp.Regexp
}

// Rules are checked in order; the first match names the category.
var categoryRules = []categoryRule{
	{"Shows e Festas", regexp.MustCompile(`show|música|festival|concert|samba|pagode|rock|jazz|mpb`)},
	{"Teatro", regexp.MustCompile(`teatro|peça|espetáculo|drama|comédia`)},
	{"Arte e Cultura", regexp.MustCompile(`arte|exposição|galeria|museu|cultura`)},
	{"Gastronomia", regexp.MustCompile(`gastronomia|culinária|restaurante|food|comida`)},
	{"Cursos", regexp.MustCompile(`curso|workshop|aula|treinamento`)},
	{"Palestras", regexp.MustCompile(`palestra|conferência|seminário|talk`)},
}

// Categorize tags an event from its title and description.
func Categorize(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			return rule.name
		}
	}
	return events.DefaultCategory
}
