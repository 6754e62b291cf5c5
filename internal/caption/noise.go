package caption

import (
	"regexp"
	"strings"
)

// Text copied from the Instagram web UI carries timestamps, like counters,
// navigation and footer links around the caption.
var noiseLines = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\d+\s*(h|min|sem|d)(\s+\d+\s*curtidas?)?(\s+responder)?$`),
	regexp.MustCompile(`(?i)^\d+\s*curtidas?(\s+responder)?$`),
	regexp.MustCompile(`(?i)^responder$`),
	regexp.MustCompile(`(?i)^há\s+\d+\s+(horas?|minutos?|dias?)$`),
	regexp.MustCompile(`(?i)^adicione um comentário\.*$`),
	regexp.MustCompile(`(?i)^curtido por .+ e outras pessoas$`),
	regexp.MustCompile(`(?i)^©\s*\d+\s+instagram from meta$`),
}

var navWord = regexp.MustCompile(`(?i)^(página inicial|pesquisa|explorar|reels|mensagens|notificações|criar|painel|perfil|mais|também da meta|meta|sobre|blog|carreiras|ajuda|api|privacidade|termos|localizações|português \(brasil\)|©\s*\d+\s+instagram from meta)$`)

func isNoiseLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, re := range noiseLines {
		if re.MatchString(line) {
			return true
		}
	}
	if navWord.MatchString(line) {
		return true
	}
	if !strings.Contains(line, "·") {
		return false
	}
	for _, part := range strings.Split(line, "·") {
		part = strings.TrimSpace(part)
		if part != "" && !navWord.MatchString(part) {
			return false
		}
	}
	return true
}

// StripNoise drops lines that consist only of Instagram UI chrome. Lines with
// content, including field lines such as "Horário: 21h", are kept intact.
func StripNoise(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isNoiseLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
