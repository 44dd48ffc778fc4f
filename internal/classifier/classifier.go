package classifier

import (
	"regexp"
	"strings"

	"barrio-alarm/internal/models"
)

// DefaultIncidentType is used when no words follow the trigger token.
const DefaultIncidentType = "EMERGENCIA GENERAL"

// CommandPrefix marks administrative commands, which never trigger an activation.
const CommandPrefix = "@"

// triggerPattern matches the trigger word spelled letter by letter with
// optional separators, plus trailing word characters so stylizations like
// "S.O.S." or a doubled final letter still match. The final letter may not
// be separated from its trailing characters by whitespace, otherwise the
// first incident word would be swallowed into the token.
var triggerPattern = regexp.MustCompile(`^S[.\s]*O[.\s]*S\.*\w*`)

// systemKeywords filter the bot's own status broadcasts from re-triggering
// the pipeline.
var systemKeywords = []string{
	"SISTEMA",
	"ACTUALIZADO",
	"EMERGENCIA REPORTADA",
}

// docMarkers filter users pasting help or instruction text back into the chat.
var docMarkers = []string{
	"•",
	"EJEMPLO:",
	"COMANDOS:",
}

// Classify decides whether an inbound text activates the emergency pipeline
// and extracts the incident category. It never fails: guarded or
// unrecognized text yields (Activation{}, false).
func Classify(text string) (models.Activation, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	if normalized == "" {
		return models.Activation{}, false
	}

	if strings.HasPrefix(normalized, CommandPrefix) {
		return models.Activation{}, false
	}
	for _, kw := range systemKeywords {
		if strings.Contains(normalized, kw) {
			return models.Activation{}, false
		}
	}
	for _, marker := range docMarkers {
		if strings.Contains(normalized, marker) {
			return models.Activation{}, false
		}
	}

	loc := triggerPattern.FindStringIndex(normalized)
	if loc == nil {
		return models.Activation{}, false
	}

	return models.Activation{IncidentType: extractIncidentType(normalized[loc[1]:])}, true
}

// extractIncidentType joins the first two words after the trigger token.
// The category text is not otherwise validated or normalized.
func extractIncidentType(rest string) string {
	words := strings.Fields(rest)
	if len(words) == 0 {
		return DefaultIncidentType
	}
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}
