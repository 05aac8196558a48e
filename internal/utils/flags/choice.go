package flags

import (
	"errors"
	"fmt"
	"strings"
)

const (
	choiceSeparatorConstant           = "|"
	choiceUsageTemplateConstant       = "`<%s>` %s"
	unsupportedChoiceTemplateConstant = "%w %q (expected one of %s)"
	unsupportedChoiceMessageConstant  = "unsupported value"
	choiceListSeparatorConstant       = ", "
)

// ErrUnsupportedChoice indicates a flag value outside the accepted choices.
var ErrUnsupportedChoice = errors.New(unsupportedChoiceMessageConstant)

// FormatChoiceUsage renders "`<a|B|c>` description" with the default choice capitalized.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	normalizedDefault := normalizeChoice(defaultChoice)
	displayedChoices := make([]string, 0, len(choices))
	for _, choice := range distinctChoices(choices) {
		if strings.ToLower(choice) == normalizedDefault {
			choice = strings.ToUpper(choice)
		}
		displayedChoices = append(displayedChoices, choice)
	}

	usage := fmt.Sprintf(choiceUsageTemplateConstant, strings.Join(displayedChoices, choiceSeparatorConstant), strings.TrimSpace(description))
	return strings.TrimSpace(usage)
}

// ResolveChoice matches value case-insensitively against choices and returns the canonical choice.
// An empty value resolves to defaultChoice.
func ResolveChoice(value string, defaultChoice string, choices []string) (string, error) {
	normalizedValue := normalizeChoice(value)
	if len(normalizedValue) == 0 {
		normalizedValue = normalizeChoice(defaultChoice)
	}

	candidates := distinctChoices(choices)
	for _, choice := range candidates {
		if strings.ToLower(choice) == normalizedValue {
			return choice, nil
		}
	}
	return "", fmt.Errorf(unsupportedChoiceTemplateConstant, ErrUnsupportedChoice, value, strings.Join(candidates, choiceListSeparatorConstant))
}

func distinctChoices(choices []string) []string {
	distinct := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		trimmedChoice := strings.TrimSpace(choice)
		normalized := strings.ToLower(trimmedChoice)
		if len(normalized) == 0 {
			continue
		}
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		distinct = append(distinct, trimmedChoice)
	}
	return distinct
}

func normalizeChoice(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
