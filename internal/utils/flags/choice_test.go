package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatChoiceUsage(testInstance *testing.T) {
	testCases := []struct {
		name           string
		defaultChoice  string
		choices        []string
		description    string
		expectedOutput string
	}{
		{
			name:           "default_first",
			defaultChoice:  "text",
			choices:        []string{"text", "json", "yaml"},
			description:    "Report format.",
			expectedOutput: "`<TEXT|json|yaml>` Report format.",
		},
		{
			name:           "default_last",
			defaultChoice:  "fixture",
			choices:        []string{"gitcli", "gogit", "fixture"},
			description:    "History source.",
			expectedOutput: "`<gitcli|gogit|FIXTURE>` History source.",
		},
		{
			name:           "empty_description",
			defaultChoice:  "json",
			choices:        []string{"text", "json"},
			expectedOutput: "`<text|JSON>`",
		},
		{
			name:           "duplicates_and_whitespace",
			defaultChoice:  " yaml ",
			choices:        []string{" yaml ", "YAML", "json", ""},
			description:    "Record format.",
			expectedOutput: "`<YAML|json>` Record format.",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedOutput, FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description))
		})
	}
}

func TestResolveChoice(testInstance *testing.T) {
	choices := []string{"text", "json", "yaml"}

	testCases := []struct {
		name           string
		value          string
		expectedChoice string
		expectError    bool
	}{
		{name: "exact", value: "json", expectedChoice: "json"},
		{name: "case_insensitive", value: " YAML ", expectedChoice: "yaml"},
		{name: "empty_uses_default", value: "", expectedChoice: "text"},
		{name: "unsupported", value: "xml", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			resolvedChoice, resolveError := ResolveChoice(testCase.value, "text", choices)
			if testCase.expectError {
				require.ErrorIs(testInstance, resolveError, ErrUnsupportedChoice)
				require.ErrorContains(testInstance, resolveError, "text, json, yaml")
				return
			}
			require.NoError(testInstance, resolveError)
			require.Equal(testInstance, testCase.expectedChoice, resolvedChoice)
		})
	}
}
