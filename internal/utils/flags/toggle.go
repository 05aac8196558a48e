package flags

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const (
	toggleTrueValueConstant           = "true"
	toggleFalseValueConstant          = "false"
	toggleTypeNameConstant            = "bool"
	toggleParseErrorTemplateConstant  = "invalid toggle value %q (use yes or no)"
	toggleUsageTemplateConstant       = "`%s` %s"
	toggleEnabledPlaceholderConstant  = "<YES|no>"
	toggleDisabledPlaceholderConstant = "<yes|NO>"
	longFlagPrefixConstant            = "--"
	shortFlagPrefixConstant           = "-"
	flagValueSeparatorConstant        = "="
)

var (
	toggleLiterals = map[string]bool{
		"true": true, "yes": true, "on": true, "1": true, "y": true, "t": true,
		"false": false, "no": false, "off": false, "0": false, "n": false, "f": false,
	}

	toggleRegistryMutex sync.RWMutex
	toggleRegistry = map[string]struct{}{}
)

// AddToggleFlag registers a boolean flag that also accepts yes/no, on/off, and 1/0 values.
// A bare flag sets the value to true.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, shorthand string, defaultValue bool, usage string) {
	if flagSet == nil || len(name) == 0 {
		return
	}

	value := &toggleValue{target: target}
	value.assign(defaultValue)
	flagSet.VarP(value, name, shorthand, formatToggleUsage(usage, defaultValue))
	flagSet.Lookup(name).NoOptDefVal = toggleTrueValueConstant

	toggleRegistryMutex.Lock()
	defer toggleRegistryMutex.Unlock()
	toggleRegistry[longFlagPrefixConstant+name] = struct{}{}
	if len(shorthand) > 0 {
		toggleRegistry[shortFlagPrefixConstant+shorthand] = struct{}{}
	}
}

// NormalizeToggleArguments joins "--flag value" pairs of registered toggle flags
// into "--flag=value" so pflag treats the value as the flag argument.
func NormalizeToggleArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == longFlagPrefixConstant {
			return append(normalized, arguments[index:]...)
		}
		if index+1 < len(arguments) && isRegisteredToggle(current) && isToggleLiteral(arguments[index+1]) {
			normalized = append(normalized, current+flagValueSeparatorConstant+arguments[index+1])
			index++
			continue
		}
		normalized = append(normalized, current)
	}
	return normalized
}

func formatToggleUsage(description string, defaultValue bool) string {
	placeholder := toggleDisabledPlaceholderConstant
	if defaultValue {
		placeholder = toggleEnabledPlaceholderConstant
	}
	return strings.TrimSpace(fmt.Sprintf(toggleUsageTemplateConstant, placeholder, strings.TrimSpace(description)))
}

func isRegisteredToggle(argument string) bool {
	if strings.Contains(argument, flagValueSeparatorConstant) {
		return false
	}
	toggleRegistryMutex.RLock()
	defer toggleRegistryMutex.RUnlock()
	_, registered := toggleRegistry[argument]
	return registered
}

func isToggleLiteral(candidate string) bool {
	_, known := toggleLiterals[strings.ToLower(strings.TrimSpace(candidate))]
	return known
}

type toggleValue struct {
	current bool
	target  *bool
}

func (value *toggleValue) assign(parsed bool) {
	value.current = parsed
	if value.target != nil {
		*value.target = parsed
	}
}

func (value *toggleValue) Set(rawValue string) error {
	normalizedValue := strings.ToLower(strings.TrimSpace(rawValue))
	if len(normalizedValue) == 0 {
		normalizedValue = toggleTrueValueConstant
	}
	parsed, known := toggleLiterals[normalizedValue]
	if !known {
		return fmt.Errorf(toggleParseErrorTemplateConstant, rawValue)
	}
	value.assign(parsed)
	return nil
}

func (value *toggleValue) String() string {
	if value == nil || !value.current {
		return toggleFalseValueConstant
	}
	return toggleTrueValueConstant
}

func (value *toggleValue) Type() string {
	return toggleTypeNameConstant
}
