package alarm

import (
	"regexp"
	"strings"
)

// templateInstance matches the instance marker of templated ids, e.g. "Ant[!#66!]".
var templateInstance = regexp.MustCompile(`\[!#(\d+)!\]`)

// CoreIDFromRunningID extracts the core id from a full running id.
//
// A full running id is a chain of "(id:type)" pairs joined by "@", for example
// "(Converter-ID:CONVERTER)@(AlarmType-ID:IASIO)"; the id of the last pair is
// the core id. Templated ids such as "AlarmType-Ant[!#66!]" are rendered as
// "AlarmType-Ant instance 66".
func CoreIDFromRunningID(runningID string) string {
	last := runningID
	if i := strings.LastIndex(runningID, "@"); i >= 0 {
		last = runningID[i+1:]
	}

	last = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(last), "("), ")")
	if i := strings.LastIndex(last, ":"); i >= 0 {
		last = last[:i]
	}

	return templateInstance.ReplaceAllString(last, " instance $1")
}

// RunningIDFor builds the short running id used for alarms created from configuration.
func RunningIDFor(coreID string) string {
	return "(" + coreID + ":IASIO)"
}
