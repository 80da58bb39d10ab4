// Package gatefilter implements the pre-request policy applied by anything
// that fronts the system. The same contract ships as a sandboxed skill
// (skills/gateway-filter); this package is the host-side implementation used
// when the compiled skill is not installed, and the reference for its logic.
//
// The verdict is exactly "ALLOW", or "DENY: <reason>". A DENY verdict must
// be treated as an unconditional rejection before any handler logic runs.
package gatefilter

import "strings"

// Allow is the verdict emitted for unobjectionable requests.
const Allow = "ALLOW"

// DenyPrefix starts every rejection verdict.
const DenyPrefix = "DENY:"

// destructiveKeywords catch requests that ask for data or system destruction
// outright.
var destructiveKeywords = []string{
	"drop table",
	"delete_all",
	"rm -rf",
	"mkfs",
	"format c:",
	"truncate table",
	"shutdown -h",
}

// overridePhrases catch persona-override and prompt-injection attempts.
var overridePhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"developer mode",
	"jailbreak",
	"system prompt:",
}

// privateMarkers flag payload content that must not ride on a public-tagged
// request.
var privateMarkers = []string{
	"private",
	"confidential",
	"secret",
	"internal only",
}

// Check evaluates a raw request string and returns the verdict.
func Check(request string) string {
	lower := strings.ToLower(request)

	for _, kw := range destructiveKeywords {
		if strings.Contains(lower, kw) {
			return DenyPrefix + " Destructive operation requested."
		}
	}

	for _, phrase := range overridePhrases {
		if strings.Contains(lower, phrase) {
			return DenyPrefix + " Persona override attempt detected."
		}
	}

	// A request routed through a public surface must not carry private
	// payload markers.
	if strings.Contains(lower, "/public") || strings.Contains(lower, "[public]") {
		for _, marker := range privateMarkers {
			if strings.Contains(lower, marker) {
				return DenyPrefix + " Private content on a public boundary."
			}
		}
	}

	return Allow
}

// Denied reports whether a verdict string is a rejection.
func Denied(verdict string) bool {
	return strings.HasPrefix(verdict, DenyPrefix)
}

// Reason extracts the human-readable reason from a DENY verdict.
func Reason(verdict string) string {
	return strings.TrimSpace(strings.TrimPrefix(verdict, DenyPrefix))
}
