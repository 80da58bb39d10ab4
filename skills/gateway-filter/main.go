// Command gateway-filter is the pre-request gate for the HTTP gateway.
// The host runs it with a summary of every inbound request; the skill
// answers "ALLOW" or "DENY: <reason>". Build with TinyGo against the
// freestanding target; a wasi build would import wasi_snapshot_preview1,
// which the host does not provide:
//
//	tinygo build -o gateway_filter.wasm -target=wasm-unknown -no-debug .
package main

import (
	"strings"
	"unsafe"
)

//go:wasmimport omega get_input
func hostGetInput(ptr, length uint32)

//go:wasmimport omega set_output
func hostSetOutput(ptr, length uint32)

//go:wasmimport omega log
func hostLog(ptr, length uint32)

const inputCapacity = 4096

var destructiveKeywords = []string{
	"drop table",
	"delete_all",
	"rm -rf",
	"mkfs",
	"format c:",
	"truncate table",
	"shutdown -h",
}

var overridePhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"developer mode",
	"jailbreak",
	"system prompt:",
}

var privateMarkers = []string{
	"private",
	"confidential",
	"secret",
	"internal only",
}

func main() {}

//export run
func run() {
	request := strings.ToLower(readInput())

	for _, kw := range destructiveKeywords {
		if strings.Contains(request, kw) {
			logLine("destructive keyword: " + kw)
			writeOutput("DENY: Destructive operation requested.")
			return
		}
	}

	for _, phrase := range overridePhrases {
		if strings.Contains(request, phrase) {
			logLine("persona override: " + phrase)
			writeOutput("DENY: Persona override attempt detected.")
			return
		}
	}

	if strings.Contains(request, "/public") || strings.Contains(request, "[public]") {
		for _, marker := range privateMarkers {
			if strings.Contains(request, marker) {
				logLine("private data on public channel")
				writeOutput("DENY: Private content on a public boundary.")
				return
			}
		}
	}

	writeOutput("ALLOW")
}

func readInput() string {
	buf := make([]byte, inputCapacity)
	hostGetInput(bufPtr(buf), uint32(len(buf)))
	return string(trimZero(buf))
}

func writeOutput(s string) {
	b := []byte(s)
	hostSetOutput(bufPtr(b), uint32(len(b)))
}

func logLine(s string) {
	b := []byte(s)
	hostLog(bufPtr(b), uint32(len(b)))
}

func bufPtr(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(&b[0])))
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
