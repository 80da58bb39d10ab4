// Command power-dist rebalances the power grid. It reads the grid core's
// temperature, powers standby grid nodes back on when the core runs cool,
// and sheds load when it runs hot. Build with TinyGo against the
// freestanding target; a wasi build would import wasi_snapshot_preview1,
// which the host does not provide:
//
//	tinygo build -o power_dist.wasm -target=wasm-unknown -no-debug .
package main

import (
	"strconv"
	"strings"
	"unsafe"
)

//go:wasmimport omega get_input
func hostGetInput(ptr, length uint32)

//go:wasmimport omega set_output
func hostSetOutput(ptr, length uint32)

//go:wasmimport omega log
func hostLog(ptr, length uint32)

//go:wasmimport omega ark_bus_command
func hostBusCommand(idPtr, idLen, cmdPtr, cmdLen uint32)

//go:wasmimport omega ark_read_sensor
func hostReadSensor(idPtr, idLen, metricPtr, metricLen, outPtr, outLen uint32) int32

//go:wasmimport omega ui_broadcast
func hostBroadcast(ptr, length uint32)

const (
	gridCore   = "ARK-01"
	sensorNode = "ARK-SENSOR-01"

	// Celsius thresholds for shedding and restoring load.
	hotThreshold  = 75.0
	coolThreshold = 40.0
)

func main() {}

//export run
func run() {
	target := strings.TrimSpace(readInput())
	if target == "" {
		target = gridCore
	}

	reading, ok := readSensor(sensorNode, "temperature")
	if !ok {
		writeOutput("Power distribution skipped: grid temperature unavailable.")
		return
	}
	temp, ok := parseReading(reading)
	if !ok {
		logLine("unparseable reading: " + reading)
		writeOutput("Power distribution skipped: grid temperature unreadable.")
		return
	}

	switch {
	case temp >= hotThreshold:
		busCommand(target, "STANDBY")
		broadcast("Grid core hot (" + reading + "); shedding load on " + target + ".")
		writeOutput("Load shed: " + target + " placed on standby at " + reading + ".")
	case temp <= coolThreshold:
		busCommand(target, "POWER_ON")
		broadcast("Grid core cool (" + reading + "); restoring " + target + ".")
		writeOutput("Load restored: " + target + " powered on at " + reading + ".")
	default:
		writeOutput("Grid nominal at " + reading + "; no redistribution needed.")
	}
}

// parseReading splits "22.5 C" into its numeric part.
func parseReading(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readSensor(id, metric string) (string, bool) {
	idB, metricB := []byte(id), []byte(metric)
	out := make([]byte, 64)
	n := hostReadSensor(
		bufPtr(idB), uint32(len(idB)),
		bufPtr(metricB), uint32(len(metricB)),
		bufPtr(out), uint32(len(out)))
	if n < 0 {
		return "", false
	}
	return string(out[:n]), true
}

func busCommand(id, cmd string) {
	idB, cmdB := []byte(id), []byte(cmd)
	hostBusCommand(bufPtr(idB), uint32(len(idB)), bufPtr(cmdB), uint32(len(cmdB)))
}

func readInput() string {
	buf := make([]byte, 1024)
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

func broadcast(s string) {
	b := []byte(s)
	hostBroadcast(bufPtr(b), uint32(len(b)))
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
