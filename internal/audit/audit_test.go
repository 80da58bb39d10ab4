package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path, nil)
	require.NoError(t, err)

	log.Record(Event{Kind: CommandExecuted, Target: "ARK-01", Action: "POWER_ON", Success: true})
	log.Record(Event{Kind: CommandDenied, Target: "ARK-01", Action: "REBOOT", Detail: "blocked by policy"})
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, CommandExecuted, got[0].Kind)
	assert.True(t, got[0].Success)
	assert.NotZero(t, got[0].Timestamp)
	assert.Equal(t, "blocked by policy", got[1].Detail)
	assert.False(t, got[1].Success)
}

func TestOpenAppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	log, err := Open(path, nil)
	require.NoError(t, err)
	log.Record(Event{Kind: MissionStarted, Target: "m-1"})
	require.NoError(t, log.Close())

	log, err = Open(path, nil)
	require.NoError(t, err)
	log.Record(Event{Kind: MissionDenied, Target: "m-2"})
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func TestNopLogRecordsNothing(t *testing.T) {
	log := NewNop()
	log.Record(Event{Kind: SkillExecuted, Target: "power_dist"})
	assert.NoError(t, log.Close())
}

func TestRecordConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				log.Record(Event{Kind: SkillExecuted, Target: "echo", Success: true})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 200, countLines(data))
}

func countLines(data []byte) int {
	n := 0
	for _, c := range data {
		if c == '\n' {
			n++
		}
	}
	return n
}
