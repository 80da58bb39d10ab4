// Package governor implements the policy gate consulted before any action
// takes effect. It is a conservative, substring-based filter: over-blocking
// is acceptable, under-blocking is not.
package governor

import (
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Policy is the operator-supplied deny configuration. Immutable for the
// lifetime of the Governor that loaded it.
type Policy struct {
	ForbiddenActions  []string `json:"forbidden_actions"`
	RestrictedFolders []string `json:"restricted_folders"`
}

type policyFile struct {
	Policy Policy `json:"policy"`
}

// destructiveIdioms is the fixed built-in blocklist of shell patterns that
// are denied regardless of policy.
var destructiveIdioms = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	"chmod 777",
	"> /dev/",
}

// mutatingTokens mark an action as modifying when it also names a restricted
// folder.
var mutatingTokens = []string{"rm ", "mv ", "cp ", ">"}

// Governor evaluates actions against the loaded policy. It holds no state
// across calls and is safe to share across concurrent evaluations.
type Governor struct {
	policy Policy
	logger *zap.Logger
}

// New creates a Governor with the given policy.
func New(policy Policy, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{policy: policy, logger: logger}
}

// Load reads the policy file at path and returns a Governor over it. A
// missing or unparseable file yields the empty allow-everything policy
// rather than a startup failure.
func Load(path string, logger *zap.Logger) *Governor {
	var pf policyFile
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &pf); err != nil {
			pf = policyFile{}
			if logger != nil {
				logger.Warn("policy file unreadable, using empty policy",
					zap.String("path", path), zap.Error(err))
			}
		}
	}
	return New(pf.Policy, logger)
}

// AssessRisk returns true when the action may execute. First match wins,
// default allow:
//  1. policy forbidden_actions substring -> deny
//  2. built-in destructive shell idioms -> deny
//  3. restricted folder fragment plus a mutating verb token -> deny
func (g *Governor) AssessRisk(action string) bool {
	lower := strings.ToLower(action)

	for _, forbidden := range g.policy.ForbiddenActions {
		if strings.Contains(lower, strings.ToLower(forbidden)) {
			g.logger.Warn("action blocked: forbidden pattern",
				zap.String("pattern", forbidden))
			return false
		}
	}

	for _, idiom := range destructiveIdioms {
		if strings.Contains(lower, idiom) {
			g.logger.Warn("action blocked: destructive command pattern",
				zap.String("pattern", idiom))
			return false
		}
	}

	for _, folder := range g.policy.RestrictedFolders {
		if !strings.Contains(lower, strings.ToLower(folder)) {
			continue
		}
		for _, token := range mutatingTokens {
			if strings.Contains(lower, token) {
				g.logger.Warn("action blocked: modification of restricted folder",
					zap.String("folder", folder))
				return false
			}
		}
	}

	return true
}
