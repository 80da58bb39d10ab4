package sandbox

import (
	"context"

	"go.uber.org/zap"

	"omega/internal/gatefilter"
)

// GatewayFilterSkill is the distinguished skill name consulted before any
// fronting caller handles a request.
const GatewayFilterSkill = "gateway_filter"

// GatewayVerdict runs the gateway filter over a request string and returns
// the verdict: "ALLOW", or a string starting with "DENY:".
//
// When the compiled gateway_filter skill is installed it is authoritative;
// otherwise the built-in gatefilter implementation of the same contract is
// used. A skill failure fails closed with a DENY verdict: a broken filter
// must not become an open door.
func (e *Engine) GatewayVerdict(ctx context.Context, request string) string {
	if !e.HasSkill(GatewayFilterSkill) {
		return gatefilter.Check(request)
	}
	verdict, err := e.RunSkill(ctx, GatewayFilterSkill, request)
	if err != nil {
		e.logger.Error("gateway filter skill failed, denying request", zap.Error(err))
		return gatefilter.DenyPrefix + " Gateway filter unavailable."
	}
	return verdict
}
