package audit

import (
	"context"
	"time"
)

// AuthAdapter implements auth.AuditSink, logging login failures and
// lockouts as audit events of type auth.login.failure.
type AuthAdapter struct {
	Engine *Engine
}

func (a *AuthAdapter) LoginFailure(ctx context.Context, username string, lockedOut bool, lockedUntil time.Time) {
	severity := SeverityMedium
	detail := map[string]interface{}{"username": username}
	if lockedOut {
		severity = SeverityHigh
		detail["locked_until"] = lockedUntil
	}
	a.Engine.LogEvent(ctx, "auth.login.failure", "login", severity, &Actor{Username: username}, nil, OutcomeFailure, detail)
}
