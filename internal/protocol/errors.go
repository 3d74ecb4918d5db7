package protocol

import (
	"errors"

	"truce.ai/internal/sim/abilities"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/zones"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Generic.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrNoPermission   = "E_NO_PERMISSION"
	ErrUnknownActor   = "E_UNKNOWN_ACTOR"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrInternal       = "E_INTERNAL"

	// Trust.
	ErrSelfTrust        = "E_SELF_TRUST"
	ErrAlreadyTrusted   = "E_ALREADY_TRUSTED"
	ErrDuplicatePending = "E_DUPLICATE_PENDING"
	ErrTargetBusy       = "E_TARGET_BUSY"
	ErrNoPendingRequest = "E_NO_PENDING_REQUEST"
	ErrRequesterGone    = "E_REQUESTER_GONE"
	ErrNotTrusted       = "E_NOT_TRUSTED"

	// Safe zones.
	ErrZoneExists    = "E_ZONE_EXISTS"
	ErrInvalidBounds = "E_INVALID_BOUNDS"
	ErrInvalidWorld  = "E_INVALID_WORLD"
	ErrZoneNotFound  = "E_ZONE_NOT_FOUND"

	// Combat.
	ErrInSafeZone  = "E_IN_SAFE_ZONE"
	ErrNotInCombat = "E_NOT_IN_COMBAT"

	// Abilities.
	ErrUnknownCapability = "E_UNKNOWN_CAPABILITY"
	ErrOnCooldown        = "E_ON_COOLDOWN"
	ErrNoTarget          = "E_NO_TARGET"
	ErrSelfTarget        = "E_SELF_TARGET"
	ErrTargetOffline     = "E_TARGET_OFFLINE"
	ErrTargetTrusted     = "E_TARGET_TRUSTED"
	ErrTargetNotTrusted  = "E_TARGET_NOT_TRUSTED"
	ErrVetoed            = "E_VETOED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrNoPermission:      {},
	ErrUnknownActor:      {},
	ErrUnknownCommand:    {},
	ErrInternal:          {},
	ErrSelfTrust:         {},
	ErrAlreadyTrusted:    {},
	ErrDuplicatePending:  {},
	ErrTargetBusy:        {},
	ErrNoPendingRequest:  {},
	ErrRequesterGone:     {},
	ErrNotTrusted:        {},
	ErrZoneExists:        {},
	ErrInvalidBounds:     {},
	ErrInvalidWorld:      {},
	ErrZoneNotFound:      {},
	ErrInSafeZone:        {},
	ErrNotInCombat:       {},
	ErrUnknownCapability: {},
	ErrOnCooldown:        {},
	ErrNoTarget:          {},
	ErrSelfTarget:        {},
	ErrTargetOffline:     {},
	ErrTargetTrusted:     {},
	ErrTargetNotTrusted:  {},
	ErrVetoed:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var sentinelCodes = []struct {
	err  error
	code string
}{
	{trust.ErrSelfTrust, ErrSelfTrust},
	{trust.ErrAlreadyTrusted, ErrAlreadyTrusted},
	{trust.ErrDuplicatePending, ErrDuplicatePending},
	{trust.ErrTargetBusy, ErrTargetBusy},
	{trust.ErrNoPendingRequest, ErrNoPendingRequest},
	{trust.ErrRequesterGone, ErrRequesterGone},
	{trust.ErrNotTrusted, ErrNotTrusted},
	{zones.ErrAlreadyExists, ErrZoneExists},
	{zones.ErrInvalidBounds, ErrInvalidBounds},
	{zones.ErrInvalidWorld, ErrInvalidWorld},
	{zones.ErrNotFound, ErrZoneNotFound},
	{combat.ErrInSafeZone, ErrInSafeZone},
	{combat.ErrUnknownActor, ErrUnknownActor},
	{combat.ErrNotInCombat, ErrNotInCombat},
	{abilities.ErrUnknownCapability, ErrUnknownCapability},
	{abilities.ErrNoTarget, ErrNoTarget},
	{abilities.ErrSelfTarget, ErrSelfTarget},
	{abilities.ErrTargetOffline, ErrTargetOffline},
	{abilities.ErrTargetTrusted, ErrTargetTrusted},
	{abilities.ErrTargetNotTrusted, ErrTargetNotTrusted},
}

// CodeFor maps an error from the core packages to its wire code. Unknown
// errors map to E_INTERNAL; nil maps to "".
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	var cd *abilities.CooldownError
	if errors.As(err, &cd) {
		return ErrOnCooldown
	}
	var veto *abilities.VetoError
	if errors.As(err, &veto) {
		return ErrVetoed
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return ErrInternal
}
