package billing

import (
	"context"
	"errors"

	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/models"
)

// ErrInsufficientCredit is returned by Preflight's caller (wrapped with
// the upstream message) when CheckCredits reports the token doesn't
// have enough balance to proceed. Kept distinct from a transport
// failure so the HTTP layer can tell "not enough credit" apart from
// "credit service unreachable".
var ErrInsufficientCredit = errors.New("billing: insufficient credit")

// CreditClient is the outbound credit collaborator (spec.md §6 "Outbound
// credit"). Implemented by pkg/creditclient; tests substitute a fake.
type CreditClient interface {
	CheckCredits(ctx context.Context, token string, n int) (ok bool, message string, balance *int, err error)
	UpdateCredits(ctx context.Context, token string, delta int) (ok bool, message string, balance *int, err error)
}

// Settle computes the turn's cost from its counter and, in production
// mode, issues exactly one update_credits(token, -cost) call. The
// counter is always cleared, whether or not settlement succeeds
// (spec.md §4.7). In local mode no credit call is made.
func Settle(ctx context.Context, mgr *Manager, client CreditClient, mode config.Mode, defaults *config.Defaults, sessionID, token string) models.CreditInfo {
	defer mgr.Clear(sessionID)

	counter := mgr.Snapshot(sessionID)
	cost := counter.Cost(defaults.LLMFactor, defaults.JobFactor)

	if mode != config.ModeProduction {
		return models.CreditInfo{LocalMode: true, Deducted: 0, Success: true}
	}

	if cost <= 0 {
		return models.CreditInfo{Deducted: 0, Success: true}
	}

	ok, message, balance, err := client.UpdateCredits(ctx, token, -cost)
	info := models.CreditInfo{Deducted: cost, Success: ok && err == nil, Message: message}
	if balance != nil {
		info.Remaining = *balance
	}
	if err != nil {
		info.Message = err.Error()
		info.Success = false
	}
	return info
}

// Preflight performs the boolean credit-preflight check (spec.md §4.1
// step 6). Only called in production mode for tasks 1/2/3/-1.
func Preflight(ctx context.Context, client CreditClient, mode config.Mode, token string) (ok bool, message string, err error) {
	if mode != config.ModeProduction {
		return true, "", nil
	}
	ok, message, _, err = client.CheckCredits(ctx, token, 1)
	return ok, message, err
}
