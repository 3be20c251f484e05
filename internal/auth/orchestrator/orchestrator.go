package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/auth"
	"identity-service/internal/auth/confirm"
	"identity-service/internal/auth/linker"
	"identity-service/internal/auth/resolver"
	"identity-service/internal/auth/store"
	"identity-service/internal/logger"
)

// State is a step of the OAuth flow.
type State string

const (
	StateStart     State = "start"
	StateVerifying State = "verifying"
	StateSignIn    State = "sign_in"
	StateConnect   State = "connect"
	StateResolved  State = "resolved"
	StateRejected  State = "rejected"
)

// ConnectMode decides what happens when an authenticated user connects a
// provider whose assertion is not verified.
type ConnectMode string

const (
	// ConnectReject denies the connect before any mutation.
	ConnectReject ConnectMode = "reject"
	// ConnectReconfirm links the identity, clears the account's confirmation
	// and sends a signed confirmation token.
	ConnectReconfirm ConnectMode = "reconfirm"
)

// ParseConnectMode validates a configured mode.
func ParseConnectMode(s string) (ConnectMode, error) {
	switch m := ConnectMode(s); m {
	case ConnectReject, ConnectReconfirm:
		return m, nil
	case "":
		return ConnectReject, nil
	default:
		return "", fmt.Errorf("orchestrator: unknown connect mode %q", s)
	}
}

const defaultMaxAttempts = 3

// Options tune the flow policy.
type Options struct {
	ConnectUnverified        ConnectMode
	DenyEmailLinkedElsewhere bool
	// MaxAttempts bounds re-runs of a unit after a uniqueness conflict.
	MaxAttempts int
}

// Verifier is the verification policy gate.
type Verifier interface {
	Verified(a auth.Assertion) (bool, error)
}

// Notifier receives post-commit events. Failures are logged, never surfaced.
type Notifier interface {
	AccountProvisioned(ctx context.Context, account *auth.Account, provider string) error
	ConfirmationRequested(ctx context.Context, account *auth.Account, token string) error
}

// Request is one inbound assertion. CurrentAccountID is empty for anonymous
// requests.
type Request struct {
	Assertion        auth.Assertion
	CurrentAccountID string
}

// SessionInstruction tells the session layer which account to sign in.
type SessionInstruction struct {
	AccountID string
}

// Outcome reports where the flow ended and what it changed.
type Outcome struct {
	State State
	Trace []State

	Account    *auth.Account
	Identity   *auth.Identity
	Resolution resolver.Outcome

	NewAccount            bool
	Reassigned            bool
	ConfirmationRequested bool

	// Session is set on a resolved sign-in only.
	Session *SessionInstruction
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store    *store.Store
	Policy   Verifier
	Resolver resolver.Resolver
	Linker   *linker.Linker
	Tokens   *confirm.Issuer
	Notifier Notifier
}

// Orchestrator composes verification, resolution and linking into the
// sign-in and connect flows.
type Orchestrator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil || deps.Policy == nil || deps.Resolver == nil || deps.Linker == nil {
		return nil, errors.New("orchestrator: store, policy, resolver and linker are required")
	}
	if opts.ConnectUnverified == "" {
		opts.ConnectUnverified = ConnectReject
	}
	if opts.ConnectUnverified == ConnectReconfirm && deps.Tokens == nil {
		return nil, errors.New("orchestrator: reconfirm mode needs a token issuer")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// Handle runs one assertion through the state machine.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	out.enter(StateStart)

	a := req.Assertion
	if err := a.Validate(); err != nil {
		return out, err
	}

	out.enter(StateVerifying)
	verified, err := o.deps.Policy.Verified(a)
	if err != nil {
		// configuration defect, not a denial
		return out, err
	}

	anonymous := req.CurrentAccountID == ""
	if !verified && (anonymous || o.opts.ConnectUnverified == ConnectReject) {
		return o.reject(out, &auth.VerificationRejected{Provider: a.Provider})
	}

	if anonymous {
		out.enter(StateSignIn)
		return o.signIn(ctx, a, out)
	}

	out.enter(StateConnect)
	return o.connect(ctx, req.CurrentAccountID, a, verified, out)
}

func (o *Orchestrator) reject(out Outcome, denial auth.Denial) (Outcome, error) {
	out.enter(StateRejected)
	logger.Warn("oauth assertion rejected", map[string]any{
		"provider": denial.ProviderName(),
		"reason":   denial.MessageKey(),
	})
	return out, denial
}

func (o *Orchestrator) signIn(ctx context.Context, a auth.Assertion, out Outcome) (Outcome, error) {
	var (
		res  resolver.Resolution
		link linker.Result
	)

	err := o.transact(ctx, func(tx *store.Store) error {
		r, err := o.deps.Resolver.Resolve(ctx, tx, a)
		if err != nil {
			return err
		}
		l, err := o.deps.Linker.Link(ctx, tx, r.Account, a)
		if err != nil {
			return err
		}
		res, link = r, l
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("sign in: %w", err)
	}

	out.Account = res.Account
	out.Identity = link.Identity
	out.Resolution = res.Outcome
	out.NewAccount = res.Outcome == resolver.Provisioned
	out.Reassigned = link.Reassigned
	out.Session = &SessionInstruction{AccountID: res.Account.ID}
	out.enter(StateResolved)

	if out.NewAccount && o.deps.Notifier != nil {
		if err := o.deps.Notifier.AccountProvisioned(ctx, res.Account, a.Provider); err != nil {
			logger.Error("account provisioned notification failed", map[string]any{
				"provider": a.Provider,
				"error":    err.Error(),
			})
		}
	}

	return out, nil
}

func (o *Orchestrator) connect(
	ctx context.Context,
	accountID string,
	a auth.Assertion,
	verified bool,
	out Outcome,
) (Outcome, error) {

	var (
		account *auth.Account
		link    linker.Result
		round   string
	)

	err := o.transact(ctx, func(tx *store.Store) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load current account: %w", err)
		}

		if o.opts.DenyEmailLinkedElsewhere {
			if err := o.checkLinkedElsewhere(ctx, tx, acc, a); err != nil {
				return err
			}
		}

		l, err := o.deps.Linker.Link(ctx, tx, acc, a)
		if err != nil {
			return err
		}

		// only reconfirm mode gets here unverified; confirmed or not, the
		// account starts a new confirmation round
		r := ""
		if !verified {
			r, err = tx.ResetConfirmation(ctx, acc.ID)
			if err != nil {
				return err
			}
			acc.ConfirmedAt = nil
		}

		account, link, round = acc, l, r
		return nil
	})

	var denial auth.Denial
	if errors.As(err, &denial) {
		return o.reject(out, denial)
	}
	if err != nil {
		return out, fmt.Errorf("connect: %w", err)
	}

	out.Account = account
	out.Identity = link.Identity
	out.Reassigned = link.Reassigned
	out.enter(StateResolved)

	if round != "" {
		out.ConfirmationRequested = true
		o.requestConfirmation(ctx, account, round)
	}

	return out, nil
}

// checkLinkedElsewhere denies a connect whose email belongs to another
// confirmed account that already holds an identity for the same provider.
// A known (provider, uid) is exempt: that case is an ownership reassignment.
func (o *Orchestrator) checkLinkedElsewhere(
	ctx context.Context,
	tx *store.Store,
	current *auth.Account,
	a auth.Assertion,
) error {

	_, err := tx.FindIdentity(ctx, a.Provider, a.UID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return err
	}

	other, err := tx.FindAccountByEmail(ctx, a.Email)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID == current.ID || !other.Confirmed() {
		return nil
	}

	linked, err := tx.HasProviderIdentity(ctx, other.ID, a.Provider)
	if err != nil {
		return err
	}
	if linked {
		return &auth.AlreadyLinkedElsewhereError{Provider: a.Provider}
	}
	return nil
}

func (o *Orchestrator) requestConfirmation(ctx context.Context, account *auth.Account, round string) {
	token, err := o.deps.Tokens.Issue(account, round)
	if err != nil {
		logger.Error("issue confirmation token failed", map[string]any{
			"account_id": account.ID,
			"error":      err.Error(),
		})
		return
	}
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.ConfirmationRequested(ctx, account, token); err != nil {
		logger.Error("confirmation notification failed", map[string]any{
			"account_id": account.ID,
			"error":      err.Error(),
		})
	}
}

// Confirm marks the token's account confirmed, provided its email has not
// changed since the token was issued and the token's confirmation round is
// still open. A token works once; a later reset supersedes it.
func (o *Orchestrator) Confirm(ctx context.Context, token string) (*auth.Account, error) {
	if o.deps.Tokens == nil {
		return nil, errors.New("orchestrator: confirmation tokens are not configured")
	}

	claims, err := o.deps.Tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	var account *auth.Account
	err = o.deps.Store.WithTx(ctx, func(tx *store.Store) error {
		acc, err := tx.GetAccount(ctx, claims.AccountID)
		if errors.Is(err, auth.ErrNotFound) {
			return confirm.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if auth.NormalizeEmail(acc.Email) != claims.Email {
			return confirm.ErrInvalidToken
		}

		now := tx.Now()
		ok, err := tx.ConsumeConfirmation(ctx, acc.ID, claims.Round, now)
		if err != nil {
			return err
		}
		if !ok {
			return confirm.ErrInvalidToken
		}
		acc.ConfirmedAt = &now
		account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// transact runs fn in one transaction and re-runs it after a uniqueness
// conflict; the re-run observes the row the competing request committed.
func (o *Orchestrator) transact(ctx context.Context, fn func(tx *store.Store) error) error {
	var err error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		err = o.deps.Store.WithTx(ctx, fn)
		if !auth.IsConflict(err) {
			return err
		}
		logger.Warn("uniqueness conflict, re-reading", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return err
}
