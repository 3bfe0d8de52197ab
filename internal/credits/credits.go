// Package credits gates ingestion on a user's credit balance. One credit
// pays for one repository file.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/store"
)

// ErrInsufficientCredits is matched by every *InsufficientCreditsError.
var ErrInsufficientCredits = errors.New("insufficient credits")

// InsufficientCreditsError reports how many credits an ingestion needs and
// how many the user has.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientCredits) true.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// FileCounter counts the files of a repository without downloading them.
type FileCounter interface {
	CountFiles(ctx context.Context, owner, repo, path string) (int, error)
}

// CounterFunc returns a FileCounter for the credential token.
type CounterFunc func(token string) FileCounter

// HostCounter adapts github.Hosts to a CounterFunc.
func HostCounter(hosts *github.Hosts) CounterFunc {
	return func(token string) FileCounter {
		return hosts.For(token)
	}
}

// Ledger stores credit balances.
type Ledger interface {
	EnsureUser(id string, credits int) error
	GetCredits(userID string) (int, error)
	DeductCredits(userID string, amount int) error
}

// Estimate is the cost of ingesting one repository.
type Estimate struct {
	Repo            github.RepoRef
	FileCount       int
	RequiredCredits int
	Available       int
}

// Admission sizes repositories and checks them against balances.
type Admission struct {
	ledger         Ledger
	counters       CounterFunc
	defaultBalance int
}

// NewAdmission creates an Admission. Users seen for the first time start
// with defaultBalance credits.
func NewAdmission(ledger Ledger, counters CounterFunc, defaultBalance int) *Admission {
	return &Admission{ledger: ledger, counters: counters, defaultBalance: defaultBalance}
}

// Estimate counts the repository's files. It does not look at any balance.
func (a *Admission) Estimate(ctx context.Context, repoURL, token string) (Estimate, error) {
	ref, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return Estimate{}, err
	}
	n, err := a.counters(token).CountFiles(ctx, ref.Owner, ref.Name, "")
	if err != nil {
		return Estimate{}, fmt.Errorf("counting files of %s: %w", ref, err)
	}
	return Estimate{Repo: ref, FileCount: n, RequiredCredits: n}, nil
}

// Check estimates the repository and compares the cost with the user's
// balance. It returns the estimate together with an
// *InsufficientCreditsError when the balance is too low.
func (a *Admission) Check(ctx context.Context, userID, repoURL, token string) (Estimate, error) {
	est, err := a.Estimate(ctx, repoURL, token)
	if err != nil {
		return est, err
	}
	balance, err := a.Balance(userID)
	if err != nil {
		return est, err
	}
	est.Available = balance
	if est.RequiredCredits > balance {
		return est, &InsufficientCreditsError{Required: est.RequiredCredits, Available: balance}
	}
	return est, nil
}

// Charge takes amount credits from the user atomically.
func (a *Admission) Charge(userID string, amount int) error {
	if amount <= 0 {
		return nil
	}
	err := a.ledger.DeductCredits(userID, amount)
	if errors.Is(err, store.ErrInsufficientBalance) {
		balance, berr := a.ledger.GetCredits(userID)
		if berr != nil {
			return berr
		}
		return &InsufficientCreditsError{Required: amount, Available: balance}
	}
	return err
}

// Balance returns the user's credits, creating the user on first sight.
func (a *Admission) Balance(userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	if err := a.ledger.EnsureUser(userID, a.defaultBalance); err != nil {
		return 0, err
	}
	return a.ledger.GetCredits(userID)
}
