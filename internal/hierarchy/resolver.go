package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxDepth bounds the reporting-chain walk. Real org charts are shallow; a
// chain longer than this almost certainly contains a cycle the visited set
// cannot see (for example one introduced mid-walk by a concurrent edit).
const MaxDepth = 10

// ErrNoEscalationPath is returned when the starting user has no row in the
// organizational hierarchy at all.
var ErrNoEscalationPath = errors.New("no escalation path: user is not in the organizational hierarchy")

// CycleError reports a reporting chain that loops back on itself, either
// directly (a user revisited) or by exceeding MaxDepth.
type CycleError struct {
	UserID string
	Path   []string
	Reason string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular reporting chain detected for user %s: %s (path: %s)",
		e.UserID, e.Reason, strings.Join(e.Path, " -> "))
}

// Step is one superior in a resolved escalation path, nearest first.
type Step struct {
	UserID        string
	DisplayName   string
	PositionTitle string
	Department    string
	ReportsToID   string
}

// Source provides hierarchy rows. The boolean is false when the user has no
// hierarchy row; implementations may still fill DisplayName from the staff
// record in that case.
type Source interface {
	HierarchyEntry(ctx context.Context, userID string) (Step, bool, error)
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve walks reports_to edges upward from userID and returns the chain of
// superiors, nearest first. The starting user is not part of the result. A
// user at the top of the chain resolves to an empty path.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]Step, error) {
	start, ok, err := r.src.HierarchyEntry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy entry: %w", err)
	}
	if !ok {
		return nil, ErrNoEscalationPath
	}

	visited := map[string]bool{userID: true}
	walked := []string{userID}
	path := []Step{}
	next := start.ReportsToID

	for next != "" {
		if len(path) >= MaxDepth {
			return nil, &CycleError{
				UserID: userID,
				Path:   walked,
				Reason: fmt.Sprintf("reporting chain exceeds maximum depth %d without reaching a root", MaxDepth),
			}
		}
		if visited[next] {
			return nil, &CycleError{
				UserID: userID,
				Path:   append(walked, next),
				Reason: fmt.Sprintf("user %s appears twice in the chain", next),
			}
		}
		visited[next] = true
		walked = append(walked, next)

		sup, ok, err := r.src.HierarchyEntry(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("load hierarchy entry: %w", err)
		}
		if !ok {
			// Referenced superior without a hierarchy row of their own:
			// they terminate the chain but are still a valid target.
			path = append(path, Step{UserID: next, DisplayName: sup.DisplayName})
			break
		}
		path = append(path, sup)
		next = sup.ReportsToID
	}

	return path, nil
}
