// Package domainset implements the domain manager (C7): the set of
// domain+scheme pairs a Model drives, the shared sync method and spares
// target, and the cross-domain link hooks spec.md §4.7 and §9 scope as
// "hooks only" for this single-domain-in-scope module.
//
// Grounded on the teacher's config.DeviceBuilder, which holds one device's
// construction parameters behind a fluent builder; Set plays the analogous
// role one level up, holding the domains a Model iterates instead of the
// tiles a CGRA mesh iterates.
package domainset

import (
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/scheme"
)

// Member pairs one domain with the scheme driving it.
type Member struct {
	Domain *domain.Domain
	Scheme *scheme.Scheme
}

// Link is the cross-domain exchange hook spec.md §4.7 and §9 describe as
// "hooks exist but the core is single-node" — a real multi-domain driver
// implements this to move boundary-coupling data between two Members'
// schemes without either Set or Scheme needing to know about the other
// domain directly.
type Link interface {
	// PushToBuffer copies from's boundary-relevant state into the link's
	// own staging area.
	PushToBuffer(from Member) error
	// PullFromBuffer applies the link's staged state into to's boundary
	// coupling buffer.
	PullFromBuffer(to Member) error
}

// Set holds the domains a Model drives together, the sync method shared
// across them, and the spares target used by forecast-mode sync proposals
// (spec.md §4.5.6, §4.7).
type Set struct {
	Members      []Member
	SyncMethod   scheme.SyncMethod
	SparesTarget int
	links        []Link
}

// New constructs a Set over members.
func New(members []Member, syncMethod scheme.SyncMethod, sparesTarget int) *Set {
	return &Set{Members: members, SyncMethod: syncMethod, SparesTarget: sparesTarget}
}

// AddLink registers a cross-domain link to be run during Import.
func (s *Set) AddLink(l Link) { s.links = append(s.links, l) }

// IsSetReady reports whether every member's scheme has reached its expected
// sync point. For the single-domain case in scope this collapses to "the
// one scheme is prepared and sync-ready" exactly as spec.md §4.7 specifies;
// the loop generalises unchanged to N members.
func (s *Set) IsSetReady(expectedTarget float64) bool {
	if len(s.Members) == 0 {
		return false
	}
	for _, m := range s.Members {
		if !m.Scheme.IsSimulationSyncReady(expectedTarget) {
			return false
		}
	}
	return true
}

// AnyFailure reports whether any member's scheme has raised a rollback
// condition (spec.md §4.5.9).
func (s *Set) AnyFailure(expectedTarget float64) bool {
	for _, m := range s.Members {
		if m.Scheme.IsSimulationFailure(expectedTarget) {
			return true
		}
	}
	return false
}

// ProposeSyncPoint returns the minimum of every member's proposed sync
// point, so no domain in the set is asked to run past what its slowest
// sibling can currently support.
func (s *Set) ProposeSyncPoint() float64 {
	if len(s.Members) == 0 {
		return 0
	}
	target := s.Members[0].Scheme.ProposeSyncPoint()
	for _, m := range s.Members[1:] {
		if t := m.Scheme.ProposeSyncPoint(); t < target {
			target = t
		}
	}
	return target
}

// SetTargetTime pushes t to every member.
func (s *Set) SetTargetTime(t float64) error {
	for _, m := range s.Members {
		if err := m.Scheme.SetTargetTime(t); err != nil {
			return err
		}
	}
	return nil
}

// RunSimulation requests one batch on every member.
func (s *Set) RunSimulation(wallClock float64) error {
	for _, m := range s.Members {
		if err := m.Scheme.RunSimulation(wallClock); err != nil {
			return err
		}
	}
	return nil
}

// Import runs every registered Link's push/pull pass across all member
// pairs, then tells each member's scheme to process the import branch
// (spec.md §4.5.5's importLinks). A Set with no links still calls
// ImportLinks on each member, since the per-scheme counter reset it
// performs applies regardless of whether cross-domain data moved.
func (s *Set) Import() error {
	for _, l := range s.links {
		for _, from := range s.Members {
			if err := l.PushToBuffer(from); err != nil {
				return errs.Wrap(errs.ModelContinue, from.Scheme.CurrentTime(), err)
			}
		}
		for _, to := range s.Members {
			if err := l.PullFromBuffer(to); err != nil {
				return errs.Wrap(errs.ModelContinue, to.Scheme.CurrentTime(), err)
			}
		}
	}
	for _, m := range s.Members {
		if err := m.Scheme.ImportLinks(); err != nil {
			return err
		}
	}
	return nil
}

// MarkSynced checkpoints every member.
func (s *Set) MarkSynced() error {
	for _, m := range s.Members {
		if err := m.Scheme.MarkSynced(); err != nil {
			return err
		}
	}
	return nil
}

// Rollback rolls every member back to newTarget.
func (s *Set) Rollback(newTarget float64) error {
	for _, m := range s.Members {
		if err := m.Scheme.Rollback(newTarget); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup stops every member's background worker.
func (s *Set) Cleanup() {
	for _, m := range s.Members {
		m.Scheme.Cleanup()
	}
}

// RequestAbort broadcasts the cooperative abort flag to every member.
func (s *Set) RequestAbort() {
	for _, m := range s.Members {
		m.Scheme.RequestAbort()
	}
}

// AbortRequested reports whether any member has been asked to abort.
func (s *Set) AbortRequested() bool {
	for _, m := range s.Members {
		if m.Scheme.AbortRequested() {
			return true
		}
	}
	return false
}

// CurrentTime returns the slowest member's clock, i.e. the Set's overall
// progress (members stay within RollbackLimit iterations of each other by
// construction once IsSetReady gates advancement).
func (s *Set) CurrentTime() float64 {
	if len(s.Members) == 0 {
		return 0
	}
	t := s.Members[0].Scheme.CurrentTime()
	for _, m := range s.Members[1:] {
		if mt := m.Scheme.CurrentTime(); mt < t {
			t = mt
		}
	}
	return t
}
