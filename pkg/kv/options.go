package kv

import (
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EmptyCommitPolicy decides how to commit a session without pending changes
type EmptyCommitPolicy uint8

// Empty commit policies
const (
	// RejectEmptyCommit fails with status.ErrEmptyCommit
	RejectEmptyCommit EmptyCommitPolicy = iota
	// AllowEmptyCommit creates no snapshot and returns the current one.
	// The after commit policy applies as for any other commit.
	AllowEmptyCommit
)

// AfterCommitPolicy decides which session is active after a successful commit
type AfterCommitPolicy uint8

// After commit policies
const (
	// AfterCommitReadOnly pins the store read-only to the new snapshot
	AfterCommitReadOnly AfterCommitPolicy = iota
	// AfterCommitWritable keeps writing on the same branch
	AfterCommitWritable
)

// Option for a Store
type Option func(*Store)

// Logger for the store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// WithVersion opens the store read-only at a version
func WithVersion(ref model.VersionRef) Option {
	return func(s *Store) {
		s.initial = ref
		s.writable = false
	}
}

// WithBranch opens the store writable at the tip of a branch
func WithBranch(branch string) Option {
	return func(s *Store) {
		s.initial = model.BranchVersion(branch)
		s.writable = true
	}
}

// WithMetrics registers the store metrics
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.reg = reg
	}
}

// WithEmptyCommitPolicy sets the behavior of commits without changes
func WithEmptyCommitPolicy(policy EmptyCommitPolicy) Option {
	return func(s *Store) {
		s.emptyCommit = policy
	}
}

// WithAfterCommit sets the session which remains active after a commit
func WithAfterCommit(policy AfterCommitPolicy) Option {
	return func(s *Store) {
		s.afterCommit = policy
	}
}

// ClosesRepository makes Close release the underlying repository as well
func ClosesRepository() Option {
	return func(s *Store) {
		s.ownsRepo = true
	}
}

// CheckoutOption alters a checkout
type CheckoutOption func(*checkoutOptions)

type checkoutOptions struct {
	writable bool
}

// Writable checks out a writable session at the tip of a branch
func Writable() CheckoutOption {
	return func(o *checkoutOptions) {
		o.writable = true
	}
}
