package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mailtriage/internal/model"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreLocked is returned when another process holds the writer lease.
	ErrStoreLocked = errors.New("store is locked by another writer")
)

// MessageFilter controls which message records ListMessages returns.
type MessageFilter struct {
	Statuses []model.MessageStatus // any of these, or all when empty
	Folder   string
	Sender   string
	Limit    int
}

// VerdictFilter narrows listings of classified messages.
type VerdictFilter struct {
	Statuses      []model.MessageStatus
	Label         model.Label
	Source        model.Source
	Sender        string
	MinConfidence float64 // compared against the calibrated confidence

	// Undecided keeps only messages with no decision on record.
	Undecided bool

	Limit int
}

// ClassifiedMessage is a message joined with its current verdict.
type ClassifiedMessage struct {
	model.MessageRecord
	model.Verdict
}

// DBStats summarizes the contents of the store.
type DBStats struct {
	Messages  int
	Decisions int
	ByStatus  map[model.MessageStatus]int
	BySource  map[model.Source]int
	ByLabel   map[model.Label]int
}

// Lease describes the current writer lease holder.
type Lease struct {
	Owner      string    `db:"owner"`
	Command    string    `db:"command"`
	AcquiredAt time.Time `db:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// Querier is the set of record operations available on the store and
// inside a transaction started by Store.InTx.
type Querier interface {
	// === Messages ===

	UpsertMessage(ctx context.Context, msg model.MessageRecord) error
	GetMessage(ctx context.Context, id string) (*model.MessageRecord, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.MessageRecord, error)
	SetMessageStatus(ctx context.Context, id string, status model.MessageStatus, at time.Time) error
	DeleteMessage(ctx context.Context, id string) error

	// === Verdicts ===

	SaveVerdict(ctx context.Context, v model.Verdict) error
	GetVerdict(ctx context.Context, messageID string) (*model.Verdict, error)
	ClassifiedIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ListClassified(ctx context.Context, filter VerdictFilter) ([]ClassifiedMessage, error)
	ListApprovedDeletes(ctx context.Context) ([]ClassifiedMessage, error)

	// === Decisions ===

	InsertDecision(ctx context.Context, d model.Decision) error
	LatestDecision(ctx context.Context, messageID string) (*model.Decision, error)
	ListDecisions(ctx context.Context, messageID string) ([]model.Decision, error)
	ListExemplars(ctx context.Context, sender string, limit int) ([]model.Exemplar, error)

	// === Profiles ===

	GetProfile(ctx context.Context, g model.Granularity, key string) (*model.SenderProfile, error)
	SaveProfile(ctx context.Context, p model.SenderProfile) error
	ListProfiles(ctx context.Context, g model.Granularity) ([]model.SenderProfile, error)

	// === Calibration ===

	ListBuckets(ctx context.Context) ([]model.CalibrationBucket, error)
	SaveBucket(ctx context.Context, b model.CalibrationBucket) error

	// === Reporting ===

	Stats(ctx context.Context) (*DBStats, error)
}

// Store defines the persistence interface for messages, verdicts,
// decisions, sender profiles and calibration buckets.
type Store interface {
	Querier

	// InTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Querier) error) error

	// AcquireWriterLease claims the exclusive writer lease for command.
	// It returns ErrStoreLocked when an unexpired lease is held elsewhere.
	AcquireWriterLease(ctx context.Context, command string, ttl time.Duration) (string, error)

	// ReleaseWriterLease drops the lease if owner still holds it.
	ReleaseWriterLease(ctx context.Context, owner string) error

	// CurrentLease returns the active lease, or ErrNotFound.
	CurrentLease(ctx context.Context) (*Lease, error)

	Close() error
}
