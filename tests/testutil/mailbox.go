package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
)

// FakeMailbox is an in-memory mailbox.Mailbox keyed by folder and UID.
type FakeMailbox struct {
	mu      sync.Mutex
	folders map[string]map[uint32]model.MessageRecord

	// FetchErr and MoveErr, when set for a UID, are returned by Fetch and Move.
	FetchErr map[uint32]error
	MoveErr  map[uint32]error

	// ListErr is returned by Search and ListUIDs when set.
	ListErr error

	Fetches int
	Moves   []string
}

// NewFakeMailbox returns an empty fake.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{
		folders:  make(map[string]map[uint32]model.MessageRecord),
		FetchErr: make(map[uint32]error),
		MoveErr:  make(map[uint32]error),
	}
}

// Add places msg in its folder under its UID.
func (f *FakeMailbox) Add(msgs ...model.MessageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		if f.folders[m.Folder] == nil {
			f.folders[m.Folder] = make(map[uint32]model.MessageRecord)
		}
		f.folders[m.Folder][m.UID] = m
	}
}

// Remove deletes a UID from folder, as if another client had moved it.
func (f *FakeMailbox) Remove(folder string, uid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders[folder], uid)
}

// Has reports whether folder holds uid.
func (f *FakeMailbox) Has(folder string, uid uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.folders[folder][uid]
	return ok
}

func (f *FakeMailbox) Search(
	ctx context.Context,
	folder string,
	criteria mailbox.SearchCriteria,
) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var uids []uint32
	for uid, m := range f.folders[folder] {
		if !criteria.Since.IsZero() && m.ReceivedAt.Before(criteria.Since) {
			continue
		}
		if !criteria.Before.IsZero() && !m.ReceivedAt.Before(criteria.Before) {
			continue
		}
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (f *FakeMailbox) Fetch(ctx context.Context, folder string, uid uint32) (*model.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if err := f.FetchErr[uid]; err != nil {
		return nil, err
	}
	m, ok := f.folders[folder][uid]
	if !ok {
		return nil, fmt.Errorf("fetching UID %d: %w", uid, mailbox.ErrNoSuchMessage)
	}
	m.Status = ""
	return &m, nil
}

func (f *FakeMailbox) ListUIDs(ctx context.Context, folder string) ([]uint32, error) {
	return f.Search(ctx, folder, mailbox.SearchCriteria{})
}

func (f *FakeMailbox) Move(ctx context.Context, folder string, uid uint32, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.MoveErr[uid]; err != nil {
		return err
	}
	m, ok := f.folders[folder][uid]
	if !ok {
		return fmt.Errorf("moving UID %d: %w", uid, mailbox.ErrNoSuchMessage)
	}
	delete(f.folders[folder], uid)
	if f.folders[dest] == nil {
		f.folders[dest] = make(map[uint32]model.MessageRecord)
	}
	m.Folder = dest
	f.folders[dest][uid] = m
	f.Moves = append(f.Moves, model.MessageKey(folder, uid))
	return nil
}

func (f *FakeMailbox) ListFolders(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.folders))
	for name := range f.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeMailbox) Close() error { return nil }

var _ mailbox.Mailbox = (*FakeMailbox)(nil)
