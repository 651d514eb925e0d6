// Package ledger keeps an append-only, hash-chained audit journal of wallet
// mutations.
//
//   - One journal per wallet; entries are never mutated or deleted
//   - Each entry hashes the RFC 8785 canonical JSON of its content and its
//     predecessor's hash
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

const genesis = "genesis"

// Entry types written by the engine.
const (
	EntryAcquire   = "ACQUIRE"
	EntryServe     = "SERVE"
	EntryDebit     = "DEBIT"
	EntryCredit    = "CREDIT"
	EntryReset     = "RESET"
	EntryRedeliver = "REDELIVER"
)

// Entry is an immutable, hash-chained journal entry.
type Entry struct {
	Sequence    uint64          `json:"sequence"`
	EntryType   string          `json:"entry_type"`
	ContentHash string          `json:"content_hash"`
	PrevHash    string          `json:"prev_hash"`
	Timestamp   time.Time       `json:"timestamp"`
	Author      string          `json:"author,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Journal is an append-only, hash-chained log.
type Journal struct {
	mu       sync.RWMutex
	owner    string
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewJournal creates an empty journal for owner.
func NewJournal(owner string) *Journal {
	return &Journal{
		owner:    owner,
		entries:  make([]Entry, 0),
		headHash: genesis,
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

func contentHash(seq uint64, entryType, author string, data json.RawMessage, prev string) (string, error) {
	raw, err := json.Marshal(struct {
		Seq      uint64          `json:"seq"`
		Type     string          `json:"type"`
		Author   string          `json:"author"`
		Data     json.RawMessage `json:"data"`
		PrevHash string          `json:"prev"`
	}{seq, entryType, author, data, prev})
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Append adds an entry and returns its sequence number.
func (j *Journal) Append(entryType, author string, data any) (uint64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal data: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to canonicalize data: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := uint64(len(j.entries)) + 1
	hash, err := contentHash(seq, entryType, author, canonical, j.headHash)
	if err != nil {
		return 0, err
	}
	j.entries = append(j.entries, Entry{
		Sequence:    seq,
		EntryType:   entryType,
		ContentHash: hash,
		PrevHash:    j.headHash,
		Timestamp:   j.clock().UTC(),
		Author:      author,
		Data:        canonical,
	})
	j.headHash = hash
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(seq uint64) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq == 0 || seq > uint64(len(j.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	e := j.entries[seq-1]
	return &e, nil
}

// Entries returns a copy of all entries in order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Owner returns the wallet id the journal belongs to.
func (j *Journal) Owner() string { return j.owner }

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Length returns the number of entries.
func (j *Journal) Length() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Verify recomputes the whole chain.
func (j *Journal) Verify() (bool, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return verifyChain(j.entries)
}

func verifyChain(entries []Entry) (bool, string) {
	prev := genesis
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return false, fmt.Sprintf("sequence gap at entry %d: got %d", i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, e.PrevHash)
		}
		computed, err := contentHash(e.Sequence, e.EntryType, e.Author, e.Data, e.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d: %v", i+1, err)
		}
		if computed != e.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prev = e.ContentHash
	}
	return true, "chain verified"
}
