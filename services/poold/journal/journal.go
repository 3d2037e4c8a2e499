// Package journal keeps an append-only, hash-chained copy of every committed
// engine event in a relational database for audit and reconciliation.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"thurman/core/events"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var ErrChainBroken = errors.New("journal: hash chain broken")

// Entry is one journaled event. Hash commits to the previous entry's hash,
// the sequence number, the type and the attributes.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Pool       string    `gorm:"size:32;index" json:"pool,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex" json:"hash"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Entry) TableName() string { return "journal_entries" }

// Fields decodes the stored attributes.
func (e Entry) Fields() map[string]string {
	out := map[string]string{}
	if e.Attributes != "" {
		_ = json.Unmarshal([]byte(e.Attributes), &out)
	}
	return out
}

// Open connects to the journal database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return db, nil
}

// Journal appends events and serves them back in sequence order. It
// implements events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	seq  uint64
	head string
}

// New migrates the schema and resumes the chain from the latest entry.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, logger: log, now: time.Now}
	var last Entry
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("journal: load head: %w", err)
	default:
		j.seq = last.Seq
		j.head = last.Hash
	}
	return j, nil
}

// Emit journals e. Persistence failures are logged; the engine has already
// committed the transition the event describes.
func (j *Journal) Emit(e events.Event) {
	if e == nil {
		return
	}
	rec := &events.Record{Type: e.EventType()}
	if recordable, ok := e.(events.Recordable); ok {
		rec = recordable.Record()
	}
	if _, err := j.Append(context.Background(), rec); err != nil {
		j.logger.Error("journal append failed", "type", rec.Type, "error", err)
	}
}

// Append stores rec as the next entry of the chain.
func (j *Journal) Append(ctx context.Context, rec *events.Record) (Entry, error) {
	if rec == nil || strings.TrimSpace(rec.Type) == "" {
		return Entry{}, errors.New("journal: record type required")
	}
	attrs, err := json.Marshal(nonNil(rec.Attributes))
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       rec.Type,
		Pool:       rec.Attributes["pool"],
		Attributes: string(attrs),
		PrevHash:   j.head,
		CreatedAt:  j.now().UTC(),
	}
	entry.Hash = chainHash(entry.PrevHash, entry.Seq, entry.Type, entry.Attributes)
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, fmt.Errorf("journal: insert: %w", err)
	}
	j.seq = entry.Seq
	j.head = entry.Hash
	return entry, nil
}

func chainHash(prev string, seq uint64, typ, attrs string) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(prev))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(typ))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(attrs))
	return hex.EncodeToString(h.Sum(nil))
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Query filters a journal page.
type Query struct {
	Pool     string
	Type     string
	AfterSeq uint64
	Limit    int
}

// List returns entries after q.AfterSeq in sequence order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	tx := j.db.WithContext(ctx).Where("seq > ?", q.AfterSeq)
	if q.Pool != "" {
		tx = tx.Where("pool = ?", q.Pool)
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	var out []Entry
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Head returns the latest sequence number and hash.
func (j *Journal) Head() (uint64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}

// Verify walks the whole chain and reports the first entry whose hash or
// link does not match.
func (j *Journal) Verify(ctx context.Context) error {
	var (
		prev  string
		after uint64
	)
	for {
		page, err := j.List(ctx, Query{AfterSeq: after, Limit: maxPageSize})
		if err != nil {
			return err
		}
		for _, entry := range page {
			if entry.Seq != after+1 {
				return fmt.Errorf("%w: gap before seq %d", ErrChainBroken, entry.Seq)
			}
			if entry.PrevHash != prev {
				return fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, entry.Seq)
			}
			if chainHash(entry.PrevHash, entry.Seq, entry.Type, entry.Attributes) != entry.Hash {
				return fmt.Errorf("%w: seq %d hash mismatch", ErrChainBroken, entry.Seq)
			}
			prev = entry.Hash
			after = entry.Seq
		}
		if len(page) < maxPageSize {
			return nil
		}
	}
}
