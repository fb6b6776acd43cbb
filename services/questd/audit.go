package questd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"questvault/core/events"
	"questvault/core/types"
)

// AuditRecord is one committed ledger event. Digest is the blake3 hash of the
// canonical rendering.
type AuditRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text"`
	Digest     string    `gorm:"size:64;index"`
	CreatedAt  time.Time `gorm:"index"`
}

func (AuditRecord) TableName() string { return "quest_audit" }

// OpenAuditDB opens the audit database and migrates the schema. Supported
// drivers are sqlite and postgres.
func OpenAuditDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("audit: postgres dsn required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return db, nil
}

// Canonical renders an event as its type followed by sorted key=value lines.
func Canonical(evt *types.Event) []byte {
	var b strings.Builder
	b.WriteString(evt.Type)
	for _, key := range evt.SortedKeys() {
		b.WriteByte('\n')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[key])
	}
	return []byte(b.String())
}

// EventDigest is the hex blake3 digest of the canonical rendering.
func EventDigest(evt *types.Event) string {
	sum := blake3.Sum256(Canonical(evt))
	return hex.EncodeToString(sum[:])
}

// AuditSink persists every emitted event. Emission happens after commit, so a
// failed insert is logged and never undoes the ledger write.
type AuditSink struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditSink(db *gorm.DB, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{db: db, logger: logger, now: time.Now}
}

// Emit implements events.Emitter.
func (s *AuditSink) Emit(evt events.Event) {
	if s == nil || s.db == nil || evt == nil {
		return
	}
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		s.logger.Error("audit: encode attributes", slog.String("type", rendered.Type), slog.Any("error", err))
		return
	}
	record := AuditRecord{
		ID:         uuid.New(),
		Type:       rendered.Type,
		Attributes: string(attrs),
		Digest:     EventDigest(rendered),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Error("audit: insert", slog.String("type", rendered.Type), slog.Any("error", err))
	}
}

// Recent returns up to limit records, newest first, optionally filtered by
// event type.
func (s *AuditSink) Recent(eventType string, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.Order("created_at desc").Limit(limit)
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var out []AuditRecord
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
