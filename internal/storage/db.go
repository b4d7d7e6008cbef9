package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rfqdesk/internal"
	"rfqdesk/internal/util"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS price_requests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  messageId INTEGER NOT NULL,
  internalId TEXT NOT NULL UNIQUE,
  externalRef TEXT,
  brand TEXT,
  method TEXT NOT NULL,
  needsReview INTEGER NOT NULL DEFAULT 0,
  subjectNorm TEXT,
  senderEmail TEXT,
  rfcMessageId TEXT,
  sheetsJson TEXT NOT NULL,
  warningsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(messageId) REFERENCES messages(id)
);
CREATE INDEX IF NOT EXISTS idx_requests_externalRef ON price_requests(externalRef);
CREATE INDEX IF NOT EXISTS idx_requests_rfcMessageId ON price_requests(rfcMessageId);
CREATE INDEX IF NOT EXISTS idx_requests_subject_sender ON price_requests(subjectNorm, senderEmail);

CREATE TABLE IF NOT EXISTS line_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  requestId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  description TEXT NOT NULL,
  qty REAL NOT NULL,
  unit TEXT,
  refCode TEXT,
  supplierCode TEXT,
  brand TEXT,
  notes TEXT,
  estimated INTEGER NOT NULL DEFAULT 0,
  needsReview INTEGER NOT NULL DEFAULT 0,
  UNIQUE(requestId, lineNo),
  FOREIGN KEY(requestId) REFERENCES price_requests(id)
);

CREATE TABLE IF NOT EXISTS brands (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  aliasesJson TEXT NOT NULL,
  supplier TEXT,
  email TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_brands_name ON brands(name);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  messageId INTEGER,
  verdict TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(messageId) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// NextRequestID hands out DDP-YYYYMMDD-N identifiers, with N restarting
// at 1 each day. The daily counter lives in metadata so ids stay unique
// even after requests are deleted.
func (d *DB) NextRequestID(now time.Time) (string, error) {
	day := now.Format("20060102")
	key := "request_seq_" + day

	tx, err := d.conn.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var value string
	seq := 0
	err = tx.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err == nil {
		seq, _ = strconv.Atoi(value)
	}
	seq++

	if _, err := tx.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, strconv.Itoa(seq)); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	return fmt.Sprintf("DDP-%s-%d", day, seq), nil
}

func (d *DB) UpsertMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MessageRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO messages (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MessageRow{}, err
	}

	row, err := d.GetMessageByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, errors.New("failed to upsert message")
	}
	return *row, nil
}

func (d *DB) GetMessageByProviderMessageID(provider, messageID string) (*internal.MessageRow, error) {
	var row internal.MessageRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM messages WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustMessageByProviderMessageID(provider, messageID string) (internal.MessageRow, error) {
	row, err := d.GetMessageByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, fmt.Errorf("message not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListMessagesByStatus(status string, limit int) ([]internal.MessageRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM messages WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MessageRow
	for rows.Next() {
		var row internal.MessageRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMessageStatus(messageID int, status string) error {
	_, err := d.conn.Exec(`UPDATE messages SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, messageID)
	return err
}

// InsertPriceRequest stores one emitted request with its line items. The
// normalized subject and sender address are kept alongside so later
// reminders of this request can be recognized.
func (d *DB) InsertPriceRequest(messageID int, msg internal.InboundMessage, request internal.PriceRequest) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sheetsJSON, _ := json.Marshal(request.TechnicalSheets)
	warningsJSON, _ := json.Marshal(request.Warnings)

	result, err := tx.Exec(`
INSERT INTO price_requests (
  messageId, internalId, externalRef, brand, method, needsReview,
  subjectNorm, senderEmail, rfcMessageId, sheetsJson, warningsJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, messageID, request.InternalID, request.ExternalRef, request.Brand,
		string(request.Method), boolInt(request.NeedsReview),
		util.NormalizeSubject(msg.Subject), senderAddress(msg.Sender), msg.MessageID,
		string(sheetsJSON), string(warningsJSON))
	if err != nil {
		return err
	}
	requestID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO line_items (requestId, lineNo, description, qty, unit, refCode, supplierCode, brand, notes, estimated, needsReview)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range request.Items {
		if _, err := stmt.Exec(
			requestID, i+1, item.Description, item.Qty,
			item.Unit, item.RefCode, item.SupplierCode, item.Brand, item.Notes,
			boolInt(item.IsEstimated), boolInt(item.NeedsManualReview),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetRequestByInternalID(internalID string) (*internal.PriceRequest, error) {
	var request internal.PriceRequest
	var rowID int64
	var sheetsJSON, warningsJSON string
	var needsReview int
	err := d.conn.QueryRow(`
SELECT id, internalId, externalRef, brand, method, needsReview, sheetsJson, warningsJson
FROM price_requests WHERE internalId = ?
`, internalID).Scan(
		&rowID, &request.InternalID, &request.ExternalRef, &request.Brand,
		&request.Method, &needsReview, &sheetsJSON, &warningsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	request.NeedsReview = needsReview != 0
	_ = json.Unmarshal([]byte(sheetsJSON), &request.TechnicalSheets)
	_ = json.Unmarshal([]byte(warningsJSON), &request.Warnings)

	rows, err := d.conn.Query(`
SELECT description, qty, unit, refCode, supplierCode, brand, notes, estimated, needsReview
FROM line_items WHERE requestId = ? ORDER BY lineNo ASC
`, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item internal.LineItem
		var estimated, itemReview int
		if err := rows.Scan(
			&item.Description, &item.Qty, &item.Unit, &item.RefCode,
			&item.SupplierCode, &item.Brand, &item.Notes, &estimated, &itemReview,
		); err != nil {
			return nil, err
		}
		item.IsEstimated = estimated != 0
		item.NeedsManualReview = itemReview != 0
		request.Items = append(request.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &request, nil
}

func (d *DB) ListRequestIDsByMessage(messageID int) ([]string, error) {
	rows, err := d.conn.Query(`SELECT internalId FROM price_requests WHERE messageId = ? ORDER BY id ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FindByExternalReference satisfies internal.RequestLedger. Lookup
// failures count as "not found": a classifier probe must never abort
// message processing.
func (d *DB) FindByExternalReference(ref string) (string, bool) {
	return d.findInternalID(`SELECT internalId FROM price_requests WHERE externalRef = ? ORDER BY id DESC LIMIT 1`, ref)
}

func (d *DB) FindByMessageID(messageID string) (string, bool) {
	return d.findInternalID(`SELECT internalId FROM price_requests WHERE rfcMessageId = ? ORDER BY id DESC LIMIT 1`, messageID)
}

func (d *DB) FindBySubjectAndSender(subject, sender string) (string, bool) {
	if subject == "" || sender == "" {
		return "", false
	}
	return d.findInternalID(`
SELECT internalId FROM price_requests WHERE subjectNorm = ? AND senderEmail = ? ORDER BY id DESC LIMIT 1
`, subject, sender)
}

func (d *DB) findInternalID(query string, args ...any) (string, bool) {
	var id string
	err := d.conn.QueryRow(query, args...).Scan(&id)
	if err != nil {
		return "", false
	}
	return id, true
}

func (d *DB) UpsertBrands(brands []internal.BrandRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO brands (id, name, aliasesJson, supplier, email, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  aliasesJson=excluded.aliasesJson,
  supplier=excluded.supplier,
  email=excluded.email,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range brands {
		aliasesJSON, _ := json.Marshal(b.Aliases)
		if _, err := stmt.Exec(b.ID, b.Name, string(aliasesJSON), b.Supplier, b.Email, b.RawJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListBrands() ([]internal.BrandRecord, error) {
	rows, err := d.conn.Query(`SELECT id, name, aliasesJson, supplier, email, raw_json FROM brands`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BrandRecord
	for rows.Next() {
		var b internal.BrandRecord
		var aliasesJSON string
		if err := rows.Scan(&b.ID, &b.Name, &aliasesJSON, &b.Supplier, &b.Email, &b.RawJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliasesJSON), &b.Aliases)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, messageID int, timings map[string]float64, counts map[string]int, verdict string) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, messageId, verdict, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)
`, traceID, messageID, verdict, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func senderAddress(sender string) string {
	s := strings.ToLower(strings.TrimSpace(sender))
	if start := strings.LastIndex(s, "<"); start >= 0 {
		if end := strings.Index(s[start:], ">"); end > 0 {
			return s[start+1 : start+end]
		}
	}
	return s
}
