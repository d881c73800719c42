package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"spendly/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL for every table and runs it against db.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// timeLayout is fixed width so that lexical order in TEXT columns matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func entryTable(t core.TransactionType) (string, error) {
	switch t {
	case core.Expense:
		return "expenses", nil
	case core.Income:
		return "incomes", nil
	default:
		return "", core.ErrUnknownTransactionType
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Recurring templates

const templateColumns = `id, transaction_type, amount_cents, category_id, account_id,
	description, frequency, next_date, last_processed, created_at`

func scanTemplate(row rowScanner) (core.RecurringTemplate, error) {
	var (
		rt                    core.RecurringTemplate
		txType, freq          string
		categoryID, accountID sql.NullString
		nextDate, createdAt   string
		lastProcessed         sql.NullString
	)
	if err := row.Scan(&rt.ID, &txType, &rt.Amount.Cents, &categoryID, &accountID,
		&rt.Description, &freq, &nextDate, &lastProcessed, &createdAt); err != nil {
		return rt, err
	}
	// Unknown names scan as the zero value so one bad row cannot hide the
	// others; the engine rejects such templates individually.
	rt.Type, _ = core.ParseTransactionType(txType)
	rt.Frequency, _ = core.ParseFrequency(freq)
	var err error
	rt.CategoryID = stringPtr(categoryID)
	rt.AccountID = stringPtr(accountID)
	if rt.NextDate, err = decodeTime(nextDate); err != nil {
		return rt, err
	}
	if rt.CreatedAt, err = decodeTime(createdAt); err != nil {
		return rt, err
	}
	if lastProcessed.Valid {
		lp, err := decodeTime(lastProcessed.String)
		if err != nil {
			return rt, err
		}
		rt.LastProcessed = &lp
	}
	return rt, nil
}

func collectTemplates(rows *sql.Rows) ([]core.RecurringTemplate, error) {
	defer rows.Close()
	var out []core.RecurringTemplate
	for rows.Next() {
		rt, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (q *Queries) GetDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates
		 WHERE next_date <= ? ORDER BY next_date, id`, encodeTime(now))
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func (q *Queries) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

func (q *Queries) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates ORDER BY next_date, id`)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func templateArgs(rt core.RecurringTemplate) []any {
	var lastProcessed sql.NullString
	if rt.LastProcessed != nil {
		lastProcessed = sql.NullString{String: encodeTime(*rt.LastProcessed), Valid: true}
	}
	return []any{
		rt.Type.String(), rt.Amount.Cents, nullString(rt.CategoryID), nullString(rt.AccountID),
		rt.Description, rt.Frequency.String(), encodeTime(rt.NextDate), lastProcessed,
		encodeTime(rt.CreatedAt), rt.ID,
	}
}

func (q *Queries) CreateTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (transaction_type, amount_cents, category_id, account_id,
			description, frequency, next_date, last_processed, created_at, id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, templateArgs(rt)...)
	return err
}

func (q *Queries) UpdateTemplate(ctx context.Context, rt core.RecurringTemplate) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_templates SET transaction_type = ?, amount_cents = ?, category_id = ?,
			account_id = ?, description = ?, frequency = ?, next_date = ?, last_processed = ?,
			created_at = ?
		 WHERE id = ?`, templateArgs(rt)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTemplate(ctx context.Context, id string) (int64, error) {
	return q.exec(ctx, `DELETE FROM recurring_templates WHERE id = ?`, id)
}

func (q *Queries) NullifyTemplateCategory(ctx context.Context, categoryID string) (int64, error) {
	return q.exec(ctx, `UPDATE recurring_templates SET category_id = NULL WHERE category_id = ?`, categoryID)
}

func (q *Queries) CountTemplatesByAccount(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recurring_templates WHERE account_id = ?`, accountID).Scan(&n)
	return n, err
}

func (q *Queries) ReassignTemplateAccount(ctx context.Context, oldID, newID string) (int64, error) {
	return q.exec(ctx, `UPDATE recurring_templates SET account_id = ? WHERE account_id = ?`, newID, oldID)
}

// Ledger entries

const entryColumns = `id, amount_cents, category_id, account_id, date, description, created_at, modified_at`

func scanEntry(row rowScanner, t core.TransactionType) (core.LedgerEntry, error) {
	var (
		e                           core.LedgerEntry
		categoryID                  sql.NullString
		date, createdAt, modifiedAt string
	)
	if err := row.Scan(&e.ID, &e.Amount.Cents, &categoryID, &e.AccountID, &date,
		&e.Description, &createdAt, &modifiedAt); err != nil {
		return e, err
	}
	e.Type = t
	e.CategoryID = stringPtr(categoryID)
	var err error
	if e.Date, err = decodeTime(date); err != nil {
		return e, err
	}
	if e.CreatedAt, err = decodeTime(createdAt); err != nil {
		return e, err
	}
	if e.ModifiedAt, err = decodeTime(modifiedAt); err != nil {
		return e, err
	}
	return e, nil
}

func (q *Queries) InsertEntry(ctx context.Context, e core.LedgerEntry) error {
	table, err := entryTable(e.Type)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO `+table+` (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount.Cents, nullString(e.CategoryID), e.AccountID, encodeTime(e.Date),
		e.Description, encodeTime(e.CreatedAt), encodeTime(e.ModifiedAt))
	return err
}

func (q *Queries) GetEntry(ctx context.Context, id string, t core.TransactionType) (core.LedgerEntry, error) {
	table, err := entryTable(t)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM `+table+` WHERE id = ?`, id)
	return scanEntry(row, t)
}

func (q *Queries) ListEntriesBetween(ctx context.Context, t core.TransactionType, start, end time.Time) ([]core.LedgerEntry, error) {
	table, err := entryTable(t)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM `+table+` WHERE date >= ? AND date < ? ORDER BY date, id`,
		encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteEntry(ctx context.Context, id string, t core.TransactionType) (int64, error) {
	table, err := entryTable(t)
	if err != nil {
		return 0, err
	}
	return q.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
}

func (q *Queries) ReassignEntryAccount(ctx context.Context, t core.TransactionType, oldID, newID string, at time.Time) (int64, error) {
	table, err := entryTable(t)
	if err != nil {
		return 0, err
	}
	return q.exec(ctx, `UPDATE `+table+` SET account_id = ?, modified_at = ? WHERE account_id = ?`,
		newID, encodeTime(at), oldID)
}

func (q *Queries) NullifyEntryCategory(ctx context.Context, t core.TransactionType, categoryID string, at time.Time) (int64, error) {
	table, err := entryTable(t)
	if err != nil {
		return 0, err
	}
	return q.exec(ctx, `UPDATE `+table+` SET category_id = NULL, modified_at = ? WHERE category_id = ?`,
		encodeTime(at), categoryID)
}

func (q *Queries) CountEntries(ctx context.Context, column, value string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM expenses WHERE `+column+` = ?)
		      + (SELECT COUNT(*) FROM incomes WHERE `+column+` = ?)`, value, value).Scan(&n)
	return n, err
}

func (q *Queries) SumExpenses(ctx context.Context, categoryID *string, start, end time.Time) (int64, error) {
	var total int64
	var err error
	if categoryID == nil {
		err = q.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE date >= ? AND date < ?`,
			encodeTime(start), encodeTime(end)).Scan(&total)
	} else {
		err = q.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
			 WHERE category_id = ? AND date >= ? AND date < ?`,
			*categoryID, encodeTime(start), encodeTime(end)).Scan(&total)
	}
	return total, err
}

func (q *Queries) SumIncomes(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM incomes WHERE date >= ? AND date < ?`,
		encodeTime(start), encodeTime(end)).Scan(&total)
	return total, err
}

type CategorySum struct {
	CategoryID sql.NullString
	Name       sql.NullString
	Total      int64
}

func (q *Queries) GetCategorySums(ctx context.Context, start, end time.Time) ([]CategorySum, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT e.category_id, c.name, SUM(e.amount_cents) AS total
		 FROM expenses e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE e.date >= ? AND e.date < ?
		 GROUP BY e.category_id, c.name
		 ORDER BY total DESC, c.name`,
		encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategorySum
	for rows.Next() {
		var cs CategorySum
		if err := rows.Scan(&cs.CategoryID, &cs.Name, &cs.Total); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Tag associations

func (q *Queries) AddTag(ctx context.Context, link core.TagLink) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entry_tags (entry_id, entry_type, tag_id) VALUES (?, ?, ?)`,
		link.EntryID, link.EntryType.String(), link.TagID)
	return err
}

func (q *Queries) TagsForEntry(ctx context.Context, entryID string, t core.TransactionType) ([]core.Tag, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.color FROM entry_tags et JOIN tags t ON t.id = et.tag_id
		 WHERE et.entry_id = ? AND et.entry_type = ? ORDER BY t.name`,
		entryID, t.String())
	if err != nil {
		return nil, err
	}
	return collectTags(rows)
}

func (q *Queries) DeleteTagsForEntry(ctx context.Context, entryID string, t core.TransactionType) (int64, error) {
	return q.exec(ctx, `DELETE FROM entry_tags WHERE entry_id = ? AND entry_type = ?`, entryID, t.String())
}

func (q *Queries) DeleteLinksForTag(ctx context.Context, tagID string) (int64, error) {
	return q.exec(ctx, `DELETE FROM entry_tags WHERE tag_id = ?`, tagID)
}

// Reference data

const referenceColumns = `id, name, icon, color, is_custom, is_default`

type referenceRow struct {
	ID, Name, Icon, Color string
	IsCustom, IsDefault   bool
}

func scanReference(row rowScanner) (referenceRow, error) {
	var r referenceRow
	err := row.Scan(&r.ID, &r.Name, &r.Icon, &r.Color, &r.IsCustom, &r.IsDefault)
	return r, err
}

func (q *Queries) getReference(ctx context.Context, table, id string) (referenceRow, error) {
	return scanReference(q.db.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM `+table+` WHERE id = ?`, id))
}

func (q *Queries) listReference(ctx context.Context, table string) ([]referenceRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+referenceColumns+` FROM `+table+` ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []referenceRow
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) upsertReference(ctx context.Context, table string, r referenceRow) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO `+table+` (`+referenceColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, icon = excluded.icon,
			color = excluded.color, is_custom = excluded.is_custom, is_default = excluded.is_default`,
		r.ID, r.Name, r.Icon, r.Color, boolInt(r.IsCustom), boolInt(r.IsDefault))
	return err
}

func (q *Queries) insertReferenceIfMissing(ctx context.Context, table string, r referenceRow) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (`+referenceColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Icon, r.Color, boolInt(r.IsCustom), boolInt(r.IsDefault))
	return err
}

func (q *Queries) deleteByID(ctx context.Context, table, id string) (int64, error) {
	return q.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
}

func (q *Queries) GetDefaultAccount(ctx context.Context) (referenceRow, error) {
	return scanReference(q.db.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM accounts WHERE is_default = 1 ORDER BY id LIMIT 1`))
}

func collectTags(rows *sql.Rows) ([]core.Tag, error) {
	defer rows.Close()
	var out []core.Tag
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) GetTag(ctx context.Context, id string) (core.Tag, error) {
	var t core.Tag
	err := q.db.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Color)
	return t, err
}

func (q *Queries) ListTags(ctx context.Context) ([]core.Tag, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collectTags(rows)
}

func (q *Queries) CreateTag(ctx context.Context, t core.Tag) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, color) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color`,
		t.ID, t.Name, t.Color)
	return err
}

// Budgets

const budgetColumns = `id, category_id, amount_cents, month, year, notified_75, notified_100`

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b          core.Budget
		categoryID sql.NullString
	)
	if err := row.Scan(&b.ID, &categoryID, &b.Amount.Cents, &b.Month, &b.Year,
		&b.Notified75, &b.Notified100); err != nil {
		return b, err
	}
	b.CategoryID = stringPtr(categoryID)
	return b, nil
}

func (q *Queries) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, nullString(b.CategoryID), b.Amount.Cents, b.Month, b.Year,
		boolInt(b.Notified75), boolInt(b.Notified100))
	return err
}

func (q *Queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
}

func (q *Queries) FindBudget(ctx context.Context, categoryID *string, year, month int) (core.Budget, error) {
	if categoryID == nil {
		return scanBudget(q.db.QueryRowContext(ctx,
			`SELECT `+budgetColumns+` FROM budgets
			 WHERE category_id IS NULL AND year = ? AND month = ?`, year, month))
	}
	return scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		 WHERE category_id = ? AND year = ? AND month = ?`, *categoryID, year, month))
}

func (q *Queries) UpdateBudget(ctx context.Context, b core.Budget) (int64, error) {
	return q.exec(ctx,
		`UPDATE budgets SET category_id = ?, amount_cents = ?, month = ?, year = ?,
			notified_75 = ?, notified_100 = ?
		 WHERE id = ?`,
		nullString(b.CategoryID), b.Amount.Cents, b.Month, b.Year,
		boolInt(b.Notified75), boolInt(b.Notified100), b.ID)
}

// DeleteCollidingCategoryBudgets removes the category's budgets whose period
// already has an overall budget.
func (q *Queries) DeleteCollidingCategoryBudgets(ctx context.Context, categoryID string) (int64, error) {
	return q.exec(ctx,
		`DELETE FROM budgets
		 WHERE category_id = ?
		   AND EXISTS (SELECT 1 FROM budgets o
		               WHERE o.category_id IS NULL AND o.month = budgets.month AND o.year = budgets.year)`,
		categoryID)
}

func (q *Queries) NullifyBudgetCategory(ctx context.Context, categoryID string) (int64, error) {
	return q.exec(ctx, `UPDATE budgets SET category_id = NULL WHERE category_id = ?`, categoryID)
}
