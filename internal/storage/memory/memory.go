// Package memory is an in-process ports.Store used for local runs and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"spendly/internal/core"
	"spendly/internal/ports"
)

type state struct {
	templates  map[string]core.RecurringTemplate
	expenses   map[string]core.LedgerEntry
	incomes    map[string]core.LedgerEntry
	links      map[core.TagLink]struct{}
	categories map[string]core.Category
	accounts   map[string]core.Account
	tags       map[string]core.Tag
	budgets    map[string]core.Budget
}

type root struct {
	mu sync.Mutex
	st *state
}

// Store keeps the whole ledger in maps guarded by one mutex. A transaction
// works on a copy that replaces the live state on commit.
type Store struct {
	root *root
	tx   *state // non-nil inside InTx; the root mutex is already held
}

var _ ports.Store = (*Store)(nil)

// New returns a store seeded with the default category and account plus the
// given predefined names.
func New(categories, accounts []string) *Store {
	st := newState()
	def := core.DefaultCategory()
	st.categories[def.ID] = def
	acc := core.DefaultAccount()
	st.accounts[acc.ID] = acc
	for _, name := range dedupe(categories) {
		id := core.SeedID("category", name)
		if _, ok := st.categories[id]; !ok {
			st.categories[id] = core.Category{ID: id, Name: name}
		}
	}
	for _, name := range dedupe(accounts) {
		id := core.SeedID("account", name)
		if _, ok := st.accounts[id]; !ok {
			st.accounts[id] = core.Account{ID: id, Name: name}
		}
	}
	return &Store{root: &root{st: st}}
}

// NewFromFiles seeds the store from seed_categories.txt and seed_accounts.txt
// under base. Missing files are not an error.
func NewFromFiles(base string) *Store {
	return New(ReadSeedFiles(base))
}

// ReadSeedFiles returns the category and account names listed under base,
// one per line; blank lines and # comments are skipped.
func ReadSeedFiles(base string) (categories, accounts []string) {
	return readLines(filepath.Join(base, "seed_categories.txt")),
		readLines(filepath.Join(base, "seed_accounts.txt"))
}

func newState() *state {
	return &state{
		templates:  map[string]core.RecurringTemplate{},
		expenses:   map[string]core.LedgerEntry{},
		incomes:    map[string]core.LedgerEntry{},
		links:      map[core.TagLink]struct{}{},
		categories: map[string]core.Category{},
		accounts:   map[string]core.Account{},
		tags:       map[string]core.Tag{},
		budgets:    map[string]core.Budget{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.templates {
		c.templates[k] = v
	}
	for k, v := range st.expenses {
		c.expenses[k] = v
	}
	for k, v := range st.incomes {
		c.incomes[k] = v
	}
	for k := range st.links {
		c.links[k] = struct{}{}
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.tags {
		c.tags[k] = v
	}
	for k, v := range st.budgets {
		c.budgets[k] = v
	}
	return c
}

// view returns the state to operate on and the matching release func.
func (s *Store) view() (*state, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.root.mu.Lock()
	return s.root.st, s.root.mu.Unlock
}

// InTx runs fn on a private copy of the state and publishes it only when fn
// succeeds. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	work := s.root.st.clone()
	if err := fn(&Store{root: s.root, tx: work}); err != nil {
		return err
	}
	s.root.st = work
	return nil
}

// Templates

func (s *Store) FindDueTemplates(_ context.Context, now time.Time) ([]core.RecurringTemplate, error) {
	st, done := s.view()
	defer done()
	var out []core.RecurringTemplate
	for _, rt := range st.templates {
		if rt.IsDue(now) {
			out = append(out, rt)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (core.RecurringTemplate, error) {
	st, done := s.view()
	defer done()
	rt, ok := st.templates[id]
	if !ok {
		return core.RecurringTemplate{}, core.ErrNotFound
	}
	return rt, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]core.RecurringTemplate, error) {
	st, done := s.view()
	defer done()
	out := make([]core.RecurringTemplate, 0, len(st.templates))
	for _, rt := range st.templates {
		out = append(out, rt)
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) CreateTemplate(_ context.Context, rt core.RecurringTemplate) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	st, done := s.view()
	defer done()
	st.templates[rt.ID] = rt
	return nil
}

func (s *Store) SaveTemplate(_ context.Context, rt core.RecurringTemplate) error {
	st, done := s.view()
	defer done()
	if _, ok := st.templates[rt.ID]; !ok {
		return core.ErrNotFound
	}
	st.templates[rt.ID] = rt
	return nil
}

func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	st, done := s.view()
	defer done()
	if _, ok := st.templates[id]; !ok {
		return core.ErrNotFound
	}
	delete(st.templates, id)
	return nil
}

func (s *Store) NullifyTemplateCategory(_ context.Context, categoryID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for id, rt := range st.templates {
		if rt.CategoryID != nil && *rt.CategoryID == categoryID {
			rt.CategoryID = nil
			st.templates[id] = rt
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTemplatesByAccount(_ context.Context, accountID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for _, rt := range st.templates {
		if rt.AccountID != nil && *rt.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ReassignTemplateAccount(_ context.Context, oldID, newID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for id, rt := range st.templates {
		if rt.AccountID != nil && *rt.AccountID == oldID {
			moved := newID
			rt.AccountID = &moved
			st.templates[id] = rt
			n++
		}
	}
	return n, nil
}

func sortTemplates(ts []core.RecurringTemplate) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].NextDate.Equal(ts[j].NextDate) {
			return ts[i].NextDate.Before(ts[j].NextDate)
		}
		return ts[i].ID < ts[j].ID
	})
}

// Ledger

func (st *state) table(t core.TransactionType) (map[string]core.LedgerEntry, error) {
	switch t {
	case core.Expense:
		return st.expenses, nil
	case core.Income:
		return st.incomes, nil
	default:
		return nil, core.ErrUnknownTransactionType
	}
}

func (s *Store) insert(e core.LedgerEntry, t core.TransactionType) error {
	e.Type = t
	if err := e.Validate(); err != nil {
		return err
	}
	st, done := s.view()
	defer done()
	tbl, _ := st.table(t)
	tbl[e.ID] = e
	return nil
}

func (s *Store) InsertExpense(_ context.Context, e core.LedgerEntry) error {
	return s.insert(e, core.Expense)
}

func (s *Store) InsertIncome(_ context.Context, e core.LedgerEntry) error {
	return s.insert(e, core.Income)
}

func (s *Store) GetEntry(_ context.Context, id string, t core.TransactionType) (core.LedgerEntry, error) {
	st, done := s.view()
	defer done()
	tbl, err := st.table(t)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	e, ok := tbl[id]
	if !ok {
		return core.LedgerEntry{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEntries(_ context.Context, year, month int) ([]core.LedgerEntry, error) {
	st, done := s.view()
	defer done()
	start, end := core.MonthRange(year, month)
	var out []core.LedgerEntry
	for _, tbl := range []map[string]core.LedgerEntry{st.expenses, st.incomes} {
		for _, e := range tbl {
			if inRange(e.Date, start, end) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteEntry(_ context.Context, id string, t core.TransactionType) error {
	st, done := s.view()
	defer done()
	tbl, err := st.table(t)
	if err != nil {
		return err
	}
	if _, ok := tbl[id]; !ok {
		return core.ErrNotFound
	}
	delete(tbl, id)
	return nil
}

func (s *Store) ReassignAccount(_ context.Context, oldID, newID string, at time.Time) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for _, tbl := range []map[string]core.LedgerEntry{st.expenses, st.incomes} {
		for id, e := range tbl {
			if e.AccountID == oldID {
				e.AccountID = newID
				e.ModifiedAt = at
				tbl[id] = e
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) NullifyEntryCategory(_ context.Context, categoryID string, at time.Time) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for _, tbl := range []map[string]core.LedgerEntry{st.expenses, st.incomes} {
		for id, e := range tbl {
			if e.CategoryID != nil && *e.CategoryID == categoryID {
				e.CategoryID = nil
				e.ModifiedAt = at
				tbl[id] = e
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) CountByCategory(_ context.Context, categoryID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for _, tbl := range []map[string]core.LedgerEntry{st.expenses, st.incomes} {
		for _, e := range tbl {
			if e.CategoryID != nil && *e.CategoryID == categoryID {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) CountByAccount(_ context.Context, accountID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for _, tbl := range []map[string]core.LedgerEntry{st.expenses, st.incomes} {
		for _, e := range tbl {
			if e.AccountID == accountID {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) SumExpenses(_ context.Context, categoryID *string, year, month int) (core.Money, error) {
	st, done := s.view()
	defer done()
	start, end := core.MonthRange(year, month)
	var total core.Money
	for _, e := range st.expenses {
		if !inRange(e.Date, start, end) {
			continue
		}
		if categoryID != nil && (e.CategoryID == nil || *e.CategoryID != *categoryID) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (s *Store) ReadMonthOverview(_ context.Context, year, month int) (core.MonthOverview, error) {
	st, done := s.view()
	defer done()
	start, end := core.MonthRange(year, month)
	ov := core.MonthOverview{Year: year, Month: month}

	byCat := map[string]*core.CategoryAmount{}
	var order []string
	for _, e := range st.expenses {
		if !inRange(e.Date, start, end) {
			continue
		}
		ov.TotalExpense = ov.TotalExpense.Add(e.Amount)
		key := ""
		if e.CategoryID != nil {
			key = *e.CategoryID
		}
		ca, ok := byCat[key]
		if !ok {
			ca = &core.CategoryAmount{CategoryID: e.CategoryID}
			if c, found := st.categories[key]; found {
				ca.Name = c.Name
			}
			byCat[key] = ca
			order = append(order, key)
		}
		ca.Amount = ca.Amount.Add(e.Amount)
	}
	for _, e := range st.incomes {
		if inRange(e.Date, start, end) {
			ov.TotalIncome = ov.TotalIncome.Add(e.Amount)
		}
	}
	for _, k := range order {
		ov.ByCategory = append(ov.ByCategory, *byCat[k])
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount != ov.ByCategory[j].Amount {
			return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	return ov, nil
}

func inRange(t, start, end time.Time) bool {
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

// Tags

func (s *Store) AddTag(_ context.Context, link core.TagLink) error {
	st, done := s.view()
	defer done()
	if _, ok := st.tags[link.TagID]; !ok {
		return core.ErrNotFound
	}
	tbl, err := st.table(link.EntryType)
	if err != nil {
		return err
	}
	if _, ok := tbl[link.EntryID]; !ok {
		return core.ErrNotFound
	}
	st.links[link] = struct{}{}
	return nil
}

func (s *Store) TagsForEntry(_ context.Context, entryID string, t core.TransactionType) ([]core.Tag, error) {
	st, done := s.view()
	defer done()
	var out []core.Tag
	for l := range st.links {
		if l.EntryID == entryID && l.EntryType == t {
			if tag, ok := st.tags[l.TagID]; ok {
				out = append(out, tag)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteAllForEntry(_ context.Context, entryID string, t core.TransactionType) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for l := range st.links {
		if l.EntryID == entryID && l.EntryType == t {
			delete(st.links, l)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAllForTag(_ context.Context, tagID string) (int64, error) {
	st, done := s.view()
	defer done()
	var n int64
	for l := range st.links {
		if l.TagID == tagID {
			delete(st.links, l)
			n++
		}
	}
	return n, nil
}

// Reference data

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	st, done := s.view()
	defer done()
	c, ok := st.categories[id]
	if !ok {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	st, done := s.view()
	defer done()
	out := make([]core.Category, 0, len(st.categories))
	for _, c := range st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	st, done := s.view()
	defer done()
	st.categories[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	st, done := s.view()
	defer done()
	if _, ok := st.categories[id]; !ok {
		return core.ErrNotFound
	}
	delete(st.categories, id)
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	st, done := s.view()
	defer done()
	a, ok := st.accounts[id]
	if !ok {
		return core.Account{}, core.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	st, done := s.view()
	defer done()
	out := make([]core.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	st, done := s.view()
	defer done()
	st.accounts[a.ID] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	st, done := s.view()
	defer done()
	if _, ok := st.accounts[id]; !ok {
		return core.ErrNotFound
	}
	delete(st.accounts, id)
	return nil
}

func (s *Store) DefaultAccount(_ context.Context) (core.Account, error) {
	st, done := s.view()
	defer done()
	for _, a := range st.accounts {
		if a.IsDefault {
			return a, nil
		}
	}
	return core.Account{}, core.ErrNotFound
}

func (s *Store) GetTag(_ context.Context, id string) (core.Tag, error) {
	st, done := s.view()
	defer done()
	t, ok := st.tags[id]
	if !ok {
		return core.Tag{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTags(_ context.Context) ([]core.Tag, error) {
	st, done := s.view()
	defer done()
	out := make([]core.Tag, 0, len(st.tags))
	for _, t := range st.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateTag(_ context.Context, t core.Tag) error {
	st, done := s.view()
	defer done()
	st.tags[t.ID] = t
	return nil
}

func (s *Store) DeleteTag(_ context.Context, id string) error {
	st, done := s.view()
	defer done()
	if _, ok := st.tags[id]; !ok {
		return core.ErrNotFound
	}
	delete(st.tags, id)
	return nil
}

// Budgets

func sameCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (st *state) findBudget(categoryID *string, year, month int) (core.Budget, bool) {
	for _, b := range st.budgets {
		if b.Year == year && b.Month == month && sameCategory(b.CategoryID, categoryID) {
			return b, true
		}
	}
	return core.Budget{}, false
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	st, done := s.view()
	defer done()
	if _, taken := st.findBudget(b.CategoryID, b.Year, b.Month); taken {
		return core.ErrBudgetExists
	}
	st.budgets[b.ID] = b
	return nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	st, done := s.view()
	defer done()
	b, ok := st.budgets[id]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) FindBudget(_ context.Context, categoryID *string, year, month int) (core.Budget, error) {
	st, done := s.view()
	defer done()
	b, ok := st.findBudget(categoryID, year, month)
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	st, done := s.view()
	defer done()
	if _, ok := st.budgets[b.ID]; !ok {
		return core.ErrNotFound
	}
	if other, taken := st.findBudget(b.CategoryID, b.Year, b.Month); taken && other.ID != b.ID {
		return core.ErrBudgetExists
	}
	st.budgets[b.ID] = b
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	st, done := s.view()
	defer done()
	if _, ok := st.budgets[id]; !ok {
		return core.ErrNotFound
	}
	delete(st.budgets, id)
	return nil
}

func (s *Store) NullifyBudgetCategory(_ context.Context, categoryID string) (int64, int64, error) {
	st, done := s.view()
	defer done()

	ids := make([]string, 0)
	for id, b := range st.budgets {
		if b.CategoryID != nil && *b.CategoryID == categoryID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var nullified, deleted int64
	for _, id := range ids {
		b := st.budgets[id]
		if _, taken := st.findBudget(nil, b.Year, b.Month); taken {
			delete(st.budgets, id)
			deleted++
			continue
		}
		b.CategoryID = nil
		st.budgets[id] = b
		nullified++
	}
	return nullified, deleted, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
