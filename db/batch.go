package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// batchFlushThreshold is the operation count at which a batch flushes itself.
const batchFlushThreshold = 100

// ConflictError aggregates every uniqueness conflict a flush encountered:
// duplicates within the batch and collisions with rows already present.
type ConflictError struct {
	Table string
	Keys  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d uniqueness conflicts on %s: %s",
		len(e.Keys), e.Table, strings.Join(e.Keys, ", "))
}

type batchInsert struct {
	values Record
	key    string
}

type batchUpdate struct {
	id      int64
	changes Record
}

// Batch groups homogeneous writes against one table into bulk statements.
// Operations accumulate until Flush, the threshold, or Close. Each flush runs
// in a single transaction: duplicates inside the batch are deduplicated and
// reported, conflicts with existing rows roll the whole flush back.
type Batch struct {
	runner  TxRunner
	table   string
	keyCols []string
	columns []string

	inserts []batchInsert
	updates []batchUpdate
	deletes []int64
}

// NewBatch builds a batch executor for table. keyCols name the unique key
// used for conflict detection; columns fixes the insert column order. All
// identifiers must already be allow-listed.
func NewBatch(runner TxRunner, table string, keyCols []string, columns []string) (*Batch, error) {
	if _, err := SafeTable(table); err != nil {
		return nil, err
	}
	for _, col := range append(append([]string{}, keyCols...), columns...) {
		if _, err := SafeColumn(table, col); err != nil {
			return nil, err
		}
	}
	for _, key := range keyCols {
		found := false
		for _, col := range columns {
			if col == key {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("key column %q missing from batch columns", key)
		}
	}
	return &Batch{runner: runner, table: table, keyCols: keyCols, columns: columns}, nil
}

// Len reports how many operations are pending.
func (b *Batch) Len() int {
	return len(b.inserts) + len(b.updates) + len(b.deletes)
}

// AddInsert queues a row. Flushes automatically once the threshold is hit.
func (b *Batch) AddInsert(ctx context.Context, values Record) error {
	b.inserts = append(b.inserts, batchInsert{values: values, key: b.keyOf(values)})
	return b.maybeFlush(ctx)
}

// AddUpdate queues a change set for one row id.
func (b *Batch) AddUpdate(ctx context.Context, id int64, changes Record) error {
	for col := range changes {
		if _, err := SafeColumn(b.table, col); err != nil {
			return err
		}
	}
	b.updates = append(b.updates, batchUpdate{id: id, changes: changes})
	return b.maybeFlush(ctx)
}

// AddDelete queues a row deletion.
func (b *Batch) AddDelete(ctx context.Context, id int64) error {
	b.deletes = append(b.deletes, id)
	return b.maybeFlush(ctx)
}

func (b *Batch) maybeFlush(ctx context.Context) error {
	if b.Len() >= batchFlushThreshold {
		return b.Flush(ctx)
	}
	return nil
}

// Close flushes whatever is pending; it is the scope-exit flush.
func (b *Batch) Close(ctx context.Context) error {
	return b.Flush(ctx)
}

// Flush executes all pending operations in one transaction. On any failure
// the transaction rolls back and no operation takes effect. The returned
// error is a *ConflictError when the only problem was uniqueness conflicts;
// note that a conflict-free subset deduplicated from in-batch duplicates
// still commits in that case only when no stored row collided.
func (b *Batch) Flush(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}

	inserts := b.inserts
	updates := b.updates
	deletes := b.deletes
	b.inserts = nil
	b.updates = nil
	b.deletes = nil

	// Deduplicate in-batch rows sharing a unique key before touching the
	// database; the duplicates are conflicts by definition.
	distinct, dupKeys := dedupeInserts(inserts)

	var storeConflicts []string
	err := b.runner.WithinTransaction(ctx, func(ctx context.Context, ex Executor) error {
		if len(distinct) > 0 {
			insertedKeys, err := b.bulkInsert(ctx, ex, distinct)
			if err != nil {
				return err
			}
			if len(insertedKeys) < len(distinct) {
				storeConflicts = missingKeys(distinct, insertedKeys)
				return &ConflictError{Table: b.table, Keys: storeConflicts}
			}
		}
		for _, u := range updates {
			if err := b.applyUpdate(ctx, ex, u); err != nil {
				return err
			}
		}
		if len(deletes) > 0 {
			placeholders := make([]string, len(deletes))
			args := make([]any, len(deletes))
			for i, id := range deletes {
				placeholders[i] = fmt.Sprintf("$%d", i+1)
				args[i] = id
			}
			stmt := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", b.table, strings.Join(placeholders, ", "))
			if _, err := ex.Exec(ctx, stmt, args...); err != nil {
				return fmt.Errorf("failed to flush deletes: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(dupKeys) > 0 {
		sort.Strings(dupKeys)
		return &ConflictError{Table: b.table, Keys: dupKeys}
	}
	return nil
}

// bulkInsert writes the distinct rows with ON CONFLICT DO NOTHING and
// returns the keys actually inserted. A shortfall means stored rows collided.
func (b *Batch) bulkInsert(ctx context.Context, ex Executor, rows []batchInsert) ([]string, error) {
	var (
		valueClauses []string
		args         []any
	)
	argn := 1
	for _, row := range rows {
		ph := make([]string, len(b.columns))
		for i, col := range b.columns {
			ph[i] = fmt.Sprintf("$%d", argn)
			args = append(args, row.values[col])
			argn++
		}
		valueClauses = append(valueClauses, "("+strings.Join(ph, ", ")+")")
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING RETURNING %s",
		b.table,
		strings.Join(b.columns, ", "),
		strings.Join(valueClauses, ", "),
		strings.Join(b.keyCols, ", "),
	)

	records, err := ex.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to flush inserts: %w", err)
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, b.keyOf(rec))
	}
	return keys, nil
}

func (b *Batch) applyUpdate(ctx context.Context, ex Executor, u batchUpdate) error {
	cols := make([]string, 0, len(u.changes))
	for col := range u.changes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, u.changes[col])
	}
	args = append(args, u.id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", b.table, strings.Join(sets, ", "), len(cols)+1)
	if _, err := ex.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to flush update for id %d: %w", u.id, err)
	}
	return nil
}

func (b *Batch) keyOf(values Record) string {
	parts := make([]string, len(b.keyCols))
	for i, col := range b.keyCols {
		parts[i] = fmt.Sprintf("%v", values[col])
	}
	return strings.Join(parts, "|")
}

func dedupeInserts(rows []batchInsert) ([]batchInsert, []string) {
	seen := make(map[string]struct{}, len(rows))
	var distinct []batchInsert
	var dups []string
	for _, row := range rows {
		if _, ok := seen[row.key]; ok {
			dups = append(dups, row.key)
			continue
		}
		seen[row.key] = struct{}{}
		distinct = append(distinct, row)
	}
	return distinct, dups
}

func missingKeys(rows []batchInsert, inserted []string) []string {
	present := make(map[string]struct{}, len(inserted))
	for _, k := range inserted {
		present[k] = struct{}{}
	}
	var missing []string
	for _, row := range rows {
		if _, ok := present[row.key]; !ok {
			missing = append(missing, row.key)
		}
	}
	sort.Strings(missing)
	return missing
}
