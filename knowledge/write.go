package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/db"
)

// Create inserts a new entity and returns its id. The slug and the
// default-language name are mandatory. The kind's cache namespaces are
// invalidated on success.
func (k *KindRepo) Create(ctx context.Context, e *Entity) (int64, error) {
	if err := k.validateRecord(e); err != nil {
		return 0, err
	}
	colVals, rest := k.splitExtra(e.Extra)

	cols := []string{"slug", "name", "description", "extra"}
	exprs := []string{"$1", "$2", "$3", "$4"}
	args := []any{e.Slug, e.Name, orEmptyStrings(e.Description), orEmptyAny(rest)}
	add := func(col string, val any) {
		args = append(args, val)
		cols = append(cols, col)
		exprs = append(exprs, fmt.Sprintf("$%d", len(args)))
	}

	if k.d.hasEmbedding && e.Embedding != nil {
		add("embedding", pgvector.NewVector(e.Embedding))
	}
	for _, col := range k.d.extraCols {
		if v, ok := colVals[col]; ok {
			add(col, v)
		}
	}
	if k.d.hasLocation && e.Location != nil {
		args = append(args, e.Location.Lon, e.Location.Lat)
		cols = append(cols, "location")
		exprs = append(exprs, fmt.Sprintf("ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography", len(args)-1, len(args)))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at, updated_at",
		k.d.table, strings.Join(cols, ", "), strings.Join(exprs, ", "))
	rec, err := k.r.store.QueryRow(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", k.d.kind, err)
	}
	if rec == nil {
		return 0, fmt.Errorf("create %s returned no row", k.d.kind)
	}

	e.ID = db.Int64(rec, "id")
	e.CreatedAt = db.Time(rec, "created_at")
	e.UpdatedAt = db.Time(rec, "updated_at")
	k.invalidate(ctx)
	return e.ID, nil
}

// Update replaces the stored record for e.ID. A missing row is a not_found
// fault. The kind's cache namespaces are invalidated on success.
func (k *KindRepo) Update(ctx context.Context, e *Entity) error {
	if e == nil || e.ID <= 0 {
		return common.NewFault(common.KindBadInput, "entity id is required")
	}
	if err := k.validateRecord(e); err != nil {
		return err
	}
	colVals, rest := k.splitExtra(e.Extra)

	args := []any{e.Slug, e.Name, orEmptyStrings(e.Description), orEmptyAny(rest)}
	sets := []string{"slug = $1", "name = $2", "description = $3", "extra = $4", "updated_at = now()"}
	set := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if k.d.hasEmbedding {
		if e.Embedding != nil {
			set("embedding", pgvector.NewVector(e.Embedding))
		} else {
			sets = append(sets, "embedding = NULL")
		}
	}
	for _, col := range k.d.extraCols {
		if v, ok := colVals[col]; ok {
			set(col, v)
		}
	}
	if k.d.hasLocation {
		if e.Location != nil {
			args = append(args, e.Location.Lon, e.Location.Lat)
			sets = append(sets, fmt.Sprintf("location = ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography", len(args)-1, len(args)))
		} else {
			sets = append(sets, "location = NULL")
		}
	}

	args = append(args, e.ID)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING id",
		k.d.table, strings.Join(sets, ", "), len(args))
	rec, err := k.r.store.QueryRow(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", k.d.kind, e.ID, err)
	}
	if rec == nil {
		return common.NewFault(common.KindNotFound, fmt.Sprintf("%s %d does not exist", k.d.kind, e.ID))
	}
	k.invalidate(ctx)
	return nil
}

// Delete removes one record. A missing row is a not_found fault.
func (k *KindRepo) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return common.NewFault(common.KindBadInput, "entity id is required")
	}
	rows, err := k.r.store.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", k.d.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", k.d.kind, id, err)
	}
	if rows == 0 {
		return common.NewFault(common.KindNotFound, fmt.Sprintf("%s %d does not exist", k.d.kind, id))
	}
	k.invalidate(ctx)
	return nil
}

func (k *KindRepo) validateRecord(e *Entity) error {
	if e == nil {
		return common.NewFault(common.KindBadInput, "entity is required")
	}
	if e.Slug == "" {
		return common.NewFault(common.KindBadInput, "slug is required")
	}
	if e.Name[k.r.defLang] == "" {
		return common.NewFault(common.KindBadInput,
			fmt.Sprintf("name must include the default language %q", k.r.defLang))
	}
	return nil
}

// splitExtra separates values that live in their own columns from the
// free-form remainder stored in the extra document.
func (k *KindRepo) splitExtra(extra map[string]any) (map[string]any, map[string]any) {
	if len(extra) == 0 {
		return nil, nil
	}
	colVals := make(map[string]any)
	rest := make(map[string]any)
	for key, v := range extra {
		if k.isExtraCol(key) {
			colVals[key] = v
		} else {
			rest[key] = v
		}
	}
	return colVals, rest
}

func (k *KindRepo) isExtraCol(name string) bool {
	for _, col := range k.d.extraCols {
		if col == name {
			return true
		}
	}
	return false
}

func (k *KindRepo) invalidate(ctx context.Context) {
	if k.r.queries != nil {
		k.r.queries.Invalidate(ctx, k.d.table)
	}
	if k.r.vectors != nil {
		k.r.vectors.Invalidate(ctx, k.d.table)
	}
}

func orEmptyStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
