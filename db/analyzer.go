package db

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	// slowQueryThreshold classifies a query as slow.
	slowQueryThreshold = 500 * time.Millisecond

	// analyzerRetention is the rolling window queries are kept for.
	analyzerRetention = 24 * time.Hour

	// analyzerCapacity caps how many slow-ranked queries are retained.
	analyzerCapacity = 100
)

// QueryStat is one observed query execution.
type QueryStat struct {
	Template   string
	ParamShape string
	Duration   time.Duration
	Rows       int64
	Failed     bool
	At         time.Time
}

// Analyzer tracks the slowest queries over a rolling window and suggests
// indexes for predicate columns that none of the registered indexes cover.
type Analyzer struct {
	log *logrus.Logger
	now func() time.Time

	mu      sync.Mutex
	slowest []QueryStat // sorted by Duration descending, capped
	indexes map[string]map[string]struct{}
}

// NewAnalyzer builds an empty analyzer.
func NewAnalyzer(log *logrus.Logger) *Analyzer {
	return &Analyzer{
		log:     log,
		now:     time.Now,
		indexes: make(map[string]map[string]struct{}),
	}
}

// RegisterIndex records that an index exists on table covering the leading
// column. Suggestion logic treats the column as served.
func (a *Analyzer) RegisterIndex(table string, columns ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cols, ok := a.indexes[table]
	if !ok {
		cols = make(map[string]struct{})
		a.indexes[table] = cols
	}
	for _, c := range columns {
		cols[c] = struct{}{}
	}
}

// Observe records one executed query: its normalized template, the shape of
// its bound parameters, duration, and rows affected.
func (a *Analyzer) Observe(sql string, params []any, elapsed time.Duration, rows int64, err error) {
	stat := QueryStat{
		Template:   NormalizeSQL(sql),
		ParamShape: paramShape(params),
		Duration:   elapsed,
		Rows:       rows,
		Failed:     err != nil,
		At:         a.now(),
	}

	if elapsed > slowQueryThreshold && a.log != nil {
		a.log.WithFields(logrus.Fields{
			"template":    stat.Template,
			"duration_ms": elapsed.Milliseconds(),
			"rows":        rows,
		}).Warn("slow query")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.pruneLocked()

	// Insert sorted by duration descending; drop off the tail beyond capacity.
	idx := sort.Search(len(a.slowest), func(i int) bool {
		return a.slowest[i].Duration < stat.Duration
	})
	if idx >= analyzerCapacity {
		return
	}
	a.slowest = append(a.slowest, QueryStat{})
	copy(a.slowest[idx+1:], a.slowest[idx:])
	a.slowest[idx] = stat
	if len(a.slowest) > analyzerCapacity {
		a.slowest = a.slowest[:analyzerCapacity]
	}
}

func (a *Analyzer) pruneLocked() {
	cutoff := a.now().Add(-analyzerRetention)
	kept := a.slowest[:0]
	for _, s := range a.slowest {
		if s.At.After(cutoff) {
			kept = append(kept, s)
		}
	}
	a.slowest = kept
}

// Slowest returns the retained queries, slowest first.
func (a *Analyzer) Slowest() []QueryStat {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pruneLocked()
	out := make([]QueryStat, len(a.slowest))
	copy(out, a.slowest)
	return out
}

// IndexSuggestion names a predicate column with no covering index.
type IndexSuggestion struct {
	Table  string
	Column string
	DDL    string
}

// SuggestIndexes inspects the retained queries' predicate columns and
// returns suggestions for those absent from the registered index set.
func (a *Analyzer) SuggestIndexes() []IndexSuggestion {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pruneLocked()

	seen := make(map[string]struct{})
	var out []IndexSuggestion
	for _, stat := range a.slowest {
		table, cols := predicateColumns(stat.Template)
		if table == "" {
			continue
		}
		indexed := a.indexes[table]
		for _, col := range cols {
			if _, ok := indexed[col]; ok {
				continue
			}
			key := table + "." + col
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, IndexSuggestion{
				Table:  table,
				Column: col,
				DDL:    fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s (%s)", table, col, table, col),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// Report renders a human-readable summary of the slowest queries.
func (a *Analyzer) Report() string {
	stats := a.Slowest()
	if len(stats) == 0 {
		return "no queries observed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s slow-ranked queries over the last 24h\n", humanize.Comma(int64(len(stats))))
	now := a.now()
	for i, s := range stats {
		if i >= 10 {
			fmt.Fprintf(&b, "... and %s more\n", humanize.Comma(int64(len(stats)-10)))
			break
		}
		fmt.Fprintf(&b, "%2d. %dms rows=%s %s (%s)\n",
			i+1, s.Duration.Milliseconds(), humanize.Comma(s.Rows), s.Template, humanize.RelTime(s.At, now, "ago", "from now"))
	}
	return b.String()
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeSQL collapses whitespace so structurally identical statements
// share a template. Parameters are already placeholders, so no literal
// masking is needed.
func NormalizeSQL(sql string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sql, " "))
}

func paramShape(params []any) string {
	if len(params) == 0 {
		return "()"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%T", p)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

var (
	fromPattern  = regexp.MustCompile(`(?i)\bfrom\s+([a-z][a-z0-9_]*)`)
	updatePat    = regexp.MustCompile(`(?i)^\s*update\s+([a-z][a-z0-9_]*)`)
	deletePat    = regexp.MustCompile(`(?i)^\s*delete\s+from\s+([a-z][a-z0-9_]*)`)
	wherePattern = regexp.MustCompile(`(?i)\bwhere\b(.*?)(\border by\b|\bgroup by\b|\blimit\b|\breturning\b|$)`)
	colPattern   = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s*(?:=|<|>|<=|>=|<>|!=|\bin\b|\blike\b|@>|<->|<=>)`)
)

// predicateColumns extracts the target table and the columns referenced in
// the WHERE clause of a normalized template. Best-effort; unparseable
// statements contribute nothing.
func predicateColumns(template string) (string, []string) {
	table := ""
	if m := updatePat.FindStringSubmatch(template); m != nil {
		table = m[1]
	} else if m := deletePat.FindStringSubmatch(template); m != nil {
		table = m[1]
	} else if m := fromPattern.FindStringSubmatch(template); m != nil {
		table = m[1]
	}
	if table == "" {
		return "", nil
	}

	where := wherePattern.FindStringSubmatch(template)
	if where == nil {
		return table, nil
	}

	var cols []string
	seen := make(map[string]struct{})
	for _, m := range colPattern.FindAllStringSubmatch(where[1], -1) {
		col := strings.ToLower(m[1])
		// Qualified names arrive as the bare column; strip any table prefix.
		if dot := strings.LastIndex(col, "."); dot >= 0 {
			col = col[dot+1:]
		}
		if col == "and" || col == "or" || col == "not" || col == "in" || col == "like" {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
	}
	return table, cols
}
