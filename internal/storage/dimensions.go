package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ResolvePlatforms returns the id of every named platform, creating the
// missing ones. Names are case-sensitive and used verbatim.
func (s *SQLStore) ResolvePlatforms(ctx context.Context, names []string) (map[string]int64, error) {
	return s.resolve(ctx, "platforms", names)
}

// ResolveAspects returns the id of every named aspect, creating the missing
// ones.
func (s *SQLStore) ResolveAspects(ctx context.Context, names []string) (map[string]int64, error) {
	return s.resolve(ctx, "aspects", names)
}

// resolve inserts all names in one statement, letting the unique constraint
// absorb the ones that already exist or were created concurrently, then
// reads every id back in one query. table is always a package constant.
func (s *SQLStore) resolve(ctx context.Context, table string, names []string) (map[string]int64, error) {
	unique := dedupe(names)
	ids := make(map[string]int64, len(unique))
	if len(unique) == 0 {
		return ids, nil
	}

	values := strings.TrimSuffix(strings.Repeat("(?), ", len(unique)), ", ")
	args := make([]any, len(unique))
	for i, n := range unique {
		args[i] = n
	}
	insert := fmt.Sprintf("INSERT INTO %s (name) VALUES %s ON CONFLICT (name) DO NOTHING", table, values)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(insert), args...); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", table, err)
	}

	query, inArgs, err := sqlx.In(fmt.Sprintf("SELECT id, name FROM %s WHERE name IN (?)", table), unique)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lookup: %w", table, err)
	}
	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), inArgs...); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	for _, r := range rows {
		ids[r.Name] = r.ID
	}

	for _, n := range unique {
		if _, ok := ids[n]; !ok {
			return nil, fmt.Errorf("%s %q missing after insert", table, n)
		}
	}
	return ids, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ListPlatforms returns every platform ordered by name.
func (s *SQLStore) ListPlatforms(ctx context.Context) ([]Platform, error) {
	var platforms []Platform
	if err := s.db.SelectContext(ctx, &platforms, "SELECT id, name FROM platforms ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	return platforms, nil
}

// ListAspects returns every aspect ordered by name.
func (s *SQLStore) ListAspects(ctx context.Context) ([]Aspect, error) {
	var aspects []Aspect
	if err := s.db.SelectContext(ctx, &aspects, "SELECT id, name FROM aspects ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list aspects: %w", err)
	}
	return aspects, nil
}
