package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"docvault/internal/repository"
)

// cond is a single optional predicate over the documents query. The expr uses
// `?` placeholders which whereClause renumbers into positional `$n` arguments.
// Constructors return nil for blank input, so an absent filter contributes
// nothing instead of matching nothing.
type cond struct {
	expr string
	args []any
}

// byOwner restricts to documents owned by the given user.
func byOwner(ownerID string) *cond {
	if ownerID == "" {
		return nil
	}
	return &cond{expr: "d.owner_id = ?", args: []any{ownerID}}
}

// byCategory is an exact match on the category label.
func byCategory(category string) *cond {
	if strings.TrimSpace(category) == "" {
		return nil
	}
	return &cond{expr: "d.category = ?", args: []any{category}}
}

// byTags matches documents carrying AT LEAST ONE of the given tags. The OR is
// nested inside the overall AND of the composed clause.
func byTags(tags []string) *cond {
	if len(tags) == 0 {
		return nil
	}
	parts := make([]string, 0, len(tags))
	args := make([]any, 0, len(tags))
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		// JSONB containment against a single-element array, e.g. tags @> ["a"].
		b, _ := json.Marshal([]string{tag})
		parts = append(parts, "d.tags @> ?")
		args = append(args, string(b))
	}
	if len(parts) == 0 {
		return nil
	}
	return &cond{expr: "(" + strings.Join(parts, " OR ") + ")", args: args}
}

// byFileName is a case-insensitive substring match on the display name.
func byFileName(name string) *cond {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return &cond{expr: "d.file_name ILIKE ?", args: []any{"%" + name + "%"}}
}

// byOwnerUsername is a case-insensitive substring match on the owner's
// username. Used by the admin listing only.
func byOwnerUsername(username string) *cond {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	return &cond{expr: "u.username ILIKE ?", args: []any{"%" + username + "%"}}
}

// filterConds expands a DocumentFilter into its ordered predicate list.
func filterConds(f repository.DocumentFilter) []*cond {
	return []*cond{
		byOwner(f.OwnerID),
		byCategory(f.Category),
		byTags(f.Tags),
		byFileName(f.FileName),
		byOwnerUsername(f.OwnerName),
	}
}

// whereClause folds the present predicates with AND into a single WHERE
// clause, renumbering `?` placeholders to `$n` starting at start. It returns
// an empty clause when every predicate is absent.
func whereClause(start int, conds ...*cond) (string, []any) {
	var exprs []string
	var args []any
	n := start
	for _, c := range conds {
		if c == nil {
			continue
		}
		expr := c.expr
		for range c.args {
			expr = strings.Replace(expr, "?", fmt.Sprintf("$%d", n), 1)
			n++
		}
		exprs = append(exprs, expr)
		args = append(args, c.args...)
	}
	if len(exprs) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(exprs, " AND "), args
}
