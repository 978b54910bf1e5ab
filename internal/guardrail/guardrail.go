// Package guardrail rejects generated SQL that is not a read-only query over
// the configured dataset.
//
// The checks are a token-scan heuristic, not a SQL parser. They assume the
// author of the query is the language model rather than an adversary; a
// parser-backed implementation can replace Validator without touching callers.
package guardrail

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrGuardrail matches every rejection returned by Validate.
var ErrGuardrail = errors.New("guardrail rejected query")

// ForbiddenKeywords are matched as whole words anywhere in the query,
// string literals included.
var ForbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "create", "alter", "truncate",
	"replace", "merge", "grant", "revoke",
}

var (
	forbiddenPatterns = compileKeywordPatterns(ForbiddenKeywords)
	tableRefPattern   = regexp.MustCompile(`\b(?:from|join)\s+([a-z0-9_]+(?:\.[a-z0-9_]+)?)\b`)
)

type NotSelectError struct{}

func (e *NotSelectError) Error() string { return "only SELECT queries are allowed" }

func (e *NotSelectError) Is(target error) bool { return target == ErrGuardrail }

type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("read-only guardrail: keyword %q is not allowed", e.Keyword)
}

func (e *ForbiddenKeywordError) Is(target error) bool { return target == ErrGuardrail }

type DisallowedTableError struct {
	Ref     string
	Allowed []string
}

func (e *DisallowedTableError) Error() string {
	return fmt.Sprintf("schema constraint: only table(s) %s are allowed, query references %q",
		strings.Join(e.Allowed, ", "), e.Ref)
}

func (e *DisallowedTableError) Is(target error) bool { return target == ErrGuardrail }

// Checker is the contract the executor wrapper depends on.
type Checker interface {
	Validate(sql string) error
}

type Validator struct {
	allowed    []string
	allowedSet map[string]struct{}
}

// New builds a validator for the given allow-list. Names compare
// case-insensitively.
func New(allowedTables []string) *Validator {
	v := &Validator{allowedSet: map[string]struct{}{}}
	for _, table := range allowedTables {
		table = strings.ToLower(strings.TrimSpace(table))
		if table == "" {
			continue
		}
		if _, ok := v.allowedSet[table]; ok {
			continue
		}
		v.allowedSet[table] = struct{}{}
		v.allowed = append(v.allowed, table)
	}
	return v
}

// Validate runs the select-prefix, forbidden-keyword and table allow-list
// checks in that order and returns the first failure.
func (v *Validator) Validate(sql string) error {
	normalized := strings.ToLower(strings.TrimSpace(sql))
	if !strings.HasPrefix(normalized, "select") {
		return &NotSelectError{}
	}
	for i, pattern := range forbiddenPatterns {
		if pattern.MatchString(normalized) {
			return &ForbiddenKeywordError{Keyword: ForbiddenKeywords[i]}
		}
	}
	for _, ref := range TableRefs(normalized) {
		if _, ok := v.allowedSet[ref]; !ok {
			return &DisallowedTableError{Ref: ref, Allowed: append([]string(nil), v.allowed...)}
		}
	}
	return nil
}

// TableRefs returns the lower-cased identifiers that follow FROM or JOIN.
func TableRefs(sql string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(" "+strings.ToLower(sql)+" ", -1)
	refs := make([]string, 0, len(matches))
	for _, match := range matches {
		refs = append(refs, match[1])
	}
	return refs
}

func compileKeywordPatterns(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, keyword := range keywords {
		patterns = append(patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(keyword)+`\b`))
	}
	return patterns
}
