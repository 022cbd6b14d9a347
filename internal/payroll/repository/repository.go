// Package repository persists payroll aggregates in PostgreSQL.
package repository

import (
	_ "embed"
	"fmt"
	"strings"
)

// Schema is the DDL for every table this service owns or mirrors.
//
//go:embed schema.sql
var Schema string

// where accumulates AND-ed conditions with positional arguments
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Paging bounds; they keep the OFFSET computation far from overflow
const (
	MaxPage    = 100000
	maxPerPage = 100
)

// page appends LIMIT/OFFSET placeholders and returns the clause
func (w *where) page(page, perPage int) string {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	w.args = append(w.args, perPage, (page-1)*perPage)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
