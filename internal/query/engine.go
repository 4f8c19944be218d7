// Package query implements the record query engine: it picks the
// extraction script for a request, splits the script output into records,
// filters them by name and returns one page.
package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/harrison/filestage/internal/extractor"
	"github.com/harrison/filestage/internal/models"
)

// FileStore is the part of the storage adapter the engine needs.
type FileStore interface {
	ValidName(name string) bool
	Exists(name string) (bool, error)
	Path(name string) string
}

// Flags are the script switches used to select variants.
type Flags struct {
	Min  string // Size script: report the minimum instead of the maximum
	Desc string // Order script: sort descending
}

// DefaultFlags returns the switches understood by the bundled scripts.
func DefaultFlags() Flags {
	return Flags{Min: extractor.DefaultMinFlag, Desc: extractor.DefaultDescFlag}
}

// Engine answers record and size queries. It holds no mutable state; all
// dependencies are injected at construction.
type Engine struct {
	store    FileStore
	runner   extractor.Runner
	flags    Flags
	maxLimit int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithFlags overrides the script switches.
func WithFlags(flags Flags) Option {
	return func(e *Engine) { e.flags = flags }
}

// WithMaxLimit bounds the page size. Zero or negative disables the bound.
func WithMaxLimit(limit int) Option {
	return func(e *Engine) { e.maxLimit = limit }
}

// NewEngine creates an Engine over a store and a script runner.
func NewEngine(store FileStore, runner extractor.Runner, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		runner:   runner,
		flags:    DefaultFlags(),
		maxLimit: models.MaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListUsers returns one page of records from a stored file.
//
// Both range bounds select the range script, which then owns filtering and
// ordering; otherwise the order script runs, descending when requested.
// The name filter keeps records containing req.Name and never reorders.
// A page starting past the end is empty, not an error. A script failure
// is always an error, never an empty result.
func (e *Engine) ListUsers(ctx context.Context, req models.QueryRequest) ([]string, error) {
	const op = "list-users"

	if err := e.validatePaging(op, req.FileName, req.Page, req.Limit); err != nil {
		return nil, err
	}
	if req.Order != "" && req.Order != models.OrderAsc && req.Order != models.OrderDesc {
		return nil, invalid(op, req.FileName, "order must be asc or desc, got %q", req.Order)
	}

	path, err := e.resolve(op, req.FileName)
	if err != nil {
		return nil, err
	}

	var (
		script extractor.Script
		args   []string
	)
	if req.HasRange() {
		script = extractor.ScriptRange
		args = []string{strconv.Itoa(*req.Min), strconv.Itoa(*req.Max)}
	} else {
		script = extractor.ScriptOrder
		if req.Order == models.OrderDesc {
			args = []string{e.flags.Desc}
		}
	}

	out, err := e.runner.Run(ctx, script, path, args...)
	if err != nil {
		return nil, models.NewOpError(op, req.FileName, models.ErrProcessFailure, err)
	}

	records := FilterByName(SplitRecords(out), req.Name)
	return Paginate(records, req.Page, req.Limit), nil
}

// GetSize returns the trimmed scalar emitted by the size script. The value
// is passed through without parsing.
func (e *Engine) GetSize(ctx context.Context, req models.SizeQuery) (string, error) {
	const op = "size"

	var args []string
	switch req.Kind {
	case models.SizeMax:
	case models.SizeMin:
		args = []string{e.flags.Min}
	default:
		return "", invalid(op, req.FileName, "size kind must be max or min, got %q", req.Kind)
	}

	path, err := e.resolve(op, req.FileName)
	if err != nil {
		return "", err
	}

	out, err := e.runner.Run(ctx, extractor.ScriptSize, path, args...)
	if err != nil {
		return "", models.NewOpError(op, req.FileName, models.ErrProcessFailure, err)
	}
	return out, nil
}

// resolve validates the name, checks that the file exists right now and
// returns its path.
func (e *Engine) resolve(op, name string) (string, error) {
	if !e.store.ValidName(name) {
		return "", invalid(op, name, "invalid file name %q", name)
	}
	ok, err := e.store.Exists(name)
	if err != nil {
		return "", models.NewOpError(op, name, models.ErrStorageFailure, err)
	}
	if !ok {
		return "", models.NewOpError(op, name, models.ErrNotFound, nil)
	}
	return e.store.Path(name), nil
}

func (e *Engine) validatePaging(op, name string, page, limit int) error {
	if page < 1 {
		return invalid(op, name, "page must be > 0, got %d", page)
	}
	if limit < 1 {
		return invalid(op, name, "limit must be > 0, got %d", limit)
	}
	if e.maxLimit > 0 && limit > e.maxLimit {
		return invalid(op, name, "limit must be <= %d, got %d", e.maxLimit, limit)
	}
	return nil
}

func invalid(op, name, format string, args ...interface{}) error {
	return models.NewOpError(op, name, models.ErrInvalidInput, fmt.Errorf(format, args...))
}

// SplitRecords splits script output into records, one per line. Empty
// output yields no records. A trailing carriage return is dropped from
// each line.
func SplitRecords(out string) []string {
	if out == "" {
		return []string{}
	}
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// FilterByName keeps the records containing name as a case-sensitive
// substring, preserving their order. An empty name keeps everything.
func FilterByName(records []string, name string) []string {
	if name == "" {
		return records
	}
	kept := make([]string, 0, len(records))
	for _, record := range records {
		if strings.Contains(record, name) {
			kept = append(kept, record)
		}
	}
	return kept
}

// Paginate returns the [start, end) window of records for a 1-based page.
// Pages past the end are empty.
func Paginate(records []string, page, limit int) []string {
	start, end := models.Window(page, limit, len(records))
	return records[start:end]
}
