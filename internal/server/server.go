// Package server exposes the staging area and record queries over HTTP.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"

	"github.com/harrison/filestage/internal/audit"
	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed api.md
var apiMarkdown []byte

// Store is the slice of the staging area the HTTP layer needs.
type Store interface {
	Put(name string, r io.Reader) (models.UploadOutcome, error)
	List(page, limit int) ([]string, error)
}

// Engine answers record and size queries.
type Engine interface {
	ListUsers(ctx context.Context, req models.QueryRequest) ([]string, error)
	GetSize(ctx context.Context, req models.SizeQuery) (string, error)
}

// Options tunes request handling.
type Options struct {
	// MaxUploadBytes caps an upload body; 0 disables the cap
	MaxUploadBytes int64
	// MaxLimit bounds the page size of every paginated endpoint
	MaxLimit int
}

// Server routes HTTP requests to the store and the query engine.
type Server struct {
	store    Store
	engine   Engine
	log      logger.AccessLogger
	recorder audit.Recorder
	opts     Options
	docs     []byte
	handler  http.Handler
}

// New builds a Server. recorder may be nil to disable the audit trail.
func New(store Store, engine Engine, log logger.AccessLogger, recorder audit.Recorder, opts Options) (*Server, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = models.MaxLimit
	}

	docs, err := renderDocs(apiMarkdown)
	if err != nil {
		return nil, fmt.Errorf("render api docs: %w", err)
	}

	s := &Server{
		store:    store,
		engine:   engine,
		log:      log,
		recorder: recorder,
		opts:     opts,
		docs:     docs,
	}
	s.handler = s.withRequest(s.routes())
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	handle := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, h)
		// Trailing-slash form, exact match only
		mux.HandleFunc(method+" "+path+"/{$}", h)
	}

	handle(http.MethodPut, "/upload", s.handleUpload)
	handle(http.MethodGet, "/list", s.handleList)
	handle(http.MethodGet, "/max-size", s.handleSize(models.SizeMax))
	handle(http.MethodGet, "/min-size", s.handleSize(models.SizeMin))
	handle(http.MethodGet, "/list-users", s.handleListUsers)
	handle(http.MethodGet, "/list-users-range", s.handleListUsersRange)
	handle(http.MethodGet, "/healthz", s.handleHealth)
	handle(http.MethodGet, "/docs", s.handleDocs)

	return mux
}

func renderDocs(src []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.New(goldmark.WithExtensions(extension.Table)).Convert(src, &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>filestage API</title></head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes(), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(s.docs)
}
