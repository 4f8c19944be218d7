package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/harrison/filestage/internal/models"
)

const uploadField = "file"

// handleUpload stores the "file" part of a multipart body under the
// part's filename.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "upload"
	rec := recordFrom(r.Context())
	rec.op = op

	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, badParam(op, "", "expected a multipart/form-data body"))
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeError(w, r, err)
		case errors.Is(err, io.EOF):
			s.writeError(w, r, badParam(op, "", "missing %q part", uploadField))
		default:
			s.writeError(w, r, badParam(op, "", "malformed multipart body: %v", err))
		}
		return
	}
	defer part.Close()

	name, ok := rawFileName(part)
	if !ok {
		s.writeError(w, r, badParam(op, "", "missing file name"))
		return
	}
	rec.fileName = name

	outcome, err := s.store.Put(name, part)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec.outcome = outcome.String()
	s.log.LogInfo("stored " + strconv.Quote(name) + " (" + outcome.String() + ")")

	if outcome == models.OutcomeReplaced {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "File uploaded successfully"})
}

// nextFilePart skips to the upload field. io.EOF means it was absent.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		part.Close()
	}
}

// rawFileName returns the filename parameter exactly as sent.
// Part.FileName strips directories, which would hide a name like
// "../x" from validation.
func rawFileName(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	name, ok := params["filename"]
	return name, ok
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "list"
	rec := recordFrom(r.Context())
	rec.op = op

	q := r.URL.Query()
	page, limit, err := s.paging(op, "", q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	names, err := s.store.List(page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleSize(kind string) http.HandlerFunc {
	op := kind + "-size"
	return func(w http.ResponseWriter, r *http.Request) {
		rec := recordFrom(r.Context())
		rec.op = op

		q := r.URL.Query()
		fileName, err := requiredFileName(op, q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rec.fileName = fileName

		value, err := s.engine.GetSize(r.Context(), models.SizeQuery{FileName: fileName, Kind: kind})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, value)
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.listUsers(w, r, "list-users", false)
}

func (s *Server) handleListUsersRange(w http.ResponseWriter, r *http.Request) {
	s.listUsers(w, r, "list-users-range", true)
}

// listUsers serves both record endpoints. The range endpoint requires
// min and max and has no order; the plain one accepts them optionally.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, op string, rangeOnly bool) {
	rec := recordFrom(r.Context())
	rec.op = op

	q := r.URL.Query()
	fileName, err := requiredFileName(op, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec.fileName = fileName

	page, limit, err := s.paging(op, fileName, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req := models.QueryRequest{
		FileName: fileName,
		Page:     page,
		Limit:    limit,
		Name:     q.Get("name"),
	}

	if !rangeOnly {
		req.Order = models.OrderAsc
		if q.Has("order") {
			req.Order = q.Get("order")
		}
		if req.Order != models.OrderAsc && req.Order != models.OrderDesc {
			s.writeError(w, r, badParam(op, fileName, "order must be asc or desc, got %q", req.Order))
			return
		}
	}

	if req.Min, err = optionalInt(op, fileName, q, "min"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Max, err = optionalInt(op, fileName, q, "max"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if rangeOnly && !req.HasRange() {
		s.writeError(w, r, badParam(op, fileName, "min and max are required"))
		return
	}

	records, err := s.engine.ListUsers(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// paging reads page and limit with their defaults and bounds.
func (s *Server) paging(op, fileName string, q url.Values) (page, limit int, err error) {
	page, limit = models.DefaultPage, models.DefaultLimit

	if q.Has("page") {
		if page, err = strconv.Atoi(q.Get("page")); err != nil {
			return 0, 0, badParam(op, fileName, "page must be an integer")
		}
	}
	if q.Has("limit") {
		if limit, err = strconv.Atoi(q.Get("limit")); err != nil {
			return 0, 0, badParam(op, fileName, "limit must be an integer")
		}
	}

	if page < 1 {
		return 0, 0, badParam(op, fileName, "page must be > 0, got %d", page)
	}
	if limit < 1 || limit > s.opts.MaxLimit {
		return 0, 0, badParam(op, fileName, "limit must be between 1 and %d, got %d", s.opts.MaxLimit, limit)
	}
	return page, limit, nil
}

func requiredFileName(op string, q url.Values) (string, error) {
	if !q.Has("file_name") {
		return "", badParam(op, "", "file_name is required")
	}
	return q.Get("file_name"), nil
}

func optionalInt(op, fileName string, q url.Values, key string) (*int, error) {
	if !q.Has(key) {
		return nil, nil
	}
	v, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return nil, badParam(op, fileName, "%s must be an integer", key)
	}
	return &v, nil
}
