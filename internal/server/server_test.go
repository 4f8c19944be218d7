package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/filestage/internal/audit"
	"github.com/harrison/filestage/internal/extractor"
	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/query"
	"github.com/harrison/filestage/internal/storage"
)

type runCall struct {
	script extractor.Script
	path   string
	args   []string
}

// fileRunner stands in for the extraction scripts: the order and range
// scripts echo the stored file, the size script prints fixed values.
type fileRunner struct {
	mu    sync.Mutex
	err   error
	calls []runCall
}

func (f *fileRunner) Run(ctx context.Context, script extractor.Script, filePath string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{script: script, path: filePath, args: args})
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if script == extractor.ScriptSize {
		if len(args) > 0 && args[0] == extractor.DefaultMinFlag {
			return "3", nil
		}
		return "42", nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *fileRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memRecorder struct {
	mu  sync.Mutex
	ops []*audit.Operation
}

func (m *memRecorder) Record(ctx context.Context, op *audit.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	return nil
}

type accessRecorder struct {
	logger.NoOpLogger
	mu      sync.Mutex
	entries []logger.AccessEntry
}

func (a *accessRecorder) LogAccess(e logger.AccessEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

type fixture struct {
	server   *Server
	stage    *storage.Stage
	runner   *fileRunner
	recorder *memRecorder
	access   *accessRecorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	stage := storage.NewStage(filepath.Join(t.TempDir(), "temp"), storage.Options{SortListing: true})
	runner := &fileRunner{}
	recorder := &memRecorder{}
	access := &accessRecorder{}

	srv, err := New(stage, query.NewEngine(stage, runner), access, recorder, opts)
	require.NoError(t, err)

	return &fixture{server: srv, stage: stage, runner: runner, recorder: recorder, access: access}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *fixture) upload(t *testing.T, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(uploadRequest(t, "file", name, content))
}

func uploadRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Message
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []string {
	t.Helper()
	var out []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestUploadCreatedThenReplaced(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.upload(t, "report-1", []byte("hello"))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "File uploaded successfully", decodeMessage(t, rr))

	rr = f.upload(t, "report-1", []byte("goodbye"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	data, err := f.stage.Read("report-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("goodbye"), data)

	require.Len(t, f.recorder.ops, 2)
	assert.Equal(t, "upload", f.recorder.ops[0].Op)
	assert.Equal(t, "report-1", f.recorder.ops[0].FileName)
	assert.Equal(t, "created", f.recorder.ops[0].Outcome)
	assert.Equal(t, "replaced", f.recorder.ops[1].Outcome)
	assert.Equal(t, http.StatusNoContent, f.recorder.ops[1].Status)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name:   "path traversal",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", "../escape", []byte("x")) },
			status: http.StatusBadRequest,
		},
		{
			name:   "dot in name",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", "report.csv", []byte("x")) },
			status: http.StatusBadRequest,
		},
		{
			name:    "wrong field",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "attachment", "report", []byte("x")) },
			status:  http.StatusBadRequest,
			message: `missing "file" part`,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPut, "/upload", strings.NewReader("raw"))
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			status:  http.StatusBadRequest,
			message: "expected a multipart/form-data body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			rr := f.do(tt.req(t))

			assert.Equal(t, tt.status, rr.Code)
			msg := decodeMessage(t, rr)
			if tt.message != "" {
				assert.Equal(t, tt.message, msg)
			}

			names, err := f.stage.Names()
			require.NoError(t, err)
			assert.Empty(t, names, "nothing may be written")
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 1024})

	rr := f.upload(t, "small", []byte("ok"))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.upload(t, "small", bytes.Repeat([]byte("x"), 8192))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, decodeMessage(t, rr), "1024")

	data, err := f.stage.Read("small")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data, "failed upload keeps the previous content")
}

func TestListPaging(t *testing.T) {
	f := newFixture(t, Options{})
	for _, name := range []string{"file3", "file1", "file2"} {
		require.Equal(t, http.StatusCreated, f.upload(t, name, []byte(name)).Code)
	}

	rr := f.get("/list?page=1&limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, []string{"file1", "file2"}, decodeList(t, rr))

	rr = f.get("/list/?page=2&limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"file3"}, decodeList(t, rr))

	rr = f.get("/list?page=9")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	rr = f.get("/list")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, rr), 3)
}

func TestPagingValidation(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "users", []byte("a:1")).Code)

	for _, target := range []string{
		"/list?page=0",
		"/list?limit=0",
		"/list?limit=101",
		"/list?page=abc",
		"/list-users?file_name=users&limit=-1",
		"/list-users?file_name=users&limit=500",
		"/list-users?file_name=users&order=sideways",
		"/list-users?file_name=users&min=x&max=3",
		"/list-users-range?file_name=users&min=1",
		"/list-users-range?file_name=users&max=1",
		"/list-users",
		"/max-size",
	} {
		t.Run(target, func(t *testing.T) {
			rr := f.get(target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decodeMessage(t, rr))
		})
	}
	assert.Zero(t, f.runner.callCount(), "invalid requests never reach a script")
}

func TestMaxLimitOption(t *testing.T) {
	f := newFixture(t, Options{MaxLimit: 5})

	assert.Equal(t, http.StatusOK, f.get("/list?limit=5").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/list?limit=6").Code)
}

func TestListUsersScenario(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "users", []byte("a:1\nb:2\nc:3\nd:4\nb:5")).Code)

	rr := f.get("/list-users?file_name=users&page=1&limit=2&name=b")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"b:2", "b:5"}, decodeList(t, rr))

	rr = f.get("/list-users/?file_name=users&page=2&limit=2&name=b")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	require.Len(t, f.runner.calls, 2)
	assert.Equal(t, extractor.ScriptOrder, f.runner.calls[0].script)
	assert.Empty(t, f.runner.calls[0].args)
	assert.Equal(t, f.stage.Path("users"), f.runner.calls[0].path)
}

func TestHugePageIsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "users", []byte("a:1\nb:2\nc:3")).Code)

	for _, path := range []string{
		"/list?page=4611686018427387904&limit=2",
		"/list-users?file_name=users&page=4611686018427387904&limit=2",
		"/list-users-range?file_name=users&min=1&max=3&page=4611686018427387905&limit=2",
	} {
		rr := f.get(path)
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()), path)
	}
}

func TestListUsersModes(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "users", []byte("a:1")).Code)

	require.Equal(t, http.StatusOK, f.get("/list-users?file_name=users&order=desc").Code)
	require.Equal(t, http.StatusOK, f.get("/list-users?file_name=users&min=2&max=4&order=desc").Code)
	require.Equal(t, http.StatusOK, f.get("/list-users-range?file_name=users&min=2&max=4").Code)
	require.Equal(t, http.StatusOK, f.get("/list-users?file_name=users&min=2").Code)

	require.Len(t, f.runner.calls, 4)
	assert.Equal(t, extractor.ScriptOrder, f.runner.calls[0].script)
	assert.Equal(t, []string{extractor.DefaultDescFlag}, f.runner.calls[0].args)
	assert.Equal(t, extractor.ScriptRange, f.runner.calls[1].script)
	assert.Equal(t, []string{"2", "4"}, f.runner.calls[1].args)
	assert.Equal(t, extractor.ScriptRange, f.runner.calls[2].script)
	assert.Equal(t, []string{"2", "4"}, f.runner.calls[2].args)
	assert.Equal(t, extractor.ScriptOrder, f.runner.calls[3].script, "half a range falls back to order")
}

func TestMissingFileIsNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	for _, target := range []string{
		"/list-users?file_name=ghost",
		"/list-users-range?file_name=ghost&min=1&max=2",
		"/max-size?file_name=ghost",
		"/min-size/?file_name=ghost",
		"/max-size?file_name=",
	} {
		rr := f.get(target)
		assert.Equal(t, http.StatusNotFound, rr.Code, target)
		assert.Equal(t, "File not found", decodeMessage(t, rr), target)
	}
	assert.Zero(t, f.runner.callCount())
}

func TestInvalidQueryFileName(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.get("/max-size?file_name=../etc/passwd")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeMessage(t, rr), "invalid file name")
}

func TestSizeEndpoints(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "sizes", []byte("1\n2")).Code)

	rr := f.get("/max-size?file_name=sizes")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "42", rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))

	rr = f.get("/min-size?file_name=sizes")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "3", rr.Body.String())
	assert.Equal(t, []string{extractor.DefaultMinFlag}, f.runner.calls[1].args)

	require.Len(t, f.recorder.ops, 3)
	assert.Equal(t, "max-size", f.recorder.ops[1].Op)
	assert.Equal(t, "min-size", f.recorder.ops[2].Op)
}

func TestProcessFailureIsInternalError(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "users", []byte("a:1")).Code)
	f.runner.err = &extractor.ProcessError{Script: "order-by-username.sh", ExitCode: 2, Stderr: "secret stack trace", Err: errors.New("exit status 2")}

	rr := f.get("/list-users?file_name=users")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decodeMessage(t, rr))
	assert.NotContains(t, rr.Body.String(), "secret")

	last := f.recorder.ops[len(f.recorder.ops)-1]
	assert.Equal(t, http.StatusInternalServerError, last.Status)
	assert.Contains(t, last.Error, "secret stack trace")
}

func TestHealthAndDocs(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.get("/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = f.get("/docs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rr.Body.String(), "<h1>filestage API</h1>")
	assert.Contains(t, rr.Body.String(), "<table>")

	assert.Empty(t, f.recorder.ops, "health and docs are not audited")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.get("/upload")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodPost, "/list", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRequestIDs(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.get("/healthz")
	generated := rr.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)

	incoming := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, incoming)
	assert.Equal(t, incoming, f.do(req).Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "not a uuid\n")
	assert.NotEqual(t, "not a uuid\n", f.do(req).Header().Get(HeaderRequestID))

	rr = f.get("/list-users?file_name=ghost")
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID), "errors carry the id too")
}

func TestAccessLog(t *testing.T) {
	f := newFixture(t, Options{})

	f.upload(t, "report", []byte("x"))
	f.get("/list-users?file_name=ghost")

	require.Len(t, f.access.entries, 2)
	assert.Equal(t, http.MethodPut, f.access.entries[0].Method)
	assert.Equal(t, "/upload", f.access.entries[0].Path)
	assert.Equal(t, http.StatusCreated, f.access.entries[0].Status)
	assert.Positive(t, f.access.entries[0].Bytes)
	assert.Equal(t, http.StatusNotFound, f.access.entries[1].Status)
	assert.Equal(t, f.recorder.ops[1].RequestID, f.access.entries[1].RequestID)
}

func TestNilRecorder(t *testing.T) {
	stage := storage.NewStage(t.TempDir(), storage.Options{})
	srv, err := New(stage, query.NewEngine(stage, &fileRunner{}), nil, nil, Options{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "file", "a", []byte("x")))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestStatusForKinds(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(badParam("list", "", "bad")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("untyped")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(&http.MaxBytesError{Limit: 1}))
	assert.Equal(t, "bad", messageFor(badParam("list", "", "bad"), http.StatusBadRequest))
}

func TestRenderDocs(t *testing.T) {
	html, err := renderDocs([]byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Title</h1>")
	assert.Contains(t, string(html), "<td>1</td>")
}
