package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/db"
	"github.com/banshee-data/phylo.report/internal/fsutil"
	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/pipeline"
	"github.com/banshee-data/phylo.report/internal/stage"
	"github.com/banshee-data/phylo.report/internal/testutil"
	"github.com/banshee-data/phylo.report/internal/timeutil"
)

type testServer struct {
	server *Server
	mux    http.Handler
	tools  *testutil.FakeToolchain
	clock  *timeutil.MockClock
}

func setupTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()

	root := t.TempDir()
	store, err := artifact.NewStore(root+"/uploads", root+"/results", nil)
	testutil.AssertNoError(t, err)

	registry, err := db.NewDB("")
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { registry.Close() })

	tools := testutil.NewFakeToolchain()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	p, err := pipeline.New(pipeline.Options{
		Store:    store,
		Registry: registry,
		Runner:   stage.NewRunner(tools.Builder, fsutil.OSFileSystem{}),
		Clock:    clock,
	})
	testutil.AssertNoError(t, err)

	s := NewServer(p, store, maxUpload)
	return &testServer{server: s, mux: s.ServeMux(), tools: tools, clock: clock}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)
	return w
}

func (ts *testServer) upload(t *testing.T) UploadResponse {
	t.Helper()
	w := ts.do(testutil.NewUploadRequest(t, "/upload", "file", "primates.fasta", testutil.SampleFASTA))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp UploadResponse
	decodeJSON(t, w, &resp)
	return resp
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (msg, details string) {
	t.Helper()
	var resp struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	decodeJSON(t, w, &resp)
	return resp.Error, resp.Details
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: bad", pipeline.ErrValidation), http.StatusBadRequest},
		{"missing fields", pipeline.ErrMissingFields, http.StatusBadRequest},
		{"busy", pipeline.ErrAdmissionDenied, http.StatusTooManyRequests},
		{"invalid state", fmt.Errorf("%w: x", pipeline.ErrInvalidState), http.StatusBadRequest},
		{"artifact not found", pipeline.ErrArtifactNotFound, http.StatusBadRequest},
		{"unknown request", pipeline.ErrUnknownRequest, http.StatusBadRequest},
		{"stage error", &stage.Error{Stage: "align", Kind: stage.ExecutionFailed}, http.StatusInternalServerError},
		{"parse error", fmt.Errorf("infer: %w", &newick.ParseError{Offset: 3, Msg: "x"}), http.StatusInternalServerError},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	ts := setupTestServer(t, 0)

	resp := ts.upload(t)

	if resp.Message != "File uploaded successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if !artifact.ValidID(resp.RequestID) {
		t.Errorf("request_id = %q", resp.RequestID)
	}
	if !strings.HasSuffix(resp.Filepath, resp.RequestID+"_primates.fasta") {
		t.Errorf("filepath = %q", resp.Filepath)
	}
}

func TestUpload_Rejected(t *testing.T) {
	ts := setupTestServer(t, 0)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantMsg  string
	}{
		{
			name:     "wrong method",
			req:      httptest.NewRequest(http.MethodGet, "/upload", nil),
			wantCode: http.StatusMethodNotAllowed,
			wantMsg:  "method not allowed",
		},
		{
			name:     "no file part",
			req:      testutil.NewUploadRequest(t, "/upload", "other", "a.fasta", ">a\nAC\n"),
			wantCode: http.StatusBadRequest,
			wantMsg:  "No file part",
		},
		{
			name:     "wrong extension",
			req:      testutil.NewUploadRequest(t, "/upload", "file", "notes.txt", ">a\nAC\n"),
			wantCode: http.StatusBadRequest,
			wantMsg:  "file type not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.req)
			testutil.AssertStatusCode(t, w.Code, tt.wantCode)
			msg, _ := errorBody(t, w)
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}

	if _, busy := ts.server.pipeline.InFlight(); busy {
		t.Error("rejected uploads must not hold admission")
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ts := setupTestServer(t, 512)

	big := ">a\n" + strings.Repeat("ACGT", 1024) + "\n"
	w := ts.do(testutil.NewUploadRequest(t, "/upload", "file", "big.fasta", big))

	testutil.AssertStatusCode(t, w.Code, http.StatusRequestEntityTooLarge)
}

func TestUpload_Busy(t *testing.T) {
	ts := setupTestServer(t, 0)
	ts.upload(t)

	w := ts.do(testutil.NewUploadRequest(t, "/upload", "file", "second.fasta", testutil.SampleFASTA))

	testutil.AssertStatusCode(t, w.Code, http.StatusTooManyRequests)
	if msg, _ := errorBody(t, w); msg != busyMessage {
		t.Errorf("error = %q, want %q", msg, busyMessage)
	}
}

func TestEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)
	ts.tools.SetInfer(func(aligned string) ([]byte, error) {
		ts.clock.Advance(2 * time.Second)
		return testutil.WriteTreefile(aligned, "")
	})

	up := ts.upload(t)

	// No request_id: the owner is resolved from the artifact path.
	w := ts.do(testutil.NewJSONRequest("/align", fmt.Sprintf(`{"filepath":%q}`, up.Filepath)))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var aligned AlignResponse
	decodeJSON(t, w, &aligned)
	if aligned.Message != "Alignment completed" || !strings.HasSuffix(aligned.AlignedFilepath, "aligned.fasta") {
		t.Fatalf("align response = %+v", aligned)
	}

	w = ts.do(testutil.NewJSONRequest("/build_tree",
		fmt.Sprintf(`{"aligned_filepath":%q,"request_id":%q}`, aligned.AlignedFilepath, up.RequestID)))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var built BuildTreeResponse
	decodeJSON(t, w, &built)
	if built.Message != "Phylogenetic tree built" {
		t.Errorf("message = %q", built.Message)
	}
	if built.ExecutionTime != 2 {
		t.Errorf("execution_time = %v, want 2", built.ExecutionTime)
	}
	if built.Summary.Leaves != 3 || built.Summary.InternalNodes != 2 {
		t.Errorf("summary = %+v", built.Summary)
	}

	if _, busy := ts.server.pipeline.InFlight(); busy {
		t.Error("admission still held after build_tree")
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/results/"+up.RequestID+"/tree.json", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	tree, err := newick.DecodeJSON(w.Body.Bytes())
	testutil.AssertNoError(t, err)
	if leaves, internal := tree.Counts(); leaves != 3 || internal != 2 {
		t.Errorf("tree.json counts = %d leaves, %d internal", leaves, internal)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/status/"+up.RequestID, nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var status StatusResponse
	decodeJSON(t, w, &status)
	if status.Request.Stage != pipeline.StageExported || status.InFlight {
		t.Errorf("status = %+v", status)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/view/"+up.RequestID, nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "Gorilla") {
		t.Error("viewer page missing leaf name")
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/render/"+up.RequestID, nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("render Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("render output is not SVG")
	}

	svg := `<svg xmlns="http://www.w3.org/2000/svg"><text>Human</text></svg>`
	w = ts.do(testutil.NewJSONRequest("/save_tree", fmt.Sprintf(`{"svg":%q,"request_id":%q}`, svg, up.RequestID)))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var saved SaveTreeResponse
	decodeJSON(t, w, &saved)
	if !strings.HasSuffix(saved.Filepath, "tree.svg") {
		t.Errorf("save_tree filepath = %q", saved.Filepath)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/results/"+up.RequestID+"/tree.svg", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if w.Body.String() != svg {
		t.Errorf("saved svg = %q", w.Body.String())
	}
}

func TestAlign_StageFailure(t *testing.T) {
	ts := setupTestServer(t, 0)
	ts.tools.SetAlign(func(input, output string) ([]byte, error) {
		return []byte("FATAL: sequence 2 is empty"), errors.New("exit status 1")
	})

	up := ts.upload(t)
	w := ts.do(testutil.NewJSONRequest("/align",
		fmt.Sprintf(`{"filepath":%q,"request_id":%q}`, up.Filepath, up.RequestID)))

	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
	msg, details := errorBody(t, w)
	if msg != "Alignment failed" {
		t.Errorf("error = %q", msg)
	}
	if !strings.Contains(details, "sequence 2 is empty") {
		t.Errorf("details = %q", details)
	}
	if _, busy := ts.server.pipeline.InFlight(); busy {
		t.Error("admission still held after a failed stage")
	}
}

func TestBuildTree_ParseFailure(t *testing.T) {
	ts := setupTestServer(t, 0)
	ts.tools.SetInfer(func(aligned string) ([]byte, error) {
		return testutil.WriteTreefile(aligned, "((A,B);")
	})

	up := ts.upload(t)
	w := ts.do(testutil.NewJSONRequest("/align", fmt.Sprintf(`{"filepath":%q}`, up.Filepath)))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var aligned AlignResponse
	decodeJSON(t, w, &aligned)

	w = ts.do(testutil.NewJSONRequest("/build_tree", fmt.Sprintf(`{"aligned_filepath":%q}`, aligned.AlignedFilepath)))

	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
	msg, details := errorBody(t, w)
	if msg != "Tree construction failed" || details == "" {
		t.Errorf("error = %q, details = %q", msg, details)
	}
}

func TestStageRequests_Rejected(t *testing.T) {
	ts := setupTestServer(t, 0)
	up := ts.upload(t)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"align wrong method", "/align", "", http.StatusMethodNotAllowed},
		{"align bad json", "/align", `{"filepath":`, http.StatusBadRequest},
		{"align missing path", "/align", `{}`, http.StatusBadRequest},
		{"align unknown path", "/align", `{"filepath":"/etc/passwd"}`, http.StatusBadRequest},
		{"build before align", "/build_tree", fmt.Sprintf(`{"aligned_filepath":%q,"request_id":%q}`, up.Filepath, up.RequestID), http.StatusBadRequest},
		{"build missing path", "/build_tree", `{"request_id":"x"}`, http.StatusBadRequest},
		{"save missing svg", "/save_tree", fmt.Sprintf(`{"request_id":%q}`, up.RequestID), http.StatusBadRequest},
		{"save unknown request", "/save_tree", `{"svg":"<svg/>","request_id":"0123456789abcdef0123456789abcdef"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(http.MethodGet, tt.path, nil)
			} else {
				req = testutil.NewJSONRequest(tt.path, tt.body)
			}
			w := ts.do(req)
			testutil.AssertStatusCode(t, w.Code, tt.wantCode)
		})
	}
}

func TestResults_NotFound(t *testing.T) {
	ts := setupTestServer(t, 0)

	for _, path := range []string{
		"/results/missing/tree.json",
		"/results/",
	} {
		w := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	}

	// ServeMux redirects dot-dot paths, so call the handler directly.
	w := httptest.NewRecorder()
	ts.server.handleResults(w, httptest.NewRequest(http.MethodGet, "/results/..%2f..%2fetc%2fpasswd", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestStatus(t *testing.T) {
	ts := setupTestServer(t, 0)
	up := ts.upload(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/status/", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var list StatusListResponse
	decodeJSON(t, w, &list)
	if len(list.Requests) != 1 || list.Requests[0].ID != up.RequestID {
		t.Errorf("requests = %+v", list.Requests)
	}
	if list.InFlight != up.RequestID {
		t.Errorf("in_flight = %q, want %q", list.InFlight, up.RequestID)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/status/"+up.RequestID, nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var one StatusResponse
	decodeJSON(t, w, &one)
	if one.Request.Stage != pipeline.StageUploaded || !one.InFlight {
		t.Errorf("status = %+v", one)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/status/0123456789abcdef0123456789abcdef", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestView_BeforeTree(t *testing.T) {
	ts := setupTestServer(t, 0)
	up := ts.upload(t)

	for _, prefix := range []string{"/view/", "/render/"} {
		w := ts.do(httptest.NewRequest(http.MethodGet, prefix+up.RequestID, nil))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	}
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, 0)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp map[string]interface{}
	decodeJSON(t, w, &resp)
	if resp["status"] != "ok" || resp["busy"] != false {
		t.Errorf("healthz = %v", resp)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{500, colorBoldRed + "500" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
