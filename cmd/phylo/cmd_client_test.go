package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/phylo.report/internal/api"
	"github.com/banshee-data/phylo.report/internal/httputil"
	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/testutil"
)

const fakeID = "0123456789abcdef0123456789abcdef"

// fakeServer answers the pipeline endpoints with canned replies.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "No file part")
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != testutil.SampleFASTA {
			httputil.BadRequest(w, "unexpected upload body")
			return
		}
		httputil.WriteJSONOK(w, api.UploadResponse{
			Message:   "File uploaded successfully",
			Filepath:  "uploads/" + fakeID + "_" + header.Filename,
			RequestID: fakeID,
		})
	})
	mux.HandleFunc("/align", func(w http.ResponseWriter, r *http.Request) {
		var req api.AlignRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RequestID != fakeID {
			httputil.BadRequest(w, "wrong request id")
			return
		}
		httputil.WriteJSONOK(w, api.AlignResponse{Message: "Alignment completed", AlignedFilepath: "results/" + fakeID + "/aligned.fasta"})
	})
	mux.HandleFunc("/build_tree", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, api.BuildTreeResponse{
			Message:       "Phylogenetic tree built",
			ExecutionTime: 1.5,
			Summary:       newick.Summary{Leaves: 3, InternalNodes: 2},
		})
	})
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results/"+fakeID+"/tree.nwk" {
			httputil.NotFound(w, "not found")
			return
		}
		io.WriteString(w, caterpillar+"\n")
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status/" {
			httputil.WriteJSONOK(w, api.StatusListResponse{InFlight: fakeID})
			return
		}
		httputil.NotFound(w, "unknown request")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitCommand(t *testing.T) {
	srv := fakeServer(t)
	fasta := writeFile(t, "primates.fasta", testutil.SampleFASTA)
	out := filepath.Join(t.TempDir(), "tree.nwk")

	stdout, err := execute(t, "submit", "--server", srv.URL, "-o", out, fasta)
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, stdout)
	}
	for _, want := range []string{"uploaded", "aligned", "tree built in 1.5s (3 leaves, 2 internal nodes)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read tree: %v", err)
	}
	if strings.TrimSpace(string(data)) != caterpillar {
		t.Errorf("tree = %q", data)
	}
}

func TestStatusCommand(t *testing.T) {
	srv := fakeServer(t)

	stdout, err := execute(t, "status", "--server", srv.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout, `"in_flight": "`+fakeID+`"`) {
		t.Errorf("output = %s", stdout)
	}

	if _, err := execute(t, "status", "--server", srv.URL, fakeID); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("unknown request err = %v", err)
	}
}
