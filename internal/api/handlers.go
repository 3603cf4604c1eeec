package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/httputil"
	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/pipeline"
	"github.com/banshee-data/phylo.report/internal/render"
	"github.com/banshee-data/phylo.report/internal/version"
)

// recentLimit is how many requests GET /status/ lists.
const recentLimit = 20

type UploadResponse struct {
	Message   string `json:"message"`
	Filepath  string `json:"filepath"`
	RequestID string `json:"request_id"`
}

type AlignRequest struct {
	Filepath  string `json:"filepath"`
	RequestID string `json:"request_id,omitempty"`
}

type AlignResponse struct {
	Message         string `json:"message"`
	AlignedFilepath string `json:"aligned_filepath"`
}

type BuildTreeRequest struct {
	AlignedFilepath string `json:"aligned_filepath"`
	RequestID       string `json:"request_id,omitempty"`
}

type BuildTreeResponse struct {
	Message          string         `json:"message"`
	TreeFilepath     string         `json:"tree_filepath"`
	JSONTreeFilepath string         `json:"json_tree_filepath"`
	ExecutionTime    float64        `json:"execution_time"` // seconds
	Summary          newick.Summary `json:"summary"`
}

type SaveTreeRequest struct {
	SVG       string `json:"svg"`
	RequestID string `json:"request_id"`
}

type SaveTreeResponse struct {
	Message  string `json:"message"`
	Filepath string `json:"filepath"`
}

type StatusResponse struct {
	Request  *pipeline.Request `json:"request"`
	InFlight bool              `json:"in_flight"`
}

type StatusListResponse struct {
	Requests []*pipeline.Request `json:"requests"`
	InFlight string              `json:"in_flight,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Busy     bool   `json:"busy"`
	InFlight string `json:"in_flight,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, http.ErrMissingFile):
			httputil.BadRequest(w, "No file part")
		default:
			httputil.BadRequest(w, "invalid upload: "+err.Error())
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		httputil.BadRequest(w, "No selected file")
		return
	}

	req, err := s.pipeline.Begin(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, err, "Upload failed")
		return
	}

	httputil.WriteJSONOK(w, UploadResponse{
		Message:   "File uploaded successfully",
		Filepath:  req.Path(artifact.RawSequences),
		RequestID: req.ID,
	})
}

func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body AlignRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Filepath == "" {
		httputil.BadRequest(w, "Invalid file path")
		return
	}

	id, err := s.ownerOf(r, body.RequestID, body.Filepath)
	if err != nil {
		writeError(w, err, "Alignment failed")
		return
	}

	req, err := s.pipeline.AdvanceToAlign(r.Context(), id, body.Filepath)
	if err != nil {
		writeError(w, err, "Alignment failed")
		return
	}

	httputil.WriteJSONOK(w, AlignResponse{
		Message:         "Alignment completed",
		AlignedFilepath: req.Path(artifact.AlignedSequences),
	})
}

func (s *Server) handleBuildTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body BuildTreeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.AlignedFilepath == "" {
		httputil.BadRequest(w, "Invalid aligned file path")
		return
	}

	id, err := s.ownerOf(r, body.RequestID, body.AlignedFilepath)
	if err != nil {
		writeError(w, err, "Tree construction failed")
		return
	}

	res, err := s.pipeline.AdvanceToInfer(r.Context(), id, body.AlignedFilepath)
	if err != nil {
		writeError(w, err, "Tree construction failed")
		return
	}

	httputil.WriteJSONOK(w, BuildTreeResponse{
		Message:          "Phylogenetic tree built",
		TreeFilepath:     res.TreePath,
		JSONTreeFilepath: res.JSONPath,
		ExecutionTime:    res.ExecutionTime.Seconds(),
		Summary:          res.Summary,
	})
}

func (s *Server) handleSaveTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body SaveTreeRequest
	if !decodeBody(w, r, &body) {
		return
	}

	path, err := s.pipeline.ExportRendering(r.Context(), body.RequestID, body.SVG)
	if err != nil {
		writeError(w, err, "Failed to save tree")
		return
	}

	httputil.WriteJSONOK(w, SaveTreeResponse{
		Message:  "Tree saved successfully",
		Filepath: path,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/results/")
	data, err := s.store.Read(rel)
	if errors.Is(err, artifact.ErrNotFound) {
		httputil.NotFound(w, "not found")
		return
	}
	if err != nil {
		logf("read result %s: %v", rel, err)
		httputil.InternalServerError(w, "failed to read result")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(rel))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(data)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	holder, busy := s.pipeline.InFlight()

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/status/"), "/")
	if id == "" {
		reqs, err := s.pipeline.Recent(r.Context(), recentLimit)
		if err != nil {
			writeError(w, err, "failed to list requests")
			return
		}
		resp := StatusListResponse{Requests: reqs}
		if busy {
			resp.InFlight = holder
		}
		httputil.WriteJSONOK(w, resp)
		return
	}

	req, ok := s.lookup(w, r, id)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, StatusResponse{Request: req, InFlight: busy && holder == id})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/view/"), "/")
	root, ok := s.loadTree(w, r, id)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render.WriteViewer(&buf, root, "Phylogenetic tree", id); err != nil {
		logf("view %s: %v", id, err)
		httputil.InternalServerError(w, "failed to render viewer")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/render/"), "/")
	root, ok := s.loadTree(w, r, id)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render.WriteSVG(&buf, root, id); err != nil {
		logf("render %s: %v", id, err)
		httputil.InternalServerError(w, "failed to render tree")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	holder, busy := s.pipeline.InFlight()
	httputil.WriteJSONOK(w, HealthResponse{
		Status:   "ok",
		Version:  version.String(),
		Busy:     busy,
		InFlight: holder,
	})
}

// ownerOf returns requestID, or resolves the owner of path through the
// registry when the client did not send one.
func (s *Server) ownerOf(r *http.Request, requestID, path string) (string, error) {
	if requestID != "" {
		return requestID, nil
	}
	return s.pipeline.ResolveOwner(r.Context(), path)
}

// lookup fetches request id for a GET endpoint. Unknown ids are 404 here
// rather than 400 since the id is the resource being read.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id string) (*pipeline.Request, bool) {
	req, err := s.pipeline.Lookup(r.Context(), id)
	if errors.Is(err, pipeline.ErrUnknownRequest) {
		httputil.NotFound(w, err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, err, "failed to look up request")
		return nil, false
	}
	return req, true
}

// loadTree reads the viewer tree of request id.
func (s *Server) loadTree(w http.ResponseWriter, r *http.Request, id string) (*newick.JSONNode, bool) {
	req, ok := s.lookup(w, r, id)
	if !ok {
		return nil, false
	}

	path := req.Path(artifact.TreeJSON)
	if path == "" {
		httputil.NotFound(w, fmt.Sprintf("request %s has no tree yet (stage %s)", id, req.Stage))
		return nil, false
	}
	data, err := s.store.ReadFile(path)
	if err != nil {
		logf("read tree %s: %v", path, err)
		httputil.NotFound(w, "tree not found")
		return nil, false
	}
	root, err := newick.DecodeJSON(data)
	if err != nil {
		logf("decode tree %s: %v", path, err)
		httputil.InternalServerError(w, "stored tree is corrupt")
		return nil, false
	}
	return root, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.BadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
