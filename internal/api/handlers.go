package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/anomaly"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/session"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadResponse describes a newly loaded dataset.
type UploadResponse struct {
	DatasetID string   `json:"dataset_id"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns"`
	Delimiter string   `json:"delimiter"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, fmt.Errorf("parse upload: %v: %w", err, apperr.ErrInvalidArgument))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("form field \"file\" is required: %w", apperr.ErrInvalidArgument))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		s.writeError(w, r, fmt.Errorf("upload has no file name: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := utils.EnsureDir(s.env.Config.DataDir); err != nil {
		s.writeError(w, r, err)
		return
	}
	dest := filepath.Join(s.env.Config.DataDir, name)
	if err := saveUpload(file, dest); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.env.Open(dest, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if nf, nh, err := r.FormFile("notes"); err == nil {
		defer nf.Close()
		notesPath := filepath.Join(s.env.Config.DataDir, utils.Stem(name)+"_notes"+filepath.Ext(nh.Filename))
		if err := saveUpload(nf, notesPath); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := sess.AttachNotes(notesPath); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.add(sess)
	md := sess.Dataset.Metadata
	s.log.Info("dataset uploaded", zap.String("dataset_id", sess.ID), zap.String("path", md.Path), zap.Int("rows", md.NumRows))
	s.writeJSON(w, r, http.StatusOK, UploadResponse{DatasetID: sess.ID, Rows: md.NumRows, Columns: md.Columns, Delimiter: md.Delimiter})
}

func saveUpload(src io.Reader, dest string) error {
	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	return dst.Close()
}

// AskRequest is the body of POST /ask. Query parameters of the same names
// take precedence.
type AskRequest struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxSteps  int    `json:"max_steps,omitempty"`
	NoMemory  bool   `json:"no_memory,omitempty"`
}

// AskResponse is the agent's answer.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Steps   int      `json:"steps"`
	Charts  []string `json:"charts"`
	Stopped bool     `json:"stopped"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if r.Body != nil && strings.Contains(r.Header.Get("Content-Type"), "json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, r, fmt.Errorf("invalid JSON body: %v: %w", err, apperr.ErrInvalidArgument))
			return
		}
	}
	q := r.URL.Query()
	if v := q.Get("dataset_id"); v != "" {
		req.DatasetID = v
	}
	if v := q.Get("question"); v != "" {
		req.Question = v
	}
	if v := q.Get("provider"); v != "" {
		req.Provider = v
	}
	if v := q.Get("model"); v != "" {
		req.Model = v
	}
	if req.DatasetID == "" || strings.TrimSpace(req.Question) == "" {
		s.writeError(w, r, fmt.Errorf("dataset_id and question are required: %w", apperr.ErrInvalidArgument))
		return
	}
	sess, err := s.get(req.DatasetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ans, err := sess.Ask(r.Context(), req.Question, session.Overrides{
		Provider: req.Provider,
		Model:    req.Model,
		MaxSteps: req.MaxSteps,
		NoMemory: req.NoMemory,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	charts := ans.Charts
	if charts == nil {
		charts = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, AskResponse{Answer: ans.Answer, Steps: ans.Steps, Charts: charts, Stopped: ans.Stopped})
}

// DatasetInfo is the listing entry of one session.
type DatasetInfo struct {
	Path    string   `json:"path"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

func (s *Server) info(sess *session.Session) DatasetInfo {
	md := sess.Dataset.Metadata
	return DatasetInfo{Path: md.Path, Rows: md.NumRows, Columns: md.Columns}
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	out := map[string]DatasetInfo{}
	for _, id := range s.ids() {
		if sess, err := s.get(id); err == nil {
			out[id] = s.info(sess)
		}
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sess.Dataset.Metadata)
}

func (s *Server) deleteDataset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.remove(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("forget") == "true" {
		if err := sess.Forget(r.Context()); err != nil {
			s.log.Warn("forget memory failed", zap.String("dataset_id", sess.ID), zap.Error(err))
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"deleted": sess.ID})
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := sess.Describe()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) anomalies(w http.ResponseWriter, r *http.Request) {
	sess, err := s.get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opt := anomaly.Options{}
	q := r.URL.Query()
	if v := q.Get("contamination"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("contamination %q is not a number: %w", v, apperr.ErrInvalidArgument))
			return
		}
		opt.Contamination = c
	}
	if v := q.Get("columns"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				opt.Columns = append(opt.Columns, c)
			}
		}
	}
	res, err := sess.Anomalies(opt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}
