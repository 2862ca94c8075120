package api

import (
	"net/http"

	"github.com/sprite-ai/margin/internal/analysis"
	"github.com/sprite-ai/margin/internal/annotate"
	"github.com/sprite-ai/margin/internal/metrics"
	"github.com/sprite-ai/margin/internal/model"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Extract ---

type extractRequest struct {
	Response string `json:"response"`
	Document string `json:"document"`
	Type     string `json:"type,omitempty"`
}

type extractResponse struct {
	Annotations []model.Annotation `json:"annotations"`
	Dropped     int                `json:"dropped"`
	Duplicates  int                `json:"duplicates"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Response == "" || req.Document == "" {
		s.writeError(w, http.StatusBadRequest, "response and document are required")
		return
	}

	var opts annotate.Options
	if req.Type != "" {
		t, err := model.ParseType(req.Type)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Type = &t
	}

	res := annotate.Build(req.Response, req.Document, opts)
	metrics.QuotesDropped.Add(float64(res.Dropped))
	for _, a := range res.Annotations {
		metrics.AnnotationsCreated.WithLabelValues(a.Type.String(), "ai").Inc()
	}

	resp := extractResponse{
		Annotations: res.Annotations,
		Dropped:     res.Dropped,
		Duplicates:  res.Duplicates,
	}
	if resp.Annotations == nil {
		resp.Annotations = []model.Annotation{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- Detect ---

type detectRequest struct {
	Document string   `json:"document"`
	Skip     []string `json:"skip,omitempty"`
}

type detectResponse struct {
	Summary     string             `json:"summary"`
	Total       int                `json:"total"`
	Findings    []findingJSON      `json:"findings"`
	Annotations []model.Annotation `json:"annotations"`
}

type findingJSON struct {
	Pass    string `json:"pass"`
	Type    string `json:"type"`
	Line    int    `json:"line"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Document == "" {
		s.writeError(w, http.StatusBadRequest, "document is required")
		return
	}

	results := analysis.Run(req.Document, req.Skip)
	resp := detectResponse{
		Summary:     results.Summary(),
		Total:       len(results.Findings),
		Findings:    []findingJSON{},
		Annotations: results.Annotations(nil),
	}
	for _, f := range results.Findings {
		resp.Findings = append(resp.Findings, findingJSON{
			Pass:    f.Pass,
			Type:    f.Type.String(),
			Line:    f.Line,
			From:    f.From,
			To:      f.To,
			Text:    f.Text,
			Message: f.Message,
		})
		metrics.AnnotationsCreated.WithLabelValues(f.Type.String(), "detector").Inc()
	}

	s.writeJSON(w, http.StatusOK, resp)
}
