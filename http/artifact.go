package http

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/artifact"
	medicjson "github.com/fwojciec/medic/json"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// decodeArtifact reads a rendering request and structures raw content into
// an artifact when no sections were supplied.
func decodeArtifact(w http.ResponseWriter, r *http.Request) (*medic.Artifact, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, err := medicjson.DecodeArtifactRequest(r.Body)
	if err != nil {
		return nil, err
	}
	if req.Artifact != nil {
		if strings.TrimSpace(req.Artifact.Title) == "" {
			req.Artifact.Title = artifact.DefaultTitle(req.Type)
		}
		return req.Artifact, nil
	}
	return artifact.Build(req.Type, req.Title, req.Content), nil
}

func (s *Server) handleArtifactHTML(w http.ResponseWriter, r *http.Request) {
	a, err := decodeArtifact(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.html.Render(r.Context(), a)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("render html: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"html":  string(page),
		"title": a.Title,
		"type":  string(a.Type),
	})
}

func (s *Server) handleArtifactPDF(w http.ResponseWriter, r *http.Request) {
	a, err := decodeArtifact(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.pdf.Render(r.Context(), a)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("render pdf: %w", err))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", pdfFilename(a.Title)))
	s.writeBody(w, http.StatusOK, s.pdf.ContentType(), doc)
}

// pdfFilename turns a title into a header-safe file name.
func pdfFilename(title string) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(title, "_"), "_")
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}
