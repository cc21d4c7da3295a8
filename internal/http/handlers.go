package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"costbook/internal/core"
	"costbook/internal/importer"
	"costbook/internal/ports"
)

// kindsByPath maps the URL segment of a child collection to its entity kind.
var kindsByPath = map[string]ports.EntityKind{
	"milestones": ports.KindMilestone,
	"line-items": ports.KindLineItem,
	"materials":  ports.KindMaterial,
	"payments":   ports.KindPayment,
}

// handleListProjects handles GET /api/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []core.Project{}
	}
	writeJSON(w, r, http.StatusOK, projects)
}

// handleCreateProject handles POST /api/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[core.Project](w, r)
	if !ok {
		return
	}
	p.ID = ""
	p.Code = sanitizeInput(p.Code)
	p.Name = sanitizeInput(p.Name)
	p.Client = sanitizeInput(p.Client)

	created, err := s.projects.CreateProject(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// handleImportProject handles POST /api/projects/import. The body is a JSON
// or YAML project document, chosen by Content-Type.
func (s *Server) handleImportProject(w http.ResponseWriter, r *http.Request) {
	format := importer.FormatJSON
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = importer.FormatYAML
	}

	snap, err := importer.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: "body_too_large"})
		case core.IsValidation(err):
			writeError(w, r, err)
		default:
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		}
		return
	}

	p, err := s.projects.ImportProject(r.Context(), snap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// handleGetProject handles GET /api/projects/{id}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleDeleteProject handles DELETE /api/projects/{id}
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateMilestone handles POST /api/projects/{id}/milestones
func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	m, ok := readJSON[core.Milestone](w, r)
	if !ok {
		return
	}
	m.ID = ""
	m.ProjectID = chi.URLParam(r, "id")
	m.Code = sanitizeInput(m.Code)
	m.Name = sanitizeInput(m.Name)

	created, err := s.projects.AddMilestone(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// handleCreateLineItem handles POST /api/projects/{id}/line-items
func (s *Server) handleCreateLineItem(w http.ResponseWriter, r *http.Request) {
	li, ok := readJSON[core.CostLineItem](w, r)
	if !ok {
		return
	}
	li.ID = ""
	li.ProjectID = chi.URLParam(r, "id")
	li.RoleOrSKU = sanitizeInput(li.RoleOrSKU)

	created, err := s.projects.AddLineItem(r.Context(), li)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// handleCreateMaterial handles POST /api/projects/{id}/materials
func (s *Server) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	mc, ok := readJSON[core.MaterialCost](w, r)
	if !ok {
		return
	}
	mc.ID = ""
	mc.ProjectID = chi.URLParam(r, "id")
	mc.SKU = sanitizeInput(mc.SKU)
	mc.Description = sanitizeInput(mc.Description)

	created, err := s.projects.AddMaterial(r.Context(), mc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// handleCreatePayment handles POST /api/projects/{id}/payments
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	ps, ok := readJSON[core.PaymentSchedule](w, r)
	if !ok {
		return
	}
	ps.ID = ""
	ps.ProjectID = chi.URLParam(r, "id")
	ps.InvoiceNo = sanitizeInput(ps.InvoiceNo)
	ps.Notes = sanitizeInput(ps.Notes)

	created, err := s.projects.AddPayment(r.Context(), ps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// handleDeleteEntity handles DELETE /api/projects/{id}/{kind}/{itemID}
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindsByPath[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, r, fmt.Errorf("collection %q: %w", chi.URLParam(r, "kind"), core.ErrNotFound))
		return
	}
	err := s.projects.DeleteEntity(r.Context(), chi.URLParam(r, "id"), kind, chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReport handles GET /api/projects/{id}/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.ProjectReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

// handleReconciliation handles GET /api/projects/{id}/reconciliation
func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.ProjectReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep.Reconcile)
}

// handleReportPage handles GET /projects/{id}/report
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	rep, err := s.reports.ProjectReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Report build failed", "url", r.URL.Path, "error", err)
		}
		msg := http.StatusText(status)
		if errors.Is(err, core.ErrNotFound) {
			msg = "Project not found"
		} else if status != http.StatusInternalServerError {
			msg = "This project's figures cannot be computed: " + err.Error()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if terr := s.templates.ExecuteTemplate(w, "error.html", msg); terr != nil {
			s.logger.ErrorContext(r.Context(), "Error template execution failed", "error", terr)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "report.html", rep); err != nil {
		s.logger.ErrorContext(r.Context(), "Report template execution failed", "error", err, "template", "report.html")
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
