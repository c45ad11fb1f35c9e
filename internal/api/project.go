package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProjectHandler 项目列表接口处理器
type ProjectHandler struct {
	projectService ProjectService
	logger         *zap.Logger
}

// NewProjectHandler 创建 ProjectHandler
func NewProjectHandler(projectService ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes 注册路由到 mux.Router
func (h *ProjectHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id:[0-9]+}", h.getProject).Methods(http.MethodGet)
}

// listProjects 获取项目列表
func (h *ProjectHandler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("failed to list projects", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Could not load projects"})
		return
	}

	writeJSON(w, http.StatusOK, ListProjectsResponse{Success: true, Projects: projects})
}

// getProject 获取单个项目
func (h *ProjectHandler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "invalid project id"})
		return
	}

	project, err := h.projectService.GetProject(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, Envelope{Message: "Project not found"})
		return
	case err != nil:
		h.logger.Error("failed to load project", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Could not load project"})
		return
	}

	writeJSON(w, http.StatusOK, ProjectResponse{Success: true, Project: *project})
}
