package http

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ignatij/ingestctl/internal/log"
	"github.com/ignatij/ingestctl/pkg/graph"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/service"
	"github.com/ignatij/ingestctl/pkg/workspace"
)

// NewRouter exposes the local workspace as a JSON API.
func NewRouter(svc *service.WorkspaceService) *mux.Router {
	h := &handlers{svc: svc}
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.updateJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{id}", h.deleteJob).Methods(http.MethodDelete)
	r.HandleFunc("/jobs/{id}/stages", h.addStage).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/stages/order", h.reorderStages).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{id}/stages/{stageId}", h.updateStage).Methods(http.MethodPatch)
	r.HandleFunc("/jobs/{id}/stages/{stageId}", h.removeStage).Methods(http.MethodDelete)

	r.HandleFunc("/pipelines", h.listPipelines).Methods(http.MethodGet)
	r.HandleFunc("/pipelines", h.createPipeline).Methods(http.MethodPost)
	r.HandleFunc("/pipelines/{id}", h.getPipeline).Methods(http.MethodGet)
	r.HandleFunc("/pipelines/{id}", h.updatePipeline).Methods(http.MethodPut)
	r.HandleFunc("/pipelines/{id}", h.deletePipeline).Methods(http.MethodDelete)
	r.HandleFunc("/pipelines/{id}/order", h.pipelineOrder).Methods(http.MethodGet)
	return r
}

func StartServer(port int, svc *service.WorkspaceService) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.GetLogger().Infof("Starting ingestctl server on :%d", port)
	return srv.ListenAndServe()
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type handlers struct {
	svc *service.WorkspaceService
}

type pipelineRequest struct {
	Name  string        `json:"name"`
	Jobs  []string      `json:"jobs"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

type reorderRequest struct {
	StageIDs []string `json:"stage_ids"`
	From     *int     `json:"from"`
	To       *int     `json:"to"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case stderrors.Is(err, workspace.ErrJobNotFound),
		stderrors.Is(err, workspace.ErrPipelineNotFound),
		stderrors.Is(err, models.ErrStageNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, models.ErrInvalid),
		stderrors.Is(err, models.ErrIndexOutOfRange),
		stderrors.Is(err, workspace.ErrDuplicateJob),
		stderrors.Is(err, graph.ErrUnknownNode),
		stderrors.Is(err, graph.ErrUnknownJob),
		stderrors.Is(err, graph.ErrSelfLoop),
		stderrors.Is(err, graph.ErrDuplicateEdge),
		stderrors.Is(err, graph.ErrDuplicateNode),
		stderrors.Is(err, graph.ErrCycle),
		stderrors.Is(err, graph.ErrEmptyName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handlers) createJob(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if !decode(w, r, &job) {
		return
	}
	created, err := h.svc.CreateJob(job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetJob(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) updateJob(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if !decode(w, r, &job) {
		return
	}
	job.ID = mux.Vars(r)["id"]
	if err := h.svc.UpdateJob(job); err != nil {
		writeError(w, r, err)
		return
	}
	h.getJob(w, r)
}

func (h *handlers) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteJob(mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) addStage(w http.ResponseWriter, r *http.Request) {
	var in models.StageInput
	if !decode(w, r, &in) {
		return
	}
	st, err := h.svc.AddStage(mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *handlers) reorderStages(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decode(w, r, &req) {
		return
	}
	jobID := mux.Vars(r)["id"]
	var err error
	switch {
	case len(req.StageIDs) > 0:
		err = h.svc.SetStageOrder(jobID, req.StageIDs)
	case req.From != nil && req.To != nil:
		err = h.svc.ReorderStages(jobID, *req.From, *req.To)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "either stage_ids or from and to are required"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.getJob(w, r)
}

func (h *handlers) updateStage(w http.ResponseWriter, r *http.Request) {
	var patch models.StagePatch
	if !decode(w, r, &patch) {
		return
	}
	vars := mux.Vars(r)
	st, err := h.svc.UpdateStage(vars["id"], vars["stageId"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) removeStage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.svc.RemoveStage(vars["id"], vars["stageId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.svc.ListPipelines()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelines)
}

func (h *handlers) createPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.CreatePipeline(req.Name, req.Jobs, req.Nodes, req.Edges)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) getPipeline(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPipeline(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updatePipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.UpdatePipeline(mux.Vars(r)["id"], req.Name, req.Jobs, req.Nodes, req.Edges)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) deletePipeline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePipeline(mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pipelineOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.ExecutionOrder(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"order": order})
}
