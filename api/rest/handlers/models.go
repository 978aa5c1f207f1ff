package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"rl-orchestrator/core/admission"
	"rl-orchestrator/core/repository"
	"rl-orchestrator/core/stopper"
)

// ModelHandler handles model lifecycle HTTP requests.
type ModelHandler struct {
	admit     *admission.Service
	stop      *stopper.Coordinator
	modelRepo *repository.ModelRepository
}

// NewModelHandler creates a new model handler
func NewModelHandler(admit *admission.Service, stop *stopper.Coordinator, modelRepo *repository.ModelRepository) *ModelHandler {
	return &ModelHandler{admit: admit, stop: stop, modelRepo: modelRepo}
}

// runSpecBody is the run settings shared by the admission requests.
type runSpecBody struct {
	TrackName        string `json:"trackName"`
	RaceType         string `json:"raceType"`
	MaxTimeInMinutes int    `json:"maxTimeInMinutes"`
	MaxLaps          int    `json:"maxLaps"`
}

func (b runSpecBody) toSpec() admission.RunSpec {
	return admission.RunSpec{
		TrackName:        b.TrackName,
		RaceType:         b.RaceType,
		MaxTimeInMinutes: b.MaxTimeInMinutes,
		MaxLaps:          b.MaxLaps,
	}
}

// CreateModelRequest is the body for POST /v1/models.
type CreateModelRequest struct {
	ProfileID      string      `json:"profileId"`
	Name           string      `json:"name"`
	RewardFunction string      `json:"rewardFunction"`
	ActionSpace    string      `json:"actionSpace"`
	Sensors        string      `json:"sensors"`
	ClonedFrom     *string     `json:"clonedFrom,omitempty"`
	Run            runSpecBody `json:"run"`
}

// CreateModelResponse is the response for POST /v1/models.
type CreateModelResponse struct {
	ModelID string `json:"modelId"`
	JobName string `json:"jobName"`
	Status  string `json:"status"`
}

// CreateModel handles POST /v1/models
func (h *ModelHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	model, job, err := h.admit.CreateModel(r.Context(), admission.CreateModelRequest{
		ProfileID:      req.ProfileID,
		Name:           req.Name,
		RewardFunction: req.RewardFunction,
		ActionSpace:    req.ActionSpace,
		Sensors:        req.Sensors,
		ClonedFrom:     req.ClonedFrom,
		Run:            req.Run.toSpec(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateModelResponse{
		ModelID: model.ID,
		JobName: job.Name,
		Status:  string(model.Status),
	})
}

// GetModel handles GET /v1/models/{id}
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.modelRepo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               model.ID,
		"profileId":        model.ProfileID,
		"name":             model.Name,
		"status":           model.Status,
		"clonedFrom":       model.ClonedFrom,
		"artifactLocation": model.ArtifactLocation,
		"createdAt":        model.CreatedAt,
		"updatedAt":        model.UpdatedAt,
	})
}

type startRunRequest struct {
	ProfileID     string      `json:"profileId"`
	LeaderboardID string      `json:"leaderboardId,omitempty"`
	Run           runSpecBody `json:"run"`
}

type startRunResponse struct {
	JobName string `json:"jobName"`
	Status  string `json:"status"`
}

// StartEvaluation handles POST /v1/models/{id}/evaluations
func (h *ModelHandler) StartEvaluation(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.admit.StartEvaluation(r.Context(), mux.Vars(r)["id"], req.ProfileID, req.Run.toSpec())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startRunResponse{JobName: job.Name, Status: string(job.Status)})
}

// SubmitToLeaderboard handles POST /v1/models/{id}/submissions
func (h *ModelHandler) SubmitToLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.admit.SubmitToLeaderboard(r.Context(), mux.Vars(r)["id"], req.ProfileID, req.LeaderboardID, req.Run.toSpec())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startRunResponse{JobName: job.Name, Status: string(job.Status)})
}

type stopRequest struct {
	ProfileID string `json:"profileId"`
}

// StopModel handles POST /v1/models/{id}/stop
func (h *ModelHandler) StopModel(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.stop.Stop(r.Context(), mux.Vars(r)["id"], req.ProfileID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"stopped": true})
}
