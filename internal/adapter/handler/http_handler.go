package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tmachen/shopfloor/internal/core/service"
)

// HTTPHandler exposes the engine to the simulation loop, the replenishment
// actor and the operator displays.
type HTTPHandler struct {
	orchestrator *service.AssemblyOrchestrator
	ledger       *service.InventoryLedger
	status       *service.StatusService
}

func NewHTTPHandler(orchestrator *service.AssemblyOrchestrator, ledger *service.InventoryLedger, status *service.StatusService) *HTTPHandler {
	return &HTTPHandler{orchestrator: orchestrator, ledger: ledger, status: status}
}

// Register wires all routes onto mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/assemblies/start", h.StartAssembly)
	mux.HandleFunc("/api/assemblies/complete", h.CompleteAssembly)
	mux.HandleFunc("/api/bins/replenish", h.ReplenishBin)
	mux.HandleFunc("/api/bins", h.BinStatuses)
	mux.HandleFunc("/api/stations", h.StationStatuses)
	mux.HandleFunc("/api/orders/progress", h.OrderProgress)
	mux.HandleFunc("/api/workers/params", h.WorkerParams)
}

type StartAssemblyRequest struct {
	StationID string `json:"station_id"`
	WorkerID  string `json:"worker_id"`
	OrderID   string `json:"order_id,omitempty"`
}

type StartAssemblyResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	AssemblyID string `json:"assembly_id,omitempty"`
}

type CompleteAssemblyRequest struct {
	AssemblyID string `json:"assembly_id"`
}

type CompleteAssemblyResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Status    string `json:"status,omitempty"`
	Defective bool   `json:"defective"`
}

type ReplenishBinRequest struct {
	BinID    string `json:"bin_id"`
	Resolver string `json:"resolver,omitempty"`
}

type ReplenishBinResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Quantity int    `json:"quantity"`
}

func (h *HTTPHandler) StartAssembly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StartAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StartAssemblyResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.StationID == "" || req.WorkerID == "" {
		writeJSON(w, http.StatusBadRequest, StartAssemblyResponse{Success: false, Message: "missing required fields"})
		return
	}

	assemblyID, err := h.orchestrator.StartAssembly(r.Context(), req.StationID, req.WorkerID, req.OrderID)
	if err != nil {
		writeJSON(w, statusFor(err), StartAssemblyResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, StartAssemblyResponse{Success: true, Message: "assembly started", AssemblyID: assemblyID})
}

func (h *HTTPHandler) CompleteAssembly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CompleteAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssemblyID == "" {
		writeJSON(w, http.StatusBadRequest, CompleteAssemblyResponse{Success: false, Message: "missing assembly_id"})
		return
	}

	assembly, err := h.orchestrator.CompleteAssembly(r.Context(), req.AssemblyID)
	if err != nil {
		writeJSON(w, statusFor(err), CompleteAssemblyResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CompleteAssemblyResponse{
		Success:   true,
		Message:   "assembly finished",
		Status:    string(assembly.Status),
		Defective: assembly.Defective,
	})
}

func (h *HTTPHandler) ReplenishBin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReplenishBinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BinID == "" {
		writeJSON(w, http.StatusBadRequest, ReplenishBinResponse{Success: false, Message: "missing bin_id"})
		return
	}

	qty, err := h.ledger.Replenish(r.Context(), req.BinID, req.Resolver)
	if err != nil {
		writeJSON(w, statusFor(err), ReplenishBinResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ReplenishBinResponse{Success: true, Message: "bin replenished", Quantity: qty})
}

func (h *HTTPHandler) BinStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.status.BinStatuses(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *HTTPHandler) StationStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.status.StationStatuses(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *HTTPHandler) OrderProgress(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_id"})
		return
	}

	progress, err := h.status.OrderProgress(r.Context(), orderID)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *HTTPHandler) WorkerParams(w http.ResponseWriter, r *http.Request) {
	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing worker_id"})
		return
	}

	params, err := h.status.WorkerParams(r.Context(), workerID)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
