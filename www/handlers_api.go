package www

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseID(r *http.Request, param string) (int64, error) {
	s := chi.URLParam(r, param)
	return strconv.ParseInt(s, 10, 64)
}

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.engine.Session()
	exec := h.engine.Executor()
	serverID, serverName := 0, ""
	state := "disconnected"
	pushConnected, pushDisabled := false, false
	if sess != nil {
		serverID, serverName = sess.ServerInfo()
		state = sess.State().String()
		pushConnected = sess.PushConnected()
		pushDisabled = sess.PushDisabled()
	}
	processing := 0
	if exec != nil {
		processing = exec.ProcessingCount()
	}

	total := 0
	if db := h.engine.DB(); db != nil {
		total, _ = db.CountDeliveries()
	}

	writeJSON(w, map[string]interface{}{
		"state":           state,
		"server_id":       serverID,
		"server_name":     serverName,
		"push_connected":  pushConnected,
		"push_disabled":   pushDisabled,
		"processing":      processing,
		"delivered_total": total,
		"online_players":  h.engine.Host().OnlinePlayers(),
	})
}

func (h *Handlers) apiListDeliveries(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	player := r.URL.Query().Get("player")

	if player != "" {
		records, err := db.ListDeliveriesForPlayer(player, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, records)
		return
	}
	records, err := db.ListDeliveries(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, records)
}

func (h *Handlers) apiDeliveryCommands(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	id, err := parseID(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}
	entries, err := db.ListCommandLog(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, entries)
}

func (h *Handlers) apiProcessQueue(w http.ResponseWriter, r *http.Request) {
	go h.engine.Executor().ProcessQueue()
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiReconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.Session().Reconnect()
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		UUID     string `json:"uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	resp, err := h.engine.Session().VerifyPlayer(req.Username, req.UUID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, resp)
}

func (h *Handlers) apiUpdateLogging(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Debug         *bool `json:"debug"`
		LogRequests   *bool `json:"log_requests"`
		LogDeliveries *bool `json:"log_deliveries"`
		LogCommands   *bool `json:"log_commands"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := h.engine.AppConfig()
	cfg.Lock()
	if req.Debug != nil {
		cfg.Logging.Debug = *req.Debug
	}
	if req.LogRequests != nil {
		cfg.Logging.LogRequests = *req.LogRequests
	}
	if req.LogDeliveries != nil {
		cfg.Logging.LogDeliveries = *req.LogDeliveries
	}
	if req.LogCommands != nil {
		cfg.Logging.LogCommands = *req.LogCommands
	}
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.New) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	username, _ := h.sessions.currentUser(r)
	db := h.engine.DB()
	creds, err := db.AdminCredentials(username)
	if err != nil || !verifyPassword(req.Current, creds.PasswordHash) {
		writeError(w, http.StatusForbidden, "current password is incorrect")
		return
	}
	hash, err := hashPassword(req.New)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := db.SetAdminPassword(username, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
