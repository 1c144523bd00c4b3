package www

import (
	"net/http"

	"github.com/MCSets/mcsets-setstore-plugin/store"
)

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.engine.Session()
	serverID, serverName := 0, ""
	state := "disconnected"
	pushConnected, pushDisabled := false, false
	if sess != nil {
		serverID, serverName = sess.ServerInfo()
		state = sess.State().String()
		pushConnected = sess.PushConnected()
		pushDisabled = sess.PushDisabled()
	}

	var recent []store.DeliveryRecord
	if db := h.engine.DB(); db != nil {
		recent, _ = db.ListDeliveries(25)
	}

	_, admin := h.sessions.currentUser(r)

	data := map[string]interface{}{
		"Page":          "status",
		"State":         state,
		"ServerID":      serverID,
		"ServerName":    serverName,
		"PushConnected": pushConnected,
		"PushDisabled":  pushDisabled,
		"Processing":    h.engine.Executor().ProcessingCount(),
		"Recent":        recent,
		"Players":       h.engine.Host().OnlinePlayers(),
		"Config":        h.engine.AppConfig(),
		"Admin":         admin,
	}
	h.renderTemplate(w, "status.html", data)
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.currentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderTemplate(w, "login.html", map[string]interface{}{
		"Page": "login",
	})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	db := h.engine.DB()

	// First login bootstraps the admin account.
	seeded, _ := db.HasAdmin()
	if !seeded {
		hash, err := hashPassword(password)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if err := db.SeedAdmin(username, hash); err != nil {
			http.Error(w, "failed to create admin user", http.StatusInternalServerError)
			return
		}
		h.sessions.signIn(w, r, username)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	creds, err := db.AdminCredentials(username)
	if err != nil || !verifyPassword(password, creds.PasswordHash) {
		h.renderTemplate(w, "login.html", map[string]interface{}{
			"Page":  "login",
			"Error": "Invalid username or password",
		})
		return
	}

	h.sessions.signIn(w, r, username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.signOut(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
