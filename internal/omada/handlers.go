package omada

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/session"
)

// Controller-level error codes of the Omada v2 API.
const (
	codeNotFound           = -30104
	codePortNotFound       = -30106
	codeUnsupportedAction  = -30107
	codeInvalidCredentials = -30109
)

func (m *Module) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>Virtual Omada Controller</h1>"+
		"<p>Use this URL as controller host.</p>"+
		"<p>Host field must include protocol: <code>http://&lt;ip&gt;</code></p>"+
		"<p>Username: <code>%s</code> | Password: <code>%s</code></p>"+
		"</body></html>", m.username, m.password)
}

func (m *Module) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	m.ok(w, map[string]any{
		"controllerVer": m.version,
		"omadacId":      m.controllerID,
	})
}

// handleLogin checks the posted credentials and mints a bearer token. The
// alias route without {cid} resolves to this controller.
func (m *Module) handleLogin(w http.ResponseWriter, r *http.Request) {
	if cid := r.PathValue("cid"); cid != "" && cid != m.controllerID {
		m.notFound(w, "controller not found")
		return
	}

	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		m.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"errorCode": codeInvalidCredentials, "msg": "invalid credentials",
		})
		return
	}
	if payload.Username != m.username || payload.Password != m.password {
		m.logger.Warn("login rejected", zap.String("username", payload.Username))
		m.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"errorCode": codeInvalidCredentials, "msg": "invalid credentials",
		})
		return
	}

	token := session.NewHexToken()
	m.mu.Lock()
	m.tokens[token] = struct{}{}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     "TPOMADA_SESSIONID",
		Value:    session.NewHexToken()[:24],
		Path:     "/",
		HttpOnly: true,
	})
	m.ok(w, map[string]any{"token": token})
}

func (m *Module) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	if !m.requireController(w, r) {
		return
	}
	m.ok(w, map[string]any{"login": true})
}

func (m *Module) handleUsersCurrent(w http.ResponseWriter, r *http.Request) {
	if !m.requireController(w, r) {
		return
	}
	m.ok(w, map[string]any{
		"privilege": map[string]any{
			"sites": []map[string]any{
				{"name": m.siteName, "key": m.siteID},
			},
		},
	})
}

func (m *Module) handleControllerStatus(w http.ResponseWriter, r *http.Request) {
	if !m.requireController(w, r) {
		return
	}
	m.ok(w, map[string]any{"name": m.name})
}

func (m *Module) handleUIInterface(w http.ResponseWriter, r *http.Request) {
	if !m.requireController(w, r) {
		return
	}
	m.ok(w, map[string]any{"controllerName": m.name})
}

// requireController validates {cid} where present. Alias routes carry no
// cid and always pass.
func (m *Module) requireController(w http.ResponseWriter, r *http.Request) bool {
	if cid := r.PathValue("cid"); cid != "" && cid != m.controllerID {
		m.notFound(w, "controller not found")
		return false
	}
	return true
}

// requireSite validates the {cid}/{site} pair of a site-scoped route.
func (m *Module) requireSite(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("cid") != m.controllerID {
		m.notFound(w, "controller not found")
		return false
	}
	if r.PathValue("site") != m.siteID {
		m.notFound(w, "site not found")
		return false
	}
	return true
}

// -- response plumbing --

func (m *Module) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Warn("write response", zap.Error(err))
	}
}

func (m *Module) ok(w http.ResponseWriter, result any) {
	m.writeJSON(w, http.StatusOK, map[string]any{"errorCode": 0, "result": result})
}

func (m *Module) message(w http.ResponseWriter, msg string) {
	m.writeJSON(w, http.StatusOK, map[string]any{
		"errorCode": 0, "msg": msg, "result": map[string]any{},
	})
}

func (m *Module) notFound(w http.ResponseWriter, msg string) {
	m.writeJSON(w, http.StatusNotFound, map[string]any{
		"errorCode": codeNotFound, "msg": msg,
	})
}

func (m *Module) portNotFound(w http.ResponseWriter, what string) {
	m.writeJSON(w, http.StatusNotFound, map[string]any{
		"errorCode": codePortNotFound, "msg": what,
	})
}

func (m *Module) unsupportedAction(w http.ResponseWriter) {
	m.writeJSON(w, http.StatusBadRequest, map[string]any{
		"errorCode": codeUnsupportedAction, "msg": "unsupported action",
	})
}

// paginate slices items per the currentPage/currentPageSize query
// parameters, defaulting to page 1 of 100.
func paginate(items []fixture.Record, r *http.Request) map[string]any {
	q := r.URL.Query()
	page := queryInt(q.Get("currentPage"), 1)
	size := queryInt(q.Get("currentPageSize"), 100)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 100
	}

	start := (page - 1) * size
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	sliced := items[start:end]

	return map[string]any{
		"data":        sliced,
		"currentPage": page,
		"currentSize": len(sliced),
		"totalRows":   len(items),
	}
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// decodeBody reads an optional JSON object body. Empty or malformed bodies
// yield an empty record; command endpoints tolerate both.
func decodeBody(r *http.Request) fixture.Record {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		return fixture.Record{}
	}
	return fixture.Record(payload)
}
