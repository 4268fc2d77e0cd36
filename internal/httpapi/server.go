package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lookup_engine/internal/config"
	"lookup_engine/internal/engine"
	"lookup_engine/internal/logbus"
	"lookup_engine/internal/model"
	"lookup_engine/internal/notify"
	"lookup_engine/internal/store/sqlite"
	"lookup_engine/internal/ws"
)

type Options struct {
	Cfg    config.Config
	Bus    *logbus.Bus
	Store  *sqlite.Store
	Engine *engine.Engine
}

type Server struct {
	cfg    config.Config
	bus    *logbus.Bus
	store  *sqlite.Store
	engine *engine.Engine
	ws     *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:    opts.Cfg,
		bus:    opts.Bus,
		store:  opts.Store,
		engine: opts.Engine,
		ws:     ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/accounts", s.handleAccounts)
	api.HandleFunc("/api/v1/identifiers", s.handleIdentifiers)
	api.HandleFunc("/api/v1/results", s.handleResults)
	api.HandleFunc("/api/v1/engine/start", s.handleEngineStart)
	api.HandleFunc("/api/v1/engine/stop", s.handleEngineStop)
	api.HandleFunc("/api/v1/engine/state", s.handleEngineState)
	api.HandleFunc("/api/v1/engine/check", s.handleEngineCheck)
	api.HandleFunc("/api/v1/settings/email", s.handleEmailSettings)
	api.HandleFunc("/api/v1/settings/email/test", s.handleEmailTest)
	api.HandleFunc("/api/v1/settings/limits", s.handleLimitsSettings)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := s.store.ListAccounts(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		// token 不回传给前端
		for i := range accounts {
			if accounts[i].Token != "" {
				accounts[i].Token = "***"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": accounts})

	case http.MethodPost:
		var body struct {
			ID        string `json:"id,omitempty"`
			Label     string `json:"label,omitempty"`
			MSISDN    string `json:"msisdn"`
			Token     string `json:"token,omitempty"`
			UserAgent string `json:"userAgent,omitempty"`
			Proxy     string `json:"proxy,omitempty"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		msisdn, err := model.NormalizeIdentifier(body.MSISDN)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid msisdn: " + err.Error()})
			return
		}
		acc, err := s.store.UpsertAccount(r.Context(), model.Account{
			ID:        strings.TrimSpace(body.ID),
			Label:     strings.TrimSpace(body.Label),
			MSISDN:    msisdn,
			Token:     strings.TrimSpace(body.Token),
			UserAgent: strings.TrimSpace(body.UserAgent),
			Proxy:     strings.TrimSpace(body.Proxy),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		acc.Token = "***"
		writeJSON(w, http.StatusOK, map[string]any{"data": acc})

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
			return
		}
		if err := s.store.DeleteAccount(r.Context(), id); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleIdentifiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		n, err := s.store.CountPendingIdentifiers(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"pending": n}})

	case http.MethodPost:
		var body struct {
			Identifiers []string `json:"identifiers"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if len(body.Identifiers) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "identifiers is required"})
			return
		}

		type rejected struct {
			Value string `json:"value"`
			Error string `json:"error"`
		}
		var (
			normalized []string
			bad        []rejected
			seen       = make(map[string]struct{})
		)
		for _, raw := range body.Identifiers {
			v, err := model.NormalizeIdentifier(raw)
			if err != nil {
				bad = append(bad, rejected{Value: raw, Error: err.Error()})
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			normalized = append(normalized, v)
		}

		inserted, err := s.store.EnqueueIdentifiers(r.Context(), normalized)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if s.bus != nil {
			s.bus.Log("info", "标识已入队", map[string]any{
				"accepted": len(normalized),
				"inserted": inserted,
				"rejected": len(bad),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"accepted": len(normalized),
			"inserted": inserted,
			"rejected": bad,
		}})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	results, err := s.store.ListResults(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if err := s.engine.Start(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if err := s.engine.Stop(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEngineState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.State()})
}

func (s *Server) handleEngineCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body struct {
		Identifier string `json:"identifier"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	res, err := s.engine.CheckOnce(r.Context(), body.Identifier)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, model.ErrInvalidIdentifier) || errors.Is(err, model.ErrEmptyIdentifier) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func (s *Server) handleEmailSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, _, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		settings.AuthCode = ""
		writeJSON(w, http.StatusOK, map[string]any{"data": settings})

	case http.MethodPost:
		var body model.EmailSettings
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		saved, err := s.store.UpsertEmailSettings(r.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		saved.AuthCode = ""
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	settings, ok, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "email settings not configured"})
		return
	}
	err = notify.SendRunSummaryEmail(r.Context(), settings, notify.RunSummary{
		At: time.Now().UnixMilli(),
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLimitsSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, _, err := s.store.GetLimitsSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": settings})

	case http.MethodPost:
		var body model.LimitsSettings
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		saved, err := s.store.UpsertLimitsSettings(r.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if s.bus != nil {
			s.bus.Log("info", "限额设置已更新，下次启动生效", nil)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}
