package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/botpass/botpass/agentmod"
	"github.com/botpass/botpass/agentmod/actionstore"
	"github.com/botpass/botpass/agentmod/ratelimit"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
)

type okResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail"`
}

type errorResponse struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

func failure(code, message string, detail any) errorResponse {
	return errorResponse{
		Error: errorBody{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
	}
}

type admitRequest struct {
	ActorID string `json:"actor_id"`
	EventID string `json:"event_id"`
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
	Context string `json:"context,omitempty"`
}

type contextRequest struct {
	Context string `json:"context"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) newEcho(reg prometheus.Registerer) *echo.Echo {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "warden",
		Registerer: reg,
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)
	e.GET("/metrics", echoprometheus.NewHandler())

	e.POST("/v1/admit", s.HandleAdmit)
	e.PUT("/v1/events/:id/context", s.HandleSetEventContext)

	admin := e.Group("/admin", s.requireAdmin)
	admin.GET("/actors/:id", s.HandleActorStatus)
	admin.POST("/actors/:id/reset", s.HandleActorReset)
	admin.GET("/actions", s.HandleListActions)
	admin.GET("/risk", s.HandleRiskOverview)
	return e
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= 500 {
		s.logger.Warn("warden-http-internal-error", "err", err)
	}
	errCode := "internal_error"
	if code < 500 {
		errCode = strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_")
	}
	if err := c.JSON(code, failure(errCode, msg, nil)); err != nil {
		s.logger.Error("writing error response", "err", err)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.adminToken == "" {
			return next(c)
		}
		hdr := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(hdr, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			return c.JSON(http.StatusUnauthorized, failure("unauthorized", "admin token required", nil))
		}
		return next(c)
	}
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

func (s *Server) HandleAdmit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failure("invalid_request", "invalid body", nil))
	}
	status, body := s.admit(c.Request().Context(), req)
	return c.JSON(status, body)
}

// Runs the admission check and renders the result as a response envelope.
func (s *Server) admit(ctx context.Context, req admitRequest) (int, any) {
	act, err := ratelimit.ParseAction(req.Action)
	if err != nil {
		return http.StatusBadRequest, failure("invalid_request", err.Error(), nil)
	}
	err = s.engine.Admit(ctx, agentmod.Action{
		ActorID: req.ActorID,
		EventID: req.EventID,
		Type:    act,
		Content: req.Content,
		Context: req.Context,
	})
	if err == nil {
		return http.StatusOK, okResponse{OK: true}
	}
	if rej, ok := agentmod.AsRejection(err); ok {
		var detail any
		if len(rej.Detail) > 0 {
			detail = rej.Detail
		}
		return rej.Status, failure(string(rej.Code), rej.Message, detail)
	}
	return s.internalError(err)
}

func (s *Server) internalError(err error) (int, any) {
	switch {
	case errors.Is(err, agentmod.ErrInvalidAction), errors.Is(err, ratelimit.ErrUnknownAction):
		return http.StatusBadRequest, failure("invalid_request", err.Error(), nil)
	case errors.Is(err, agentmod.ErrStoreUnavailable):
		s.logger.Error("moderation store unavailable", "err", err)
		return http.StatusServiceUnavailable, failure("store_unavailable", "moderation state unavailable, try again later", nil)
	}
	s.logger.Error("unexpected error", "err", err)
	return http.StatusInternalServerError, failure("internal_error", "internal error", nil)
}

func (s *Server) HandleSetEventContext(c echo.Context) error {
	var req contextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failure("invalid_request", "invalid body", nil))
	}
	if err := s.engine.SetEventContext(c.Request().Context(), c.Param("id"), req.Context); err != nil {
		return c.JSON(s.internalError(err))
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

type actorView struct {
	*agentmod.ActorStatus
	Actions []actionstore.Record `json:"actions"`
}

func (s *Server) HandleActorStatus(c echo.Context) error {
	ctx := c.Request().Context()
	actorID := c.Param("id")
	st, err := s.engine.ActorStatus(ctx, actorID)
	if err != nil {
		return c.JSON(s.internalError(err))
	}
	recs, err := s.actions.ListActions(ctx, actionstore.ListQuery{ActorID: actorID, Limit: 20})
	if err != nil {
		return c.JSON(s.internalError(err))
	}
	return c.JSON(http.StatusOK, okResponse{OK: true, Data: actorView{ActorStatus: st, Actions: recs}})
}

func (s *Server) HandleActorReset(c echo.Context) error {
	if err := s.engine.ResetActor(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(s.internalError(err))
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) HandleListActions(c echo.Context) error {
	q := actionstore.ListQuery{ActorID: c.QueryParam("actor_id")}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return c.JSON(http.StatusBadRequest, failure("invalid_request", "limit must be between 1 and 500", nil))
		}
		q.Limit = n
	}
	recs, err := s.actions.ListActions(c.Request().Context(), q)
	if err != nil {
		return c.JSON(s.internalError(err))
	}
	return c.JSON(http.StatusOK, okResponse{OK: true, Data: recs})
}

type riskOverview struct {
	Warnings          int64 `json:"warnings"`
	Throttles         int64 `json:"throttles"`
	SuspendRequests   int64 `json:"suspend_requests"`
	HighRiskIncidents int64 `json:"high_risk_incidents"`
}

func (s *Server) HandleRiskOverview(c echo.Context) error {
	ctx := c.Request().Context()
	var out riskOverview
	for _, kc := range []struct {
		kind actionstore.Kind
		dst  *int64
	}{
		{actionstore.KindWarn, &out.Warnings},
		{actionstore.KindThrottle, &out.Throttles},
		{actionstore.KindSuspendRequest, &out.SuspendRequests},
	} {
		n, err := s.actions.CountActions(ctx, kc.kind)
		if err != nil {
			return c.JSON(s.internalError(err))
		}
		*kc.dst = n
	}
	out.HighRiskIncidents = out.Throttles + out.SuspendRequests
	return c.JSON(http.StatusOK, okResponse{OK: true, Data: out})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
