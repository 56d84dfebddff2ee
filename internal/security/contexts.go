package security

import (
	"errors"
	"fmt"
	"log/slog"
	"media-gateway/internal/metrics"
	"media-gateway/internal/model"
	"net"
	"net/http"
	"sync"
)

var ErrContextClosed = errors.New("access control already done")

type contextAuth struct {
	userName string
	userUUID string
	access   Mask
}

func (a *contextAuth) record(decision Decision) {
	a.userName = decision.UserName
	a.userUUID = decision.UserUUID
	a.access = decision.Access
}

func codeLabel(code Code) string {
	if code == CodeNone {
		return "OK"
	}
	return string(code)
}

// RequestContext : decisions taken while serving one HTTP request. A denial
// writes the response and closes the context.
type RequestContext struct {
	writer    http.ResponseWriter
	logger    *slog.Logger
	validAPI  bool
	source    string
	ip        string
	operation string

	mu     sync.Mutex
	auth   contextAuth
	closed bool
}

func NewRequestContext(w http.ResponseWriter, r *http.Request, validAPI bool, logger *slog.Logger) *RequestContext {
	return &RequestContext{
		writer:    w,
		logger:    logger,
		validAPI:  validAPI,
		source:    "API",
		ip:        ClientIP(r),
		operation: r.Method + " " + r.URL.RequestURI(),
		auth:      contextAuth{userName: "-", userUUID: "-", access: NoAccess},
	}
}

// ClientIP : the first X-Forwarded-For hop, else the remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (c *RequestContext) ValidAPI() bool {
	return c.validAPI
}

func (c *RequestContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RequestContext) Process(decision Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.auth.record(decision)
	if c.closed {
		c.logger.Error("internal error: access control already done",
			slog.String("operation", c.operation),
			slog.String("code", string(decision.Code)),
			slog.Int("status", http.StatusInternalServerError))
		metrics.AccessDecisions.WithLabelValues(c.source, string(CodeContextClosed)).Inc()
		return ErrContextClosed
	}

	message, realm := Describe(decision.Code)
	status := HTTPStatus(decision.Code)
	metrics.AccessDecisions.WithLabelValues(c.source, codeLabel(decision.Code)).Inc()

	if decision.Code == CodeNone {
		c.logger.Debug(fmt.Sprintf("[%s]:%s: %s", decision.UserName, c.operation, message),
			slog.String("ip", c.ip), slog.String("access", string(decision.Access)))
		return nil
	}

	c.logger.Error(fmt.Sprintf("[%s]:%s: %s", decision.UserName, c.operation, message),
		slog.String("ip", c.ip), slog.String("code", string(decision.Code)), slog.Int("status", status))
	c.closed = true
	c.writer.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	c.writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.writer.WriteHeader(status)
	_, _ = c.writer.Write([]byte(message))
	return nil
}

func (c *RequestContext) View() model.ContextView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ContextView{Source: c.source, IP: c.ip, User: c.auth.userName, Access: string(c.auth.access)}
}

// ZoneContext : decisions taken by a storage zone on behalf of a requester.
type ZoneContext struct {
	logger *slog.Logger
	ip     string

	mu        sync.Mutex
	operation string
	auth      contextAuth
}

func NewZoneContext(user *User, operation string, ip string, logger *slog.Logger) *ZoneContext {
	auth := contextAuth{userName: "<anonymous>", userUUID: "-", access: NoAccess}
	if user != nil {
		auth.userName = user.Name
		auth.userUUID = user.UUID
	}
	if ip == "" {
		ip = "-"
	}
	return &ZoneContext{logger: logger, ip: ip, operation: operation, auth: auth}
}

func (c *ZoneContext) ValidAPI() bool {
	return true
}

func (c *ZoneContext) SetOperation(operation string) {
	c.mu.Lock()
	c.operation = operation
	c.mu.Unlock()
}

func (c *ZoneContext) Process(decision Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.auth.record(decision)
	message, _ := Describe(decision.Code)
	metrics.AccessDecisions.WithLabelValues("zone", codeLabel(decision.Code)).Inc()

	line := fmt.Sprintf("[%s]:%s: %s", decision.UserName, c.operation, message)
	if decision.Code != CodeNone {
		c.logger.Warn(line, slog.String("code", string(decision.Code)))
	} else {
		c.logger.Info(line, slog.String("access", string(decision.Access)))
	}
	return nil
}

func (c *ZoneContext) View() model.ContextView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ContextView{Source: "zone", IP: c.ip, User: c.auth.userName, Access: string(c.auth.access)}
}
