package server

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/remote"
)

// Router translates the HTTP surface onto control-API operations and, for
// /remote/{name} paths, onto the peer client. One instance serves one daemon.
type Router struct {
	mgr   *manager.Manager
	cfg   *config.Config
	peers *remote.Client

	mu      sync.Mutex
	servers config.Servers
}

func NewRouter(mgr *manager.Manager, cfg *config.Config, servers config.Servers) *Router {
	if servers == nil {
		servers = config.Servers{}
	}
	return &Router{
		mgr:     mgr,
		cfg:     cfg,
		peers:   remote.New(),
		servers: servers,
	}
}

// Handler builds the gin engine. /health and /metrics stay unauthenticated;
// everything else passes the token middleware when secure mode is on.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, okResp{OK: true}) })
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := g.Group("", r.authMiddleware())
	auth.GET("/list", r.handleList)
	// gin's tree refuses a static "create" next to the ":ref" param, so the
	// create path registers through the param route and filters on it.
	auth.POST("/process/:ref", r.handleCreate)
	auth.GET("/process/:ref/info", r.handleInfo)
	auth.GET("/process/:ref/env", r.handleEnv)
	auth.GET("/process/:ref/cstart", r.handleCStart)
	auth.GET("/process/:ref/logs/:stream", r.handleLogs)
	auth.POST("/process/:ref/action", r.handleAction)
	auth.POST("/process/:ref/rename", r.handleRename)
	auth.POST("/process/:ref/adjust", r.handleAdjust)
	auth.POST("/daemon/save", r.opHandler(api.OpSave))
	auth.POST("/daemon/restore", r.opHandler(api.OpRestore))
	auth.POST("/daemon/reset", r.opHandler(api.OpReset))
	auth.GET("/daemon/metrics", r.opHandler(api.OpMetrics))
	auth.GET("/daemon/servers", r.handleServers)
	auth.POST("/daemon/servers/add", r.handleServerAdd)
	auth.DELETE("/daemon/servers/:name", r.handleServerRemove)

	auth.GET("/remote/:name/list", r.forward(http.MethodGet, func(c *gin.Context) string { return "/list" }))
	auth.GET("/remote/:name/info/:ref", r.forward(http.MethodGet, func(c *gin.Context) string {
		return "/process/" + c.Param("ref") + "/info"
	}))
	auth.GET("/remote/:name/logs/:ref/:stream", r.forward(http.MethodGet, func(c *gin.Context) string {
		return "/process/" + c.Param("ref") + "/logs/" + c.Param("stream")
	}))
	auth.POST("/remote/:name/action/:ref", r.forward(http.MethodPost, func(c *gin.Context) string {
		return "/process/" + c.Param("ref") + "/action"
	}))
	auth.POST("/remote/:name/rename/:ref", r.forward(http.MethodPost, func(c *gin.Context) string {
		return "/process/" + c.Param("ref") + "/rename"
	}))
	auth.POST("/remote/:name/create", r.forward(http.MethodPost, func(c *gin.Context) string {
		return "/process/create"
	}))
	return g
}

// NewServer starts the control surface on addr.
func NewServer(addr string, router *Router) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (r *Router) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sec := r.cfg.Daemon.Web.Secure
		if sec.Enabled && c.GetHeader("token") != sec.Token {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func (r *Router) submit(c *gin.Context, req api.Request) (api.Response, bool) {
	resp, err := r.mgr.Submit(c.Request.Context(), req)
	if err != nil {
		c.JSON(httpStatus(err), errorResp{Error: err.Error()})
		return api.Response{}, false
	}
	return resp, true
}

func (r *Router) opHandler(op api.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := r.submit(c, api.Request{Op: op})
		if !ok {
			return
		}
		switch op {
		case api.OpMetrics:
			c.JSON(http.StatusOK, resp.Metrics)
		case api.OpSave, api.OpRestore:
			c.JSON(http.StatusOK, gin.H{"count": resp.Count})
		default:
			c.JSON(http.StatusOK, okResp{OK: true})
		}
	}
}

func (r *Router) handleList(c *gin.Context) {
	resp, ok := r.submit(c, api.Request{Op: api.OpList})
	if !ok {
		return
	}
	if resp.List == nil {
		resp.List = []api.RecordSummary{}
	}
	c.JSON(http.StatusOK, resp.List)
}

func (r *Router) handleCreate(c *gin.Context) {
	if c.Param("ref") != "create" {
		c.JSON(http.StatusNotFound, errorResp{Error: "unknown path"})
		return
	}
	var spec api.CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	resp, ok := r.submit(c, api.Request{Op: api.OpCreate, Create: spec})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": resp.IDs})
}

func (r *Router) handleInfo(c *gin.Context) {
	resp, ok := r.submit(c, api.Request{Op: api.OpInfo, Ref: api.Ref(c.Param("ref"))})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp.Detail)
}

func (r *Router) handleEnv(c *gin.Context) {
	resp, ok := r.submit(c, api.Request{Op: api.OpEnv, Ref: api.Ref(c.Param("ref"))})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp.Env)
}

func (r *Router) handleCStart(c *gin.Context) {
	resp, ok := r.submit(c, api.Request{Op: api.OpCStart, Ref: api.Ref(c.Param("ref"))})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": resp.Command})
}

func (r *Router) handleLogs(c *gin.Context) {
	stream := c.Param("stream")
	if stream != "out" && stream != "err" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "stream must be out or err"})
		return
	}
	lines := 0
	if v := c.Query("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid lines"})
			return
		}
		lines = n
	}
	resp, ok := r.submit(c, api.Request{Op: api.OpLogs, Ref: api.Ref(c.Param("ref")), Stream: stream, Lines: lines})
	if !ok {
		return
	}
	if resp.Lines == nil {
		resp.Lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"lines": resp.Lines})
}

func (r *Router) handleAction(c *gin.Context) {
	var body struct {
		Method string `json:"method"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Method == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "body must carry method"})
		return
	}
	if _, ok := r.submit(c, api.Request{Op: api.OpAction, Ref: api.Ref(c.Param("ref")), Method: body.Method}); !ok {
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRename(c *gin.Context) {
	b, err := io.ReadAll(io.LimitReader(c.Request.Body, 4096))
	if err != nil || len(b) == 0 {
		c.JSON(http.StatusBadRequest, errorResp{Error: "body must carry the new name"})
		return
	}
	if _, ok := r.submit(c, api.Request{Op: api.OpRename, Ref: api.Ref(c.Param("ref")), NewName: string(b)}); !ok {
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleAdjust(c *gin.Context) {
	var adj api.AdjustSpec
	if err := c.ShouldBindJSON(&adj); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if _, ok := r.submit(c, api.Request{Op: api.OpAdjust, Ref: api.Ref(c.Param("ref")), Adjust: adj}); !ok {
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleServers(c *gin.Context) {
	if r.agentRefuses(c) {
		return
	}
	r.mu.Lock()
	names := make([]string, 0, len(r.servers))
	for n := range r.servers {
		names = append(names, n)
	}
	r.mu.Unlock()
	c.JSON(http.StatusOK, names)
}

func (r *Router) handleServerAdd(c *gin.Context) {
	if r.agentRefuses(c) {
		return
	}
	var body struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" || body.Address == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name and address required"})
		return
	}
	r.mu.Lock()
	r.servers[body.Name] = config.Server{Address: body.Address, Token: body.Token}
	err := config.SaveServers(r.cfg.ServersPath(), r.servers)
	r.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleServerRemove(c *gin.Context) {
	if r.agentRefuses(c) {
		return
	}
	name := c.Param("name")
	r.mu.Lock()
	delete(r.servers, name)
	err := config.SaveServers(r.cfg.ServersPath(), r.servers)
	r.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

// forward proxies a request to the named peer and relays its response
// verbatim. An agent-role daemon refuses to forward.
func (r *Router) forward(method string, path func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.agentRefuses(c) {
			return
		}
		var body []byte
		if method == http.MethodPost {
			b, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
				return
			}
			body = b
		}
		name := c.Param("name")
		r.mu.Lock()
		srv, known := r.servers[name]
		r.mu.Unlock()
		if !known {
			c.JSON(http.StatusNotFound, errorResp{Error: "unknown server " + name})
			return
		}
		res, err := r.peers.Forward(c.Request.Context(), srv, method, path(c), body)
		if err != nil {
			c.JSON(httpStatus(err), errorResp{Error: err.Error()})
			return
		}
		ct := res.ContentType
		if ct == "" {
			ct = "application/json"
		}
		c.Data(res.Status, ct, res.Body)
	}
}

func (r *Router) agentRefuses(c *gin.Context) bool {
	if r.cfg.Role == config.RoleAgent {
		c.JSON(http.StatusForbidden, errorResp{Error: api.ErrForbiddenForAgent.Error()})
		return true
	}
	return false
}
