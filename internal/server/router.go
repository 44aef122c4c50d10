package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/procsched/internal/metrics"
	"github.com/loykin/procsched/internal/scheduler"
)

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	Create(ctx context.Context, n int) (scheduler.CreateResult, error)
	List() []scheduler.Row
	ListVerbose() []scheduler.Row
	Kill(ctx context.Context, id int) error
	Resume(id int) error
	ResumeAll() ([]int, error)
	SetFCFS() (int, error)
	SetRoundRobin(q time.Duration) error
	Mode() (scheduler.Mode, time.Duration)
	Interrupt()
}

// Router provides embeddable HTTP handlers for the scheduler.
// Endpoints:
//
//	GET    {basePath}/workers              query: verbose=1 (optional)
//	POST   {basePath}/workers              query: count=N
//	DELETE {basePath}/workers/:id
//	POST   {basePath}/workers/:id/resume
//	POST   {basePath}/workers/resume
//	GET    {basePath}/mode
//	PUT    {basePath}/mode                 body: {"mode":"rr","quantum":"2s"}
//	POST   {basePath}/interrupt
//	GET    {basePath}/metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctrl     Controller
	basePath string
}

func NewRouter(ctrl Controller, basePath string) *Router {
	return &Router{ctrl: ctrl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/workers", r.handleList)
	group.POST("/workers", r.handleCreate)
	group.POST("/workers/resume", r.handleResumeAll)
	group.DELETE("/workers/:id", r.handleKill)
	group.POST("/workers/:id/resume", r.handleResume)
	group.GET("/mode", r.handleGetMode)
	group.PUT("/mode", r.handleSetMode)
	group.POST("/interrupt", r.handleInterrupt)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer builds an http.Server for the router. The caller starts and stops it.
func NewServer(addr, basePath string, ctrl Controller) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ctrl, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type createResp struct {
	Created  []int    `json:"created"`
	Overflow  int      `json:"overflow"`
	Abandoned int      `json:"abandoned,omitempty"`
	Started   int      `json:"started,omitempty"`
	Failures  []string `json:"failures,omitempty"`
}

type resumeAllResp struct {
	Resumed int   `json:"resumed"`
	IDs     []int `json:"ids,omitempty"`
}

type modeReq struct {
	Mode    string `json:"mode"`
	Quantum string `json:"quantum"`
}

type modeResp struct {
	Mode    scheduler.Mode `json:"mode"`
	Quantum string         `json:"quantum,omitempty"`
	Started int            `json:"started,omitempty"`
}

func (r *Router) fail(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleList(c *gin.Context) {
	var rows []scheduler.Row
	if v, _ := strconv.ParseBool(c.Query("verbose")); v {
		rows = r.ctrl.ListVerbose()
	} else {
		rows = r.ctrl.List()
	}
	if rows == nil {
		rows = []scheduler.Row{}
	}
	writeJSON(c, http.StatusOK, rows)
}

func (r *Router) handleCreate(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil || n <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "count must be a positive integer"})
		return
	}
	res, err := r.ctrl.Create(c.Request.Context(), n)
	if err != nil {
		r.fail(c, err)
		return
	}
	out := createResp{Created: res.Created, Overflow: res.Overflow, Abandoned: res.Abandoned, Started: res.Started}
	if out.Created == nil {
		out.Created = []int{}
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	code := http.StatusCreated
	if len(res.Created) == 0 {
		code = http.StatusConflict
		if res.Overflow == 0 {
			code = http.StatusInternalServerError
		}
	}
	writeJSON(c, code, out)
}

func (r *Router) handleKill(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker id"})
		return
	}
	if err := r.ctrl.Kill(c.Request.Context(), id); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleResume(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker id"})
		return
	}
	if err := r.ctrl.Resume(id); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleResumeAll(c *gin.Context) {
	ids, err := r.ctrl.ResumeAll()
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resumeAllResp{Resumed: len(ids), IDs: ids})
}

func (r *Router) handleGetMode(c *gin.Context) {
	m, q := r.ctrl.Mode()
	resp := modeResp{Mode: m}
	if m == scheduler.ModeRoundRobin {
		resp.Quantum = q.String()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleSetMode(c *gin.Context) {
	var req modeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	m, err := scheduler.ParseMode(req.Mode)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if m == scheduler.ModeFCFS {
		started, err := r.ctrl.SetFCFS()
		if err != nil {
			r.fail(c, err)
			return
		}
		writeJSON(c, http.StatusOK, modeResp{Mode: m, Started: started})
		return
	}
	q, err := time.ParseDuration(req.Quantum)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid quantum: " + err.Error()})
		return
	}
	if err := r.ctrl.SetRoundRobin(q); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, modeResp{Mode: m, Quantum: q.String()})
}

func (r *Router) handleInterrupt(c *gin.Context) {
	r.ctrl.Interrupt()
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}
