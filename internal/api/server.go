package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentCraft/internal/catalog"
	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/observability/metrics"
	"AgentCraft/internal/orchestrator"
	"AgentCraft/internal/task"
	"AgentCraft/internal/workflow"
)

// Server 负责暴露 REST 接口，供外部提交部署任务并查询智能体状态。
type Server struct {
	addr    string
	manager *orchestrator.Manager
	tasks   *task.Service
	catalog *catalog.Cache
	metrics *metrics.Collector
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, manager *orchestrator.Manager, tasks *task.Service, cat *catalog.Cache, collector *metrics.Collector) *Server {
	return &Server{
		addr:    addr,
		manager: manager,
		tasks:   tasks,
		catalog: cat,
		metrics: collector,
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", s.instrument("agents", s.handleAgents))
	mux.HandleFunc("/api/v1/agents/", s.instrument("agent", s.handleAgentByID))
	mux.HandleFunc("/api/v1/tasks", s.instrument("tasks", s.handleTasks))
	mux.HandleFunc("/api/v1/tasks/stats", s.instrument("task_stats", s.handleTaskStats))
	mux.HandleFunc("/api/v1/tasks/", s.instrument("task", s.handleTaskByID))
	mux.HandleFunc("/api/v1/tools", s.instrument("tools", s.handleTools))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleDeployAgent(w, r)
	case http.MethodGet:
		s.handleListAgents(w, r)
	default:
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET/POST"), http.StatusMethodNotAllowed)
	}
}

// handleDeployAgent 同步部署一个以工作流描述的智能体。
func (s *Server) handleDeployAgent(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "部署管理器未初始化"), http.StatusServiceUnavailable)
		return
	}
	var wf workflow.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, xerrors.New(xerrors.CodeValidation, "请求体解析失败"), http.StatusBadRequest)
		return
	}
	record, err := s.manager.Deploy(r.Context(), &wf)
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "部署管理器未初始化"), http.StatusServiceUnavailable)
		return
	}
	views, err := s.manager.List(r.Context())
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if agentID == "" || strings.Contains(agentID, "/") {
		writeError(w, xerrors.New(xerrors.CodeValidation, "无效的智能体 ID"), http.StatusBadRequest)
		return
	}
	if s.manager == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "部署管理器未初始化"), http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.manager.Get(r.Context(), agentID)
		if err != nil {
			writeErrorAuto(w, err)
			return
		}
		if view == nil {
			writeError(w, orchestrator.ErrAgentNotFound, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.manager.Delete(r.Context(), agentID); err != nil {
			writeErrorAuto(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET/DELETE"), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET/POST"), http.StatusMethodNotAllowed)
	}
}

// handleSubmitTask 提交一个自然语言任务，立即返回 created 状态的任务。
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "任务服务未初始化"), http.StatusServiceUnavailable)
		return
	}
	var req task.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeValidation, "请求体解析失败"), http.StatusBadRequest)
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "任务服务未初始化"), http.StatusServiceUnavailable)
		return
	}
	opts := listOptionsFromQuery(r)
	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET"), http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "任务服务未初始化"), http.StatusServiceUnavailable)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET"), http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeError(w, xerrors.New(xerrors.CodeValidation, "无效的任务 ID"), http.StatusBadRequest)
		return
	}
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "任务服务未初始化"), http.StatusServiceUnavailable)
		return
	}
	result, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		writeErrorAuto(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTools 返回当前能力目录的快照。
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, xerrors.New(xerrors.CodeValidation, "仅支持 GET"), http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, xerrors.New(xerrors.CodeNotInitialized, "能力目录未初始化"), http.StatusServiceUnavailable)
		return
	}
	index := s.catalog.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools":    index.ToolNames(),
		"built_at": index.BuiltAt(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument 包装处理器以记录 HTTP 指标。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.ObserveHTTP(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func listOptionsFromQuery(r *http.Request) []task.ListOption {
	var opts []task.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]task.Status, 0, 4)
		for _, piece := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(piece)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("agent_id"); raw != "" {
		opts = append(opts, task.WithAgentID(raw))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	return opts
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error, status int) {
	code := xerrors.CodeOf(err)
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: err.Error(),
	}})
}

// writeErrorAuto 根据统一错误码推导 HTTP 状态码。
func writeErrorAuto(w http.ResponseWriter, err error) {
	writeError(w, err, statusForError(err))
}

func statusForError(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeValidation, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, orchestrator.CodeAgentNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
