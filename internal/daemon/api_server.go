package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"curator/internal/api"
	"curator/internal/catalog"
	"curator/internal/clustering"
	"curator/internal/logging"
	"curator/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/clusters", srv.handleClusterList)
	mux.HandleFunc("POST /api/clusters", srv.handleClusterCreate)
	mux.HandleFunc("GET /api/clusters/{id}", srv.handleClusterGet)
	mux.HandleFunc("GET /api/search", srv.handleSearch)
	mux.HandleFunc("POST /api/clusters/{id}/accept", srv.handleAccept)
	mux.HandleFunc("POST /api/clusters/{id}/reject", srv.handleReject)
	mux.HandleFunc("POST /api/clusters/{id}/canonicalize", srv.handleCanonicalize)
	mux.HandleFunc("POST /api/clusters/{id}/unlock", srv.handleUnlock)
	mux.HandleFunc("GET /api/library", srv.handleLibrary)
	mux.HandleFunc("POST /api/scan", srv.handleScan)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleClusterList(w http.ResponseWriter, r *http.Request) {
	var statuses []catalog.MatchStatus
	for _, value := range r.URL.Query()["status"] {
		status, ok := catalog.ParseMatchStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	clusters, err := s.daemon.clustering.ListClusters(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	views := make([]api.ClusterView, 0, len(clusters))
	for _, cluster := range clusters {
		views = append(views, clusterView(cluster))
	}
	s.writeJSON(w, http.StatusOK, api.ClusterListResponse{Clusters: views})
}

func (s *apiServer) handleClusterCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateClusterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sourceType := strings.TrimSpace(req.SourceType)
	if sourceType == "" {
		sourceType = s.daemon.source.SourceType()
	}
	cluster, err := s.daemon.clustering.CreateCluster(r.Context(), clustering.Hypothesis{
		SourceType:     sourceType,
		SourceID:       req.SourceID,
		SuggestedTitle: req.SuggestedTitle,
		Confidence:     req.Confidence,
	}, req.CandidateIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, clusterView(cluster))
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}
	results, err := s.daemon.source.Search(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, services.Wrap(services.ErrExternal, "api", "search", "source search failed", err))
		return
	}
	resp := api.SearchResponse{SourceType: s.daemon.source.SourceType()}
	for _, result := range results {
		resp.Results = append(resp.Results, api.SearchResult{ID: result.ID, Title: result.Title})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleClusterGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clusterID(w, r)
	if !ok {
		return
	}
	cluster, err := s.daemon.clustering.GetCluster(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clusterView(cluster))
}

func (s *apiServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clusterID(w, r)
	if !ok {
		return
	}
	var req api.AcceptRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.daemon.decision.Accept(r.Context(), id, req.CustomTitle); err != nil {
		s.writeServiceError(w, err)
		return
	}
	cluster, err := s.daemon.clustering.GetCluster(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clusterView(cluster))
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clusterID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.decision.Reject(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	cluster, err := s.daemon.clustering.GetCluster(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clusterView(cluster))
}

func (s *apiServer) handleCanonicalize(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clusterID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.workflow.Enqueue(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CanonicalizeResponse{Accepted: true})
}

func (s *apiServer) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clusterID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.workflow.Unlock(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	cluster, err := s.daemon.clustering.GetCluster(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clusterView(cluster))
}

func (s *apiServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.feed.Entries(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LibraryResponse{Entries: entries})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req api.ScanRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.daemon.Scan(r.Context(), strings.TrimSpace(req.Root))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScanResponse{Summary: summary})
}

func (s *apiServer) clusterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid cluster id")
		return 0, false
	}
	return id, true
}

// decodeBody tolerates an empty body; several POST endpoints take no
// parameters.
func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", err)
}

func clusterView(cluster *clustering.Cluster) api.ClusterView {
	view := api.ClusterView{
		ID:           cluster.Match.ID,
		SourceType:   cluster.Match.SourceType,
		SourceID:     cluster.Match.SourceID,
		DisplayTitle: cluster.Match.DisplayTitle(),
		Confidence:   cluster.Match.Confidence,
		Status:       string(cluster.Match.Status),
		WorkID:       cluster.Match.WorkID,
		Error:        cluster.Match.ErrorMessage,
	}
	for _, member := range cluster.Members {
		view.Members = append(view.Members, api.MemberView{
			ID:     member.ID,
			Path:   member.Path,
			Title:  member.HeuristicTitle,
			Status: string(member.Status),
		})
	}
	return view
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrConcurrent):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrExternal):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode api response", logging.Error(err))
	}
}
