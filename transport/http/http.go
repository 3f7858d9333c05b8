package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/transport/http/httpError"
)

// InitRequest is the body of POST /query
type InitRequest struct {
	Path      string         `json:"path"`
	SortField string         `json:"sortField"`
	Options   map[string]any `json:"options,omitempty"`
}

// SearchRequest is the body of PUT /query/search
type SearchRequest struct {
	SearchValue string `json:"searchValue"`
}

// CreateResponse is the body returned by POST /docs
type CreateResponse struct {
	ID string `json:"id"`
}

// Server serves one engine as a json api
type Server struct {
	engine   *pagestream.Engine
	logger   pagestream.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New returns a server for the engine. Routes:
// POST "/query" (InitRequest in request body), GET "/query"
// POST "/query/refresh", POST "/query/more", PUT "/query/search" (SearchRequest in request body)
// GET "/query/state", GET "/query/stream" (websocket of states)
// POST "/docs", GET/PUT/DELETE "/docs/{id}" (json object in request body)
func New(engine *pagestream.Engine, logger pagestream.Logger, mwares ...mux.MiddlewareFunc) *Server {
	s := &Server{
		engine:   engine,
		logger:   logger,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.router.Use(append([]mux.MiddlewareFunc{s.logRequests}, mwares...)...)
	s.route("/query", s.initHandler, http.MethodPost)
	s.route("/query", s.queryHandler, http.MethodGet)
	s.route("/query/refresh", s.refreshHandler, http.MethodPost)
	s.route("/query/more", s.loadMoreHandler, http.MethodPost)
	s.route("/query/search", s.searchHandler, http.MethodPut)
	s.route("/query/state", s.stateHandler, http.MethodGet)
	s.route("/query/stream", s.streamHandler, http.MethodGet)
	s.route("/docs", s.createHandler, http.MethodPost)
	s.route("/docs/{id}", s.getHandler, http.MethodGet)
	s.route("/docs/{id}", s.updateHandler, http.MethodPut)
	s.route("/docs/{id}", s.deleteHandler, http.MethodDelete)
	return s
}

// Handler returns the http handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) route(path string, handler http.HandlerFunc, method string) {
	s.logger.Debug(context.Background(), fmt.Sprintf("registered endpoint: %s %s", method, path), map[string]interface{}{})
	s.router.HandleFunc(path, handler).Methods(method)
}

func (s *Server) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request served", map[string]interface{}{
			"request.method": r.Method,
			"request.path":   r.URL.Path,
			"request.vars":   mux.Vars(r),
			"duration":       float64(time.Since(start).Microseconds()) / float64(1000),
		})
	})
}

func (s *Server) error(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(r.Context(), msg, err, map[string]interface{}{
		"request.method": r.Method,
		"request.path":   r.URL.Path,
		"request.vars":   mux.Vars(r),
	})
	httpError.Error(w, err)
}

func (s *Server) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	state := s.engine.State()
	json.NewEncoder(w).Encode(&state)
}

func (s *Server) initHandler(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, "failed to decode query", errors.Wrap(err, errors.Validation, "invalid request body"))
		return
	}
	var opts []pagestream.QueryOpt
	if len(req.Options) > 0 {
		opts = append(opts, pagestream.WithOptions(req.Options))
	}
	if err := s.engine.Init(r.Context(), req.Path, req.SortField, opts...); err != nil {
		s.error(w, r, "failed to initialize query", err)
		return
	}
	s.writeState(w)
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	query, ok := s.engine.Query()
	if !ok {
		s.error(w, r, "query not initialized", errors.New(errors.NotFound, "query is not initialized"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&query)
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Refresh(r.Context()); err != nil {
		s.error(w, r, "failed to refresh query", err)
		return
	}
	s.writeState(w)
}

func (s *Server) loadMoreHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.LoadMore(r.Context()); err != nil {
		s.error(w, r, "failed to load more", err)
		return
	}
	s.writeState(w)
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, "failed to decode search", errors.Wrap(err, errors.Validation, "invalid request body"))
		return
	}
	if err := s.engine.SetSearchValue(req.SearchValue); err != nil {
		s.error(w, r, "failed to set search value", err)
		return
	}
	s.writeState(w)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	s.writeState(w)
}

func (s *Server) createHandler(w http.ResponseWriter, r *http.Request) {
	var value map[string]any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.error(w, r, "failed to decode document", errors.Wrap(err, errors.Validation, "invalid request body"))
		return
	}
	id, err := s.engine.Create(r.Context(), value)
	if err != nil {
		s.error(w, r, "failed to create document", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(&CreateResponse{ID: id})
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.error(w, r, "failed to get document", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&record)
}

func (s *Server) updateHandler(w http.ResponseWriter, r *http.Request) {
	var value map[string]any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.error(w, r, "failed to decode document", errors.Wrap(err, errors.Validation, "invalid request body"))
		return
	}
	if err := s.engine.Update(r.Context(), mux.Vars(r)["id"], value); err != nil {
		s.error(w, r, "failed to update document", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.error(w, r, "failed to delete document", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
