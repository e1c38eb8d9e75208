package cascade

/*
   Copyright 2024 Tidemark Labs

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig tunes the introspection listener.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
}

// Server exposes graph introspection over HTTP: the DOT rendering of
// the node graph, per node execution counts and prometheus metrics.
//
//	GET /graph
//	GET /nodes/:name/executions
//	GET /metrics
type Server struct {
	graph  *Graph
	http   *http.Server
	router *httprouter.Router
}

// NewServer creates an introspection server for the given graph.
func NewServer(config ServerConfig, g *Graph) (s *Server) {
	s = &Server{}
	s.graph = g

	s.router = httprouter.New()
	s.router.GET("/graph", s.handleGraph)
	s.router.GET("/nodes/:name/executions", s.handleExecutions)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 5 * time.Second
	}

	s.http = &http.Server{}
	s.http.Addr = config.Addr
	s.http.Handler = s.router
	s.http.ReadHeaderTimeout = config.ReadHeaderTimeout
	s.http.WriteTimeout = config.WriteTimeout
	return s
}

// Start serving. Blocks until Close is called or the listener fails.
func (s *Server) Start() (err error) {
	if err = s.http.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close the server, waiting for in-flight requests up to the context
// deadline.
func (s *Server) Close(ctx context.Context) (err error) {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for embedding in other servers.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(s.graph.DotGraph()))
}

func (s *Server) handleExecutions(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")

	count, err := s.graph.ExecutionCount(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"node":       name,
		"executions": count,
	})
}
