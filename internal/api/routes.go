package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shipyardci/shipyard/internal/api/handlers"
	"github.com/shipyardci/shipyard/internal/api/middleware"
	"github.com/shipyardci/shipyard/internal/config"
)

// registerRoutes wires ops endpoints plus, per project, the dynamic
// build/is_building/abort/cleanup/socket/health endpoints from spec §6 —
// mirroring the original server's per-project route registration, where
// each project's paths and methods are read straight out of its own
// configuration block rather than hardcoded.
func (s *Server) registerRoutes() {
	healthHandler := handlers.NewHealthHandler()
	versionHandler := handlers.NewVersionHandler(s.cfg.Name)
	buildHandler := handlers.NewBuildHandler(s.ingress)
	socketHandler := handlers.NewSocketHandler(s.ingress, s.logger)

	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/health/live", healthHandler.GetLiveness)
	s.router.GET("/health/ready", healthHandler.GetReadiness)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/api/v1/version", versionHandler.GetVersion)

	for name, proj := range s.cfg.Projects {
		s.registerProjectRoutes(name, proj, buildHandler, socketHandler, healthHandler)
	}
}

func (s *Server) registerProjectRoutes(
	name string,
	proj config.ProjectConfig,
	build *handlers.BuildHandler,
	socket *handlers.SocketHandler,
	health *handlers.HealthHandler,
) {
	base := s.cfg.BasePath + proj.BaseEndpointPath
	policy := middleware.ResolveAuth(s.cfg.Auth, proj.Auth)
	auth := middleware.RequireAuth(policy)

	group := s.router.Group(base)
	group.Use(auth)

	group.POST(endpointOrDefault(proj.API.Build.Endpoint, "/build"), build.Submit(name, proj.API.Build.ReturnFields))
	group.POST(endpointOrDefault(proj.API.IsBuilding.Endpoint, "/is_building"), build.IsBuilding(name, proj.API.IsBuilding.ReturnFields))
	group.POST(endpointOrDefault(proj.API.Abort.Endpoint, "/abort"), build.Abort(name))
	group.POST(endpointOrDefault(proj.API.Cleanup.Endpoint, "/cleanup"), build.Cleanup(name))
	group.GET(endpointOrDefault(proj.API.Socket.Endpoint, "/socket"), socket.Subscribe(name))
	group.GET(endpointOrDefault(proj.API.Health.Endpoint, "/health"), health.ProjectHealth)

	s.logger.Info("registered project routes", "project", name, "base_path", base)
}

func endpointOrDefault(endpoint, fallback string) string {
	if endpoint == "" {
		return fallback
	}
	return endpoint
}
