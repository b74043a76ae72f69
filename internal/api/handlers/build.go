package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shipyardci/shipyard/internal/api/models"
	"github.com/shipyardci/shipyard/internal/orchestrator"
)

// BuildHandler serves the per-project build/status/abort/cleanup
// operations of the ingress contract (spec §4.E/§6).
type BuildHandler struct {
	ingress *orchestrator.Ingress
}

// NewBuildHandler creates a BuildHandler over ingress.
func NewBuildHandler(ingress *orchestrator.Ingress) *BuildHandler {
	return &BuildHandler{ingress: ingress}
}

func bindPayload(c *gin.Context) map[string]any {
	payload := map[string]any{}
	// A missing or empty body is not an error: some builds are triggered
	// with no payload at all and rely solely on unique_build_key defaults.
	_ = c.ShouldBindJSON(&payload)
	for k, v := range c.Request.URL.Query() {
		if _, exists := payload[k]; !exists && len(v) > 0 {
			payload[k] = v[0]
		}
	}
	return payload
}

// Submit handles POST <project>/<build endpoint>.
func (h *BuildHandler) Submit(projectName string, returnFields map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := bindPayload(c)

		result, err := h.ingress.Submit(projectName, payload, nil)
		if err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "unknown project"))
			return
		}

		data := gin.H{
			"build_id":     result.BuildID.String(),
			"socket_token": result.SocketToken,
			"queue_length": result.QueueLength,
		}
		// %status% in a submit-time return field is always "queued": a
		// build has not run a single command yet, whatever admission
		// state the request produced (spec §4.A).
		if extra := h.ingress.ResolveReturnFields(returnFields, payload, result.SocketToken, "queued"); extra != nil {
			for k, v := range extra {
				data[k] = v
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": result.State == orchestrator.StateBuilding,
			"state":   result.State,
			"message": submitMessage(result.State),
			"data":    data,
		})
	}
}

func submitMessage(state orchestrator.State) string {
	switch state {
	case orchestrator.StateBuilding:
		return "build queued"
	case orchestrator.StateMissing:
		return "payload is missing the configured unique build key"
	case orchestrator.StateAlreadyRunning:
		return "a build is already running for this project"
	case orchestrator.StateAlready:
		return "a build with this unique id is already queued or running"
	case orchestrator.StateFull:
		return "project queue is full"
	default:
		return string(state)
	}
}

// IsBuilding handles POST <project>/<is_building endpoint>.
func (h *BuildHandler) IsBuilding(projectName string, returnFields map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.ingress.Status(projectName)
		if err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "unknown project"))
			return
		}

		resp := gin.H{
			"isBuilding":  status.IsBuilding,
			"queueLength": status.QueueLength,
		}
		if status.Current != nil {
			resp["currentBuild"] = gin.H{
				"id":          status.Current.ID.String(),
				"status":      status.Current.Status,
				"currentStep": status.Current.CurrentStep,
				"totalSteps":  status.Current.TotalSteps,
				"socketToken": status.Current.SocketToken,
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Abort handles POST <project>/<abort endpoint>.
func (h *BuildHandler) Abort(projectName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := bindPayload(c)

		ps, err := h.ingress.Project(projectName)
		if err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "unknown project"))
			return
		}

		uniqueID := coerceQueryValue(payload[ps.Cfg.UniqueBuildKey])
		result, err := h.ingress.Abort(projectName, uniqueID)
		if err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "unknown project"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"state": result.State})
	}
}

// Cleanup handles POST <project>/<cleanup endpoint>. Cleanup has no
// server-side state to release: the queue and history already free
// themselves as builds complete, so this always reports success.
func (h *BuildHandler) Cleanup(projectName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := h.ingress.Project(projectName); err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "unknown project"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": orchestrator.StateSuccess})
	}
}

func coerceQueryValue(v any) string {
	s, _ := v.(string)
	return s
}
