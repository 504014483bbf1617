package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter wires the machine-facing API. Every route serves the external
// reasoner or an operator; there is no browser surface.
func SetupRouter(deps *Deps) *gin.Engine {
	r := gin.Default()

	r.GET("/health", healthHandler(deps))
	r.GET("/status", statusHandler(deps))

	r.POST("/memories", createMemoryHandler(deps))
	r.GET("/memories/:id", getMemoryHandler(deps))
	r.POST("/recall", recallHandler(deps))
	r.POST("/edges", linkHandler(deps))
	r.POST("/memories/:id/trust/sync", trustSyncHandler(deps))
	r.PUT("/episodes/:id/summary", setEpisodeSummaryHandler(deps))

	r.POST("/goals", createGoalHandler(deps))
	r.GET("/goals", listGoalsHandler(deps))
	r.POST("/goals/:id/close", closeGoalHandler(deps))

	r.POST("/beliefs", createBeliefHandler(deps))
	r.POST("/beliefs/:id/explore", exploreBeliefHandler(deps))
	r.POST("/beliefs/:id/effort", recordEffortHandler(deps))
	r.POST("/beliefs/:id/attempt", attemptHandler(deps))

	r.POST("/decisions/:id/answer", answerDecisionHandler(deps))

	r.GET("/settings/:key", getSettingHandler(deps))
	r.PUT("/settings/:key", putSettingHandler(deps))

	r.POST("/terminate", terminateHandler(deps))

	return r
}
