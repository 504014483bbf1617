package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go-psyche/internal/belief"
	"go-psyche/internal/config"
	"go-psyche/internal/heartbeat"
	"go-psyche/internal/memory"
)

// Deps carries everything the handlers reach into. The API is a machine
// boundary for an external reasoner, not a human-facing surface.
type Deps struct {
	DB         *gorm.DB
	Store      *memory.Store
	Recall     *memory.RecallEngine
	Gate       *belief.Gate
	Graph      *memory.Graph
	Trust      *memory.TrustEngine
	Decisions  *heartbeat.Decisions
	Drives     *heartbeat.DriveEngine
	Terminator *heartbeat.Terminator
	Settings   *config.Settings
	Embedder   memory.Embedder
	Segmenter  *memory.Segmenter
}

// GET /health
func healthHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Embedder.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "embedder": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type createMemoryRequest struct {
	Kind       string           `json:"kind" binding:"required"`
	Content    string           `json:"content" binding:"required"`
	Importance float64          `json:"importance"`
	Trust      *float64         `json:"trust"`
	DecayRate  float64          `json:"decay_rate"`
	Working    bool             `json:"working"`
	TTLSeconds int              `json:"ttl_seconds"`
	Extension  memory.Extension `json:"extension"`
}

// POST /memories
func createMemoryHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		params := memory.CreateParams{
			Kind:       memory.Kind(req.Kind),
			Content:    req.Content,
			Importance: req.Importance,
			Trust:      req.Trust,
			DecayRate:  req.DecayRate,
			Working:    req.Working,
			Extension:  req.Extension,
		}
		if req.TTLSeconds > 0 {
			params.TTL = time.Duration(req.TTLSeconds) * time.Second
		}

		id, err := deps.Store.Create(c.Request.Context(), params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// GET /memories/:id
func getMemoryHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := deps.Store.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, memory.ErrMemoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

type linkRequest struct {
	FromID   string  `json:"from_id" binding:"required"`
	ToID     string  `json:"to_id" binding:"required"`
	Relation string  `json:"relation" binding:"required"`
	Weight   float64 `json:"weight"`
}

// POST /edges
func linkHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req linkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Weight <= 0 {
			req.Weight = 1.0
		}

		err := deps.Graph.Link(c.Request.Context(), req.FromID, req.ToID, memory.Relation(req.Relation), req.Weight)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Edges change what the target's trust should be; resync both ends
		for _, id := range []string{req.FromID, req.ToID} {
			if _, serr := deps.Trust.Sync(c.Request.Context(), id); serr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": serr.Error()})
				return
			}
		}
		c.JSON(http.StatusCreated, gin.H{"linked": true})
	}
}

// POST /memories/:id/trust/sync
func trustSyncHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		trust, err := deps.Trust.Sync(c.Request.Context(), c.Param("id"))
		if errors.Is(err, memory.ErrMemoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trust": trust})
	}
}

type recallRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// POST /recall
func recallHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Limit <= 0 {
			req.Limit = 10
		}

		results, err := deps.Recall.Recall(c.Request.Context(), req.Query, req.Limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

type createBeliefRequest struct {
	Content   string  `json:"content" binding:"required"`
	Category  string  `json:"category" binding:"required"`
	Stability float64 `json:"stability"`
}

// POST /beliefs
func createBeliefHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBeliefRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		b, err := deps.Gate.CreateBelief(c.Request.Context(), req.Content, req.Category, req.Stability)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, b)
	}
}

type summaryRequest struct {
	Summary string `json:"summary" binding:"required"`
}

// PUT /episodes/:id/summary
func setEpisodeSummaryHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req summaryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := deps.Segmenter.SetSummary(c.Request.Context(), c.Param("id"), req.Summary); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summarized": true})
	}
}

type createGoalRequest struct {
	Title string `json:"title" binding:"required"`
}

// POST /goals
func createGoalHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createGoalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		goal, err := deps.Gate.CreateGoal(c.Request.Context(), req.Title)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, goal)
	}
}

// GET /goals
func listGoalsHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		goals, err := deps.Gate.OpenGoals(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"goals": goals})
	}
}

type closeGoalRequest struct {
	Status string `json:"status" binding:"required"`
}

// POST /goals/:id/close
func closeGoalHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closeGoalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := deps.Gate.CloseGoal(c.Request.Context(), c.Param("id"), req.Status)
		if errors.Is(err, belief.ErrGoalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "goal not found"})
			return
		}
		if errors.Is(err, belief.ErrGoalClosed) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"closed": true})
	}
}

type exploreRequest struct {
	GoalID string `json:"goal_id" binding:"required"`
}

// POST /beliefs/:id/explore
func exploreBeliefHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exploreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cycle, err := currentCycle(c, deps)
		if err != nil {
			return
		}
		err = deps.Gate.BeginExploration(c.Request.Context(), c.Param("id"), req.GoalID, cycle)
		if errors.Is(err, belief.ErrBeliefNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "belief not found"})
			return
		}
		if errors.Is(err, belief.ErrGoalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "goal not found"})
			return
		}
		if errors.Is(err, belief.ErrGoalClosed) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exploring": true})
	}
}

type effortRequest struct {
	Kind        string   `json:"kind" binding:"required"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// POST /beliefs/:id/effort
func recordEffortHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req effortRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := deps.Gate.RecordEffort(c.Request.Context(), c.Param("id"), belief.EffortKind(req.Kind), req.EvidenceIDs)
		if errors.Is(err, belief.ErrBeliefNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "belief not found"})
			return
		}
		if errors.Is(err, belief.ErrNotExploring) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recorded": true})
	}
}

type attemptRequest struct {
	Content string `json:"content" binding:"required"`
}

// POST /beliefs/:id/attempt
func attemptHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req attemptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cycle, err := currentCycle(c, deps)
		if err != nil {
			return
		}
		result, err := deps.Gate.Attempt(c.Request.Context(), c.Param("id"), req.Content, cycle)
		if errors.Is(err, belief.ErrBeliefNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "belief not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type answerAction struct {
	Action   string `json:"action" binding:"required"`
	Content  string `json:"content"`
	TargetID string `json:"target_id"`
}

type answerAffect struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

type answerRequest struct {
	Actions []answerAction `json:"actions" binding:"required,min=1"`
	Affect  *answerAffect  `json:"affect"`
}

// POST /decisions/:id/answer
func answerDecisionHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req answerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		answer := heartbeat.DecisionAnswer{}
		for _, a := range req.Actions {
			answer.Actions = append(answer.Actions, heartbeat.DecisionAction{
				Action:   heartbeat.ActionType(a.Action),
				Content:  a.Content,
				TargetID: a.TargetID,
			})
		}
		if req.Affect != nil {
			answer.Affect = &heartbeat.Affect{Valence: req.Affect.Valence, Arousal: req.Affect.Arousal}
		}
		if err := deps.Decisions.Answer(c.Request.Context(), c.Param("id"), answer); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"answered": true})
	}
}

// GET /status
func statusHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var st heartbeat.State
		if err := deps.DB.WithContext(c.Request.Context()).First(&st, "id = ?", 1).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		drives, err := deps.Drives.All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		pending, err := deps.Decisions.PendingCount(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"state":             st,
			"drives":            drives,
			"pending_decisions": pending,
		})
	}
}

type settingRequest struct {
	Value string `json:"value" binding:"required"`
}

// PUT /settings/:key
func putSettingHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := deps.Settings.Set(c.Request.Context(), c.Param("key"), req.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": req.Value})
	}
}

// GET /settings/:key
func getSettingHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		value := deps.Settings.GetString(c.Request.Context(), c.Param("key"), "")
		if value == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
	}
}

type terminateRequest struct {
	LastWill string `json:"last_will" binding:"required"`
}

// POST /terminate
func terminateHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req terminateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := deps.Terminator.Terminate(c.Request.Context(), req.LastWill)
		if errors.Is(err, heartbeat.ErrTerminationDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, heartbeat.ErrTerminated) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"terminated": true})
	}
}

// currentCycle reads the scheduler clock, writing the error response itself
// on failure
func currentCycle(c *gin.Context, deps *Deps) (int64, error) {
	var st heartbeat.State
	if err := deps.DB.WithContext(c.Request.Context()).First(&st, "id = ?", 1).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return 0, err
	}
	return st.CycleCount, nil
}
