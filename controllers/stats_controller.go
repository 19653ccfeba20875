package controllers

import (
	"net/http"

	"github.com/otabeknarz/11tutors-backend/services"

	"github.com/gin-gonic/gin"
)

type StatsController struct {
	stats *services.StatsService
}

func NewStatsController(stats *services.StatsService) *StatsController {
	return &StatsController{stats: stats}
}

// Tutor - статистика преподавателя. Администратор может передать ?tutor_id=
// GET /api/stats/tutor?refresh=1
func (sc *StatsController) Tutor(c *gin.Context) {
	tutorID := c.GetString("user_id")
	if isAdmin(c) && c.Query("tutor_id") != "" {
		tutorID = c.Query("tutor_id")
	}

	ctx := c.Request.Context()
	if c.Query("refresh") != "" {
		sc.stats.Invalidate(ctx, tutorID)
	}
	stats, err := sc.stats.ForTutor(ctx, tutorID)
	if err != nil {
		respondError(c, err, "TutorStats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}
