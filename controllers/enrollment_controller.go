package controllers

import (
	"net/http"

	"github.com/otabeknarz/11tutors-backend/services"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	enrollments *services.EnrollmentService
}

func NewEnrollmentController(enrollments *services.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{enrollments: enrollments}
}

// GET /api/courses/enrollments/me
func (ec *EnrollmentController) Mine(c *gin.Context) {
	list, err := ec.enrollments.ListForStudent(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err, "MyEnrollments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}
