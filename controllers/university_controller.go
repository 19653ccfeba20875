package controllers

import (
	"net/http"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UniversityController struct {
	db       *gorm.DB
	importer *services.UniversityImporter
}

func NewUniversityController(db *gorm.DB, importer *services.UniversityImporter) *UniversityController {
	return &UniversityController{db: db, importer: importer}
}

// List - справочник для анкеты
// GET /api/core/universities
func (uc *UniversityController) List(c *gin.Context) {
	var list []models.University
	q := uc.db.WithContext(c.Request.Context()).Order("global_rank IS NULL, global_rank, name")
	if country := c.Query("country"); country != "" {
		q = q.Where("country = ?", country)
	}
	if err := q.Find(&list).Error; err != nil {
		respondError(c, err, "ListUniversities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

// Import - ручной запуск импорта рейтинга
// POST /api/core/universities/import
func (uc *UniversityController) Import(c *gin.Context) {
	n, err := uc.importer.Import(c.Request.Context())
	if err != nil {
		respondError(c, err, "ImportUniversities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "imported": n})
}
