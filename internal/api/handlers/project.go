package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

type ProjectHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewProjectHandler(db *gorm.DB, logger *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		db:     db,
		logger: logger,
	}
}

// projectInput is the writable part of a project. Nil fields are left unchanged on update.
type projectInput struct {
	Name           *string               `json:"name"`
	StoreURL       *string               `json:"store_url"`
	ConsumerKey    *string               `json:"consumer_key"`
	ConsumerSecret *string               `json:"consumer_secret"`
	ProductsTable  *string               `json:"products_table"`
	SyncSchedule   *string               `json:"sync_schedule"`
	Status         *models.ProjectStatus `json:"status"`
}

func (in projectInput) apply(p *models.Project) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.Name, in.Name)
	set(&p.StoreURL, in.StoreURL)
	set(&p.ConsumerKey, in.ConsumerKey)
	set(&p.ConsumerSecret, in.ConsumerSecret)
	set(&p.ProductsTable, in.ProductsTable)
	set(&p.SyncSchedule, in.SyncSchedule)
	if in.Status != nil {
		p.Status = *in.Status
	}
	p.StoreURL = strings.TrimRight(p.StoreURL, "/")
}

func validateProject(p *models.Project) error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if !strings.HasPrefix(p.StoreURL, "http://") && !strings.HasPrefix(p.StoreURL, "https://") {
		return errors.New("store_url must be an http(s) url")
	}
	if p.ProductsTable != "" {
		if err := database.ValidateTableName(p.ProductsTable); err != nil {
			return err
		}
	}
	if p.SyncSchedule != "" {
		if _, err := cron.ParseStandard(p.SyncSchedule); err != nil {
			return errors.New("sync_schedule is not a valid cron expression")
		}
	}
	switch p.Status {
	case "", models.ProjectStatusActive, models.ProjectStatusInactive:
	default:
		return errors.New("status must be ACTIVE or INACTIVE")
	}
	return nil
}

// redacted hides the consumer secret from responses.
func redacted(p models.Project) models.Project {
	if p.ConsumerSecret != "" {
		p.ConsumerSecret = "********"
	}
	return p
}

func (h *ProjectHandler) List(c *gin.Context) {
	var projects []models.Project

	if err := h.db.Order("created_at").Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
		return
	}

	for i := range projects {
		projects[i] = redacted(projects[i])
	}
	c.JSON(http.StatusOK, gin.H{"data": projects})
}

func (h *ProjectHandler) load(c *gin.Context) (*models.Project, bool) {
	var project models.Project
	if err := h.db.First(&project, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return nil, false
	}
	return &project, true
}

func (h *ProjectHandler) Get(c *gin.Context) {
	project, ok := h.load(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": redacted(*project)})
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var in projectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project := models.Project{Status: models.ProjectStatusActive}
	in.apply(&project)
	if err := validateProject(&project); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Create(&project).Error; err != nil {
		h.logger.Error("Failed to create project: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	h.logger.Info("Created project %s (%s)", project.ID, project.StoreURL)
	c.JSON(http.StatusCreated, gin.H{"data": redacted(project)})
}

func (h *ProjectHandler) Update(c *gin.Context) {
	project, ok := h.load(c)
	if !ok {
		return
	}

	var in projectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.apply(project)
	if err := validateProject(project); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Save(project).Error; err != nil {
		h.logger.Error("Failed to update project %s: %v", project.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": redacted(*project)})
}

// Delete removes the project only. Its mirror rows stay in the products table.
func (h *ProjectHandler) Delete(c *gin.Context) {
	res := h.db.Delete(&models.Project{}, "id = ?", c.Param("id"))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
