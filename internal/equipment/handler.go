package equipment

import (
	"fmt"
	"strings"
	"time"

	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EquipmentResponse struct {
	ID        uint   `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	SiteID    *uint  `json:"site_id"`
	SiteName  string `json:"site_name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreateEquipmentRequest struct {
	Name string `json:"name"`
}

type UpdateEquipmentRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

type AssignEquipmentRequest struct {
	SiteID uint   `json:"site_id"`
	Note   string `json:"note"`
}

type AssignmentResponse struct {
	ID          uint    `json:"id"`
	EquipmentID uint    `json:"equipment_id"`
	SiteID      uint    `json:"site_id"`
	SiteName    string  `json:"site_name"`
	AssignedAt  string  `json:"assigned_at"`
	ReleasedAt  *string `json:"released_at"`
	Note        string  `json:"note"`
}

func newEquipmentCode() string {
	return fmt.Sprintf("EKP-%s", strings.ToUpper(uuid.NewString()[:8]))
}

func toResponse(e *models.Equipment) EquipmentResponse {
	resp := EquipmentResponse{
		ID:        e.ID,
		Code:      e.Code,
		Name:      e.Name,
		Status:    string(e.Status),
		SiteID:    e.SiteID,
		CreatedAt: e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if e.Site != nil {
		resp.SiteName = e.Site.Name
	}
	return resp
}

// ----------------------------------------
// EKİPMAN CRUD
// ----------------------------------------

func CreateEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateEquipmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Ekipman adı boş olamaz")
		}

		equipment := models.Equipment{
			Code:   newEquipmentCode(),
			Name:   body.Name,
			Status: models.EquipmentStatusActive,
		}

		if err := database.DB.Create(&equipment).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ekipman oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(&equipment))
	}
}

func ListEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("Site")

		if status := c.Query("status"); status != "" {
			switch models.EquipmentStatus(status) {
			case models.EquipmentStatusActive, models.EquipmentStatusMaintenance, models.EquipmentStatusRetired:
				dbq = dbq.Where("status = ?", status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "status 'active', 'maintenance' veya 'retired' olmalı")
			}
		}
		if siteIDStr := c.Query("site_id"); siteIDStr != "" {
			var siteID uint
			if _, err := fmt.Sscan(siteIDStr, &siteID); err == nil && siteID > 0 {
				dbq = dbq.Where("site_id = ?", siteID)
			}
		}

		var equipments []models.Equipment
		if err := dbq.Order("name asc").Find(&equipments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ekipmanlar listelenemedi")
		}

		res := make([]EquipmentResponse, 0, len(equipments))
		for i := range equipments {
			res = append(res, toResponse(&equipments[i]))
		}

		return c.JSON(res)
	}
}

func UpdateEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var equipment models.Equipment
		if err := database.DB.First(&equipment, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ekipman bulunamadı")
		}

		var body UpdateEquipmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Ekipman adı boş olamaz")
			}
			equipment.Name = name
		}
		if body.Status != nil {
			switch models.EquipmentStatus(*body.Status) {
			case models.EquipmentStatusActive, models.EquipmentStatusMaintenance, models.EquipmentStatusRetired:
				equipment.Status = models.EquipmentStatus(*body.Status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "status 'active', 'maintenance' veya 'retired' olmalı")
			}
		}

		if err := database.DB.Save(&equipment).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ekipman güncellenemedi")
		}

		return c.JSON(toResponse(&equipment))
	}
}

// ----------------------------------------
// EKİPMAN ATAMA
// ----------------------------------------

// POST /api/admin/equipment/:id/assign
// Ekipmanı yeni şantiyeye taşır; açık atama varsa kapatılır.
func AssignEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var body AssignEquipmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}
		if body.SiteID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "site_id zorunlu")
		}

		var equipment models.Equipment
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&equipment, "id = ?", id).Error; err != nil {
				return fiber.NewError(fiber.StatusNotFound, "Ekipman bulunamadı")
			}
			if equipment.Status == models.EquipmentStatusRetired {
				return fiber.NewError(fiber.StatusConflict, "Hurdaya ayrılmış ekipman atanamaz")
			}

			var site models.Site
			if err := tx.First(&site, body.SiteID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Şantiye bulunamadı")
			}

			now := time.Now()

			// Açık atamayı kapat
			if err := tx.Model(&models.EquipmentAssignment{}).
				Where("equipment_id = ? AND released_at IS NULL", equipment.ID).
				Update("released_at", now).Error; err != nil {
				return err
			}

			assignment := models.EquipmentAssignment{
				EquipmentID: equipment.ID,
				SiteID:      body.SiteID,
				AssignedAt:  now,
				Note:        strings.TrimSpace(body.Note),
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}

			equipment.SiteID = &body.SiteID
			return tx.Model(&models.Equipment{}).
				Where("id = ?", equipment.ID).
				Update("site_id", body.SiteID).Error
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Ekipman atanamadı")
		}

		return c.JSON(toResponse(&equipment))
	}
}

// POST /api/admin/equipment/:id/release
// Ekipmanı depoya çeker: açık atama kapanır, site_id temizlenir.
func ReleaseEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var equipment models.Equipment
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&equipment, "id = ?", id).Error; err != nil {
				return fiber.NewError(fiber.StatusNotFound, "Ekipman bulunamadı")
			}

			now := time.Now()
			if err := tx.Model(&models.EquipmentAssignment{}).
				Where("equipment_id = ? AND released_at IS NULL", equipment.ID).
				Update("released_at", now).Error; err != nil {
				return err
			}

			equipment.SiteID = nil
			return tx.Model(&models.Equipment{}).
				Where("id = ?", equipment.ID).
				Update("site_id", nil).Error
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Ekipman serbest bırakılamadı")
		}

		return c.JSON(toResponse(&equipment))
	}
}

// GET /api/admin/equipment/:id/assignments
func ListAssignmentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var assignments []models.EquipmentAssignment
		if err := database.DB.Preload("Site").
			Where("equipment_id = ?", id).
			Order("assigned_at desc").
			Find(&assignments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Atamalar listelenemedi")
		}

		res := make([]AssignmentResponse, 0, len(assignments))
		for _, a := range assignments {
			var releasedAt *string
			if a.ReleasedAt != nil {
				formatted := a.ReleasedAt.Format("2006-01-02 15:04:05")
				releasedAt = &formatted
			}
			res = append(res, AssignmentResponse{
				ID:          a.ID,
				EquipmentID: a.EquipmentID,
				SiteID:      a.SiteID,
				SiteName:    a.Site.Name,
				AssignedAt:  a.AssignedAt.Format("2006-01-02 15:04:05"),
				ReleasedAt:  releasedAt,
				Note:        a.Note,
			})
		}

		return c.JSON(res)
	}
}
