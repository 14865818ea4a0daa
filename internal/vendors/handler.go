package vendors

import (
	"strings"
	"time"

	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type VendorResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

type CreateVendorRequest struct {
	Name    string  `json:"name"`
	Phone   *string `json:"phone"` // Opsiyonel
	Address string  `json:"address"`
}

type UpdateVendorRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type VendorPriceResponse struct {
	ID           uint    `json:"id"`
	VendorID     uint    `json:"vendor_id"`
	MaterialID   uint    `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Unit         string  `json:"unit"`
	UnitPrice    float64 `json:"unit_price"`
	ValidFrom    string  `json:"valid_from"`
}

type CreateVendorPriceRequest struct {
	MaterialID uint    `json:"material_id"`
	UnitPrice  float64 `json:"unit_price"`
	ValidFrom  string  `json:"valid_from"` // "2025-12-09"
}

func toResponse(v *models.Vendor) VendorResponse {
	return VendorResponse{
		ID:        v.ID,
		Name:      v.Name,
		Phone:     v.Phone,
		Address:   v.Address,
		CreatedAt: v.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// TEDARİKÇİ CRUD
// ----------------------------------------

func CreateVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateVendorRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Tedarikçi adı boş olamaz")
		}

		vendor := models.Vendor{
			Name:    body.Name,
			Address: body.Address,
		}
		if body.Phone != nil {
			vendor.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Create(&vendor).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tedarikçi oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(&vendor))
	}
}

func ListVendorsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vendors []models.Vendor
		if err := database.DB.Order("name asc").Find(&vendors).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tedarikçiler listelenemedi")
		}

		res := make([]VendorResponse, 0, len(vendors))
		for i := range vendors {
			res = append(res, toResponse(&vendors[i]))
		}

		return c.JSON(res)
	}
}

func GetVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Tedarikçi bulunamadı")
		}

		return c.JSON(toResponse(&vendor))
	}
}

func UpdateVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Tedarikçi bulunamadı")
		}

		var body UpdateVendorRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Tedarikçi adı boş olamaz")
			}
			vendor.Name = name
		}
		if body.Phone != nil {
			vendor.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Address != nil {
			vendor.Address = *body.Address
		}

		if err := database.DB.Save(&vendor).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tedarikçi güncellenemedi")
		}

		return c.JSON(toResponse(&vendor))
	}
}

func DeleteVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		if err := database.DB.Delete(&models.Vendor{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tedarikçi silinemedi")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// TEDARİKÇİ FİYAT LİSTESİ
// ----------------------------------------

// POST /api/admin/vendors/:id/prices
func CreateVendorPriceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vendorID := c.Params("id")

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", vendorID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Tedarikçi bulunamadı")
		}

		var body CreateVendorPriceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}
		if body.MaterialID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "material_id zorunlu")
		}
		if body.UnitPrice <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Birim fiyat 0'dan büyük olmalı")
		}

		var material models.Material
		if err := database.DB.First(&material, body.MaterialID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Malzeme bulunamadı")
		}

		validFrom, err := time.Parse("2006-01-02", body.ValidFrom)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı 'YYYY-MM-DD' olmalı")
		}

		price := models.VendorMaterialPrice{
			VendorID:   vendor.ID,
			MaterialID: body.MaterialID,
			UnitPrice:  body.UnitPrice,
			ValidFrom:  validFrom,
		}

		if err := database.DB.Create(&price).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Fiyat kaydedilemedi")
		}

		return c.Status(fiber.StatusCreated).JSON(VendorPriceResponse{
			ID:           price.ID,
			VendorID:     price.VendorID,
			MaterialID:   price.MaterialID,
			MaterialName: material.Name,
			Unit:         material.Unit,
			UnitPrice:    price.UnitPrice,
			ValidFrom:    price.ValidFrom.Format("2006-01-02"),
		})
	}
}

// GET /api/admin/vendors/:id/prices
// Her malzeme için en güncel fiyat üstte gelir.
func ListVendorPricesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vendorID := c.Params("id")

		var prices []models.VendorMaterialPrice
		if err := database.DB.Preload("Material").
			Where("vendor_id = ?", vendorID).
			Order("material_id asc, valid_from desc").
			Find(&prices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Fiyatlar listelenemedi")
		}

		res := make([]VendorPriceResponse, 0, len(prices))
		for _, p := range prices {
			res = append(res, VendorPriceResponse{
				ID:           p.ID,
				VendorID:     p.VendorID,
				MaterialID:   p.MaterialID,
				MaterialName: p.Material.Name,
				Unit:         p.Material.Unit,
				UnitPrice:    p.UnitPrice,
				ValidFrom:    p.ValidFrom.Format("2006-01-02"),
			})
		}

		return c.JSON(res)
	}
}

// DELETE /api/admin/vendors/:vendorId/prices/:priceId
func DeleteVendorPriceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vendorID := c.Params("id")
		priceID := c.Params("priceId")

		if err := database.DB.
			Where("id = ? AND vendor_id = ?", priceID, vendorID).
			Delete(&models.VendorMaterialPrice{}).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Fiyat silinemedi")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
