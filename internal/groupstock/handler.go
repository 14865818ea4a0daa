package groupstock

import (
	"errors"
	"fmt"
	"time"

	"santiye-backend/internal/audit"
	"santiye-backend/internal/auth"
	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type BatchItemRequest struct {
	MaterialID uint    `json:"material_id"`
	Quantity   float64 `json:"quantity"`
	UnitCost   float64 `json:"unit_cost"`
}

type CreateBatchRequest struct {
	GroupID      uint               `json:"group_id"`
	PayingSiteID uint               `json:"paying_site_id"`
	Date         string             `json:"date"` // "2025-12-09"
	Note         string             `json:"note"`
	Items        []BatchItemRequest `json:"items"`
}

type RecordUsageRequest struct {
	SiteID     uint    `json:"site_id"`
	MaterialID uint    `json:"material_id"`
	Quantity   float64 `json:"quantity"`
	Date       string  `json:"date"` // "2025-12-09"
}

type BatchItemResponse struct {
	ID           uint    `json:"id"`
	MaterialID   uint    `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Quantity     float64 `json:"quantity"`
	RemainingQty float64 `json:"remaining_qty"`
	Unit         string  `json:"unit"`
	UnitCost     float64 `json:"unit_cost"`
	TotalCost    float64 `json:"total_cost"`
}

type BatchResponse struct {
	ID           uint                `json:"id"`
	Code         string              `json:"code"`
	GroupID      uint                `json:"group_id"`
	PayingSiteID uint                `json:"paying_site_id"`
	TotalAmount  float64             `json:"total_amount"`
	Status       string              `json:"status"`
	Date         string              `json:"date"`
	Note         string              `json:"note"`
	Items        []BatchItemResponse `json:"items,omitempty"`
	CreatedAt    string              `json:"created_at"`
}

type AllocationResponse struct {
	ID           uint    `json:"id"`
	SiteID       uint    `json:"site_id"`
	MaterialID   uint    `json:"material_id"`
	Amount       float64 `json:"amount"`
	QuantityUsed float64 `json:"quantity_used"`
	IsPayer      bool    `json:"is_payer"`
	SettlementID *uint   `json:"settlement_id"`
	Date         string  `json:"date"`
}

type BatchDetailResponse struct {
	BatchResponse
	Allocations    []AllocationResponse `json:"allocations"`
	PayerRemainder float64              `json:"payer_remainder"`
	ItemRemainders map[uint]float64     `json:"item_remainders"` // material_id -> kalan miktar
}

// -------------------------
// Yardımcı: Kullanıcı bilgilerini al
// -------------------------
func getUserInfo(c *fiber.Ctx) (uint, string, *uint, error) {
	userIDVal := c.Locals(auth.CtxUserIDKey)
	userID, ok := userIDVal.(uint)
	if !ok {
		return 0, "", nil, fiber.NewError(fiber.StatusForbidden, "Kullanıcı bilgisi alınamadı")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", nil, fiber.NewError(fiber.StatusInternalServerError, "Kullanıcı bulunamadı")
	}

	var siteID *uint
	sVal := c.Locals(auth.CtxSiteIDKey)
	if sPtr, ok := sVal.(*uint); ok && sPtr != nil {
		siteID = sPtr
	}

	return userID, user.Name, siteID, nil
}

// Servis hatasını HTTP hatasına çevir
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Kayıt bulunamadı")
	case errors.Is(err, ErrSiteNotInGroup):
		return fiber.NewError(fiber.StatusBadRequest, "Şantiye bu grubun üyesi değil")
	case errors.Is(err, ErrBatchCompleted):
		return fiber.NewError(fiber.StatusConflict, "Parti kapatılmış, üzerinde işlem yapılamaz")
	case errors.Is(err, ErrMaterialNotInBatch):
		return fiber.NewError(fiber.StatusBadRequest, "Malzeme bu partide yok")
	case errors.Is(err, ErrQuantityExceedsRemaining):
		return fiber.NewError(fiber.StatusBadRequest, "Kullanım miktarı partideki kalan miktarı aşıyor")
	case errors.Is(err, ErrAllocationClaimed):
		return fiber.NewError(fiber.StatusConflict, "Kayıtlar canlı bir mahsuba bağlı, önce mahsubu iptal et")
	}

	var nre *NegativeRemainderError
	if errors.As(err, &nre) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, nre.Error())
	}

	return fiber.NewError(fiber.StatusInternalServerError, "İşlem gerçekleştirilemedi")
}

func batchToResponse(b *models.GroupStockBatch, withItems bool) BatchResponse {
	resp := BatchResponse{
		ID:           b.ID,
		Code:         b.Code,
		GroupID:      b.GroupID,
		PayingSiteID: b.PayingSiteID,
		TotalAmount:  b.TotalAmount,
		Status:       string(b.Status),
		Date:         b.Date.Format("2006-01-02"),
		Note:         b.Note,
		CreatedAt:    b.CreatedAt.Format(time.RFC3339),
	}
	if withItems {
		resp.Items = make([]BatchItemResponse, 0, len(b.Items))
		for _, item := range b.Items {
			resp.Items = append(resp.Items, BatchItemResponse{
				ID:           item.ID,
				MaterialID:   item.MaterialID,
				MaterialName: item.Material.Name,
				Quantity:     item.Quantity,
				RemainingQty: item.RemainingQty,
				Unit:         item.Unit,
				UnitCost:     item.UnitCost,
				TotalCost:    item.TotalCost,
			})
		}
	}
	return resp
}

// -------------------------
// Parti Handler'ları
// -------------------------

// POST /api/group-stock/batches
func CreateBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		if body.GroupID == 0 || body.PayingSiteID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id ve paying_site_id zorunlu")
		}
		if len(body.Items) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "En az bir kalem girilmeli")
		}

		d, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı 'YYYY-MM-DD' olmalı")
		}

		// Şantiye sorumlusu sadece kendi şantiyesi adına alım girebilir
		roleVal := c.Locals(auth.CtxUserRoleKey)
		if role, ok := roleVal.(models.UserRole); ok && role == models.RoleSiteEngineer {
			sVal := c.Locals(auth.CtxSiteIDKey)
			sPtr, ok := sVal.(*uint)
			if !ok || sPtr == nil || *sPtr != body.PayingSiteID {
				return fiber.NewError(fiber.StatusForbidden, "Sadece kendi şantiyeniz adına alım girebilirsiniz")
			}
		}

		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		items := make([]BatchItemInput, 0, len(body.Items))
		for _, it := range body.Items {
			items = append(items, BatchItemInput{
				MaterialID: it.MaterialID,
				Quantity:   it.Quantity,
				UnitCost:   it.UnitCost,
			})
		}

		svc := NewService(database.DB)
		batch, err := svc.CreateBatch(CreateBatchInput{
			GroupID:      body.GroupID,
			PayingSiteID: body.PayingSiteID,
			Date:         d,
			Note:         body.Note,
			RecordedBy:   userName,
			Items:        items,
		})
		if err != nil {
			return mapServiceError(err)
		}

		siteIDForLog := batch.PayingSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &siteIDForLog,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_batch",
			EntityID:    batch.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Toplu alım eklendi: %s %.2f TL", batch.Code, batch.TotalAmount),
			Before:      nil,
			After: map[string]interface{}{
				"id":             batch.ID,
				"code":           batch.Code,
				"group_id":       batch.GroupID,
				"paying_site_id": batch.PayingSiteID,
				"total_amount":   batch.TotalAmount,
				"date":           batch.Date.Format("2006-01-02"),
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.Status(fiber.StatusCreated).JSON(batchToResponse(batch, true))
	}
}

// GET /api/group-stock/batches?group_id=...&status=...
func ListBatchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		groupIDStr := c.Query("group_id")
		var groupID uint
		if _, err := fmt.Sscan(groupIDStr, &groupID); err != nil || groupID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id zorunlu")
		}

		dbq := database.DB.Model(&models.GroupStockBatch{}).
			Where("group_id = ?", groupID)

		if status := c.Query("status"); status != "" {
			switch models.BatchStatus(status) {
			case models.BatchStatusRecorded, models.BatchStatusPartialUsed, models.BatchStatusCompleted:
				dbq = dbq.Where("status = ?", status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "status 'recorded', 'partial_used' veya 'completed' olmalı")
			}
		}

		var batches []models.GroupStockBatch
		if err := dbq.Preload("Items").Preload("Items.Material").
			Order("date desc, id desc").Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Partiler listelenemedi")
		}

		resp := make([]BatchResponse, 0, len(batches))
		for i := range batches {
			resp = append(resp, batchToResponse(&batches[i], true))
		}
		return c.JSON(resp)
	}
}

// GET /api/group-stock/batches/:id
// Parti detayı: kalemler, tahsisler ve her okuyuşta yeniden hesaplanan
// ödeyen payı (kalan pay hiçbir yerde saklanmaz).
func GetBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var batch models.GroupStockBatch
		if err := database.DB.Preload("Items").Preload("Items.Material").
			First(&batch, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Parti bulunamadı")
		}

		var allocs []models.BatchUsageAllocation
		if err := database.DB.Where("batch_id = ?", batch.ID).
			Order("date asc, id asc").Find(&allocs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tahsisler listelenemedi")
		}

		remainder, err := PayerRemainder(&batch, allocs)
		if err != nil {
			return mapServiceError(err)
		}

		allocResp := make([]AllocationResponse, 0, len(allocs))
		for _, a := range allocs {
			allocResp = append(allocResp, AllocationResponse{
				ID:           a.ID,
				SiteID:       a.SiteID,
				MaterialID:   a.MaterialID,
				Amount:       a.Amount,
				QuantityUsed: a.QuantityUsed,
				IsPayer:      a.IsPayer,
				SettlementID: a.SettlementID,
				Date:         a.Date.Format("2006-01-02"),
			})
		}

		return c.JSON(BatchDetailResponse{
			BatchResponse:  batchToResponse(&batch, true),
			Allocations:    allocResp,
			PayerRemainder: remainder,
			ItemRemainders: ItemRemainders(&batch, allocs),
		})
	}
}

// POST /api/group-stock/batches/:id/usage
func RecordUsageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batchID uint
		if _, err := fmt.Sscan(c.Params("id"), &batchID); err != nil || batchID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz parti ID")
		}

		var body RecordUsageRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		if body.SiteID == 0 || body.MaterialID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "site_id ve material_id zorunlu")
		}
		if body.Quantity <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "quantity 0'dan büyük olmalı")
		}

		d, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı 'YYYY-MM-DD' olmalı")
		}

		// Şantiye sorumlusu sadece kendi şantiyesi için kullanım girebilir
		roleVal := c.Locals(auth.CtxUserRoleKey)
		if role, ok := roleVal.(models.UserRole); ok && role == models.RoleSiteEngineer {
			sVal := c.Locals(auth.CtxSiteIDKey)
			sPtr, ok := sVal.(*uint)
			if !ok || sPtr == nil || *sPtr != body.SiteID {
				return fiber.NewError(fiber.StatusForbidden, "Sadece kendi şantiyeniz için kullanım girebilirsiniz")
			}
		}

		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		alloc, err := svc.RecordUsage(RecordUsageInput{
			BatchID:    batchID,
			SiteID:     body.SiteID,
			MaterialID: body.MaterialID,
			Quantity:   body.Quantity,
			Date:       d,
			RecordedBy: userName,
		})
		if err != nil {
			return mapServiceError(err)
		}

		siteIDForLog := alloc.SiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &siteIDForLog,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_transaction",
			EntityID:    alloc.TransactionID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Malzeme kullanımı eklendi: %.2f TL (parti #%d)", alloc.Amount, alloc.BatchID),
			Before:      nil,
			After: map[string]interface{}{
				"batch_id":      alloc.BatchID,
				"site_id":       alloc.SiteID,
				"material_id":   alloc.MaterialID,
				"quantity_used": alloc.QuantityUsed,
				"amount":        alloc.Amount,
				"is_payer":      alloc.IsPayer,
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.Status(fiber.StatusCreated).JSON(AllocationResponse{
			ID:           alloc.ID,
			SiteID:       alloc.SiteID,
			MaterialID:   alloc.MaterialID,
			Amount:       alloc.Amount,
			QuantityUsed: alloc.QuantityUsed,
			IsPayer:      alloc.IsPayer,
			SettlementID: alloc.SettlementID,
			Date:         alloc.Date.Format("2006-01-02"),
		})
	}
}

// POST /api/group-stock/batches/:id/close
func CloseBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batchID uint
		if _, err := fmt.Sscan(c.Params("id"), &batchID); err != nil || batchID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz parti ID")
		}

		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		batch, err := svc.CloseBatch(batchID, userName)
		if err != nil {
			return mapServiceError(err)
		}

		siteIDForLog := batch.PayingSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &siteIDForLog,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_batch",
			EntityID:    batch.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Parti kapatıldı: %s", batch.Code),
			Before:      nil,
			After:       map[string]interface{}{"status": string(batch.Status)},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.JSON(batchToResponse(batch, true))
	}
}

// DELETE /api/group-stock/batches/:id
func DeleteBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batchID uint
		if _, err := fmt.Sscan(c.Params("id"), &batchID); err != nil || batchID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz parti ID")
		}

		var batch models.GroupStockBatch
		if err := database.DB.First(&batch, batchID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Parti bulunamadı")
		}

		userID, userName, _, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		if err := svc.DeletePurchase(batchID, userName); err != nil {
			return mapServiceError(err)
		}

		siteIDForLog := batch.PayingSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &siteIDForLog,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_batch",
			EntityID:    batch.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Toplu alım silindi: %s %.2f TL", batch.Code, batch.TotalAmount),
			Before: map[string]interface{}{
				"id":             batch.ID,
				"code":           batch.Code,
				"group_id":       batch.GroupID,
				"paying_site_id": batch.PayingSiteID,
				"total_amount":   batch.TotalAmount,
			},
			After: nil,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
