package wallet

import (
	"fmt"
	"strings"
	"time"

	"santiye-backend/internal/audit"
	"santiye-backend/internal/auth"
	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WalletEntryResponse struct {
	ID          uint    `json:"id"`
	UserID      uint    `json:"user_id"`
	SiteID      *uint   `json:"site_id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

type CreateWalletEntryRequest struct {
	UserID      uint    `json:"user_id"` // super_admin başka mühendise avans yükleyebilir
	SiteID      *uint   `json:"site_id"`
	Type        string  `json:"type"` // credit | debit
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"` // "2025-12-09"
	Description string  `json:"description"`
}

type WalletSummaryResponse struct {
	UserID      uint                  `json:"user_id"`
	Balance     float64               `json:"balance"` // credit toplamı - debit toplamı
	TotalCredit float64               `json:"total_credit"`
	TotalDebit  float64               `json:"total_debit"`
	Entries     []WalletEntryResponse `json:"entries"`
}

func toResponse(e *models.WalletEntry) WalletEntryResponse {
	return WalletEntryResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		SiteID:      e.SiteID,
		Type:        string(e.Type),
		Amount:      e.Amount,
		Date:        e.Date.Format("2006-01-02"),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// Hedef kasa sahibini çöz: super_admin istediği mühendisi seçebilir,
// şantiye sorumlusu sadece kendi kasasını görür.
func resolveTargetUser(c *fiber.Ctx, requested uint) (uint, error) {
	userIDVal := c.Locals(auth.CtxUserIDKey)
	userID, ok := userIDVal.(uint)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Kullanıcı bilgisi alınamadı")
	}

	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
	}

	if role == models.RoleSuperAdmin && requested != 0 {
		return requested, nil
	}
	if requested != 0 && requested != userID {
		return 0, fiber.NewError(fiber.StatusForbidden, "Sadece kendi kasanıza erişebilirsiniz")
	}
	return userID, nil
}

// POST /api/wallet/entries
func CreateWalletEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateWalletEntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		if body.Amount <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Tutar 0'dan büyük olmalı")
		}

		entryType := models.WalletEntryType(body.Type)
		if entryType != models.WalletEntryCredit && entryType != models.WalletEntryDebit {
			return fiber.NewError(fiber.StatusBadRequest, "type 'credit' veya 'debit' olmalı")
		}

		d, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı 'YYYY-MM-DD' olmalı")
		}

		targetUserID, err := resolveTargetUser(c, body.UserID)
		if err != nil {
			return err
		}

		// Avans yüklemeyi sadece super_admin yapabilir
		roleVal := c.Locals(auth.CtxUserRoleKey)
		if role, ok := roleVal.(models.UserRole); ok && role == models.RoleSiteEngineer && entryType == models.WalletEntryCredit {
			return fiber.NewError(fiber.StatusForbidden, "Avans yüklemeyi sadece yönetici yapabilir")
		}

		var targetUser models.User
		if err := database.DB.First(&targetUser, targetUserID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Kasa sahibi kullanıcı bulunamadı")
		}

		entry := models.WalletEntry{
			UserID:      targetUserID,
			SiteID:      body.SiteID,
			Type:        entryType,
			Amount:      body.Amount,
			Date:        d,
			Description: strings.TrimSpace(body.Description),
		}

		if err := database.DB.Create(&entry).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa hareketi kaydedilemedi")
		}

		// Audit log
		actorIDVal := c.Locals(auth.CtxUserIDKey)
		actorID, _ := actorIDVal.(uint)
		var actor models.User
		_ = database.DB.First(&actor, actorID).Error

		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      entry.SiteID,
			UserID:      actorID,
			UserName:    actor.Name,
			EntityType:  "wallet_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Kasa hareketi eklendi: %s %.2f TL (%s)", entry.Type, entry.Amount, targetUser.Name),
			Before:      nil,
			After:       entry,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(&entry))
	}
}

// GET /api/wallet?user_id=1&site_id=2
// Bakiye her çağrıda hareketlerden hesaplanır; kolonda tutulmaz.
func GetWalletSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested uint
		if s := c.Query("user_id"); s != "" {
			if _, err := fmt.Sscan(s, &requested); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Geçersiz user_id")
			}
		}

		targetUserID, err := resolveTargetUser(c, requested)
		if err != nil {
			return err
		}

		dbq := database.DB.Where("user_id = ?", targetUserID)
		if s := c.Query("site_id"); s != "" {
			var siteID uint
			if _, err := fmt.Sscan(s, &siteID); err == nil && siteID > 0 {
				dbq = dbq.Where("site_id = ?", siteID)
			}
		}

		var entries []models.WalletEntry
		if err := dbq.Order("date desc, id desc").Find(&entries).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa hareketleri listelenemedi")
		}

		credit := decimal.Zero
		debit := decimal.Zero
		res := make([]WalletEntryResponse, 0, len(entries))
		for i := range entries {
			e := &entries[i]
			if e.Type == models.WalletEntryCredit {
				credit = credit.Add(decimal.NewFromFloat(e.Amount))
			} else {
				debit = debit.Add(decimal.NewFromFloat(e.Amount))
			}
			res = append(res, toResponse(e))
		}

		return c.JSON(WalletSummaryResponse{
			UserID:      targetUserID,
			Balance:     credit.Sub(debit).InexactFloat64(),
			TotalCredit: credit.InexactFloat64(),
			TotalDebit:  debit.InexactFloat64(),
			Entries:     res,
		})
	}
}

// DELETE /api/wallet/entries/:id
func DeleteWalletEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var entry models.WalletEntry
		if err := database.DB.First(&entry, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Kasa hareketi bulunamadı")
		}

		if _, err := resolveTargetUser(c, entry.UserID); err != nil {
			return err
		}

		if err := database.DB.Delete(&entry).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa hareketi silinemedi")
		}

		actorIDVal := c.Locals(auth.CtxUserIDKey)
		actorID, _ := actorIDVal.(uint)
		var actor models.User
		_ = database.DB.First(&actor, actorID).Error

		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      entry.SiteID,
			UserID:      actorID,
			UserName:    actor.Name,
			EntityType:  "wallet_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Kasa hareketi silindi: %s %.2f TL", entry.Type, entry.Amount),
			Before:      entry,
			After:       nil,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
