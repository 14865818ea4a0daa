package settlement

import (
	"errors"
	"fmt"
	"time"

	"santiye-backend/internal/audit"
	"santiye-backend/internal/auth"
	"santiye-backend/internal/database"
	"santiye-backend/internal/groupstock"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type GenerateRequest struct {
	GroupID        uint   `json:"group_id"`
	CreditorSiteID uint   `json:"creditor_site_id"`
	DebtorSiteID   uint   `json:"debtor_site_id"`
	Week           int    `json:"week"`
	Year           int    `json:"year"`
}

type PaymentRequest struct {
	Amount      float64 `json:"amount"`
	PayerSource string  `json:"payer_source"`
	PaymentMode string  `json:"payment_mode"`
	Date        string  `json:"date"` // "2025-12-09"
}

type SettlePayRequest struct {
	SettlementID   uint           `json:"settlement_id"`
	GroupID        uint           `json:"group_id"`
	CreditorSiteID uint           `json:"creditor_site_id"`
	DebtorSiteID   uint           `json:"debtor_site_id"`
	Week           int            `json:"week"`
	Year           int            `json:"year"`
	Payment        PaymentRequest `json:"payment"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type PaymentResponse struct {
	ID          uint    `json:"id"`
	Amount      float64 `json:"amount"`
	PayerSource string  `json:"payer_source"`
	PaymentMode string  `json:"payment_mode"`
	Date        string  `json:"date"`
	RecordedBy  string  `json:"recorded_by"`
}

type SettlementResponse struct {
	ID           uint              `json:"id"`
	Code         string            `json:"code"`
	GroupID      uint              `json:"group_id"`
	FromSiteID   uint              `json:"from_site_id"`
	ToSiteID     uint              `json:"to_site_id"`
	TotalAmount  float64           `json:"total_amount"`
	PaidAmount   float64           `json:"paid_amount"`
	Week         int               `json:"week"`
	Year         int               `json:"year"`
	BatchID      *uint             `json:"batch_id"`
	Status       string            `json:"status"`
	SettledAt    *string           `json:"settled_at"`
	CancelledAt  *string           `json:"cancelled_at"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	CreatedBy    string            `json:"created_by"`
	CancelledBy  string            `json:"cancelled_by,omitempty"`
	Payments     []PaymentResponse `json:"payments"`
	CreatedAt    string            `json:"created_at"`
}

// -------------------------
// Yardımcı: Kullanıcı bilgilerini al
// -------------------------
func getUserInfo(c *fiber.Ctx) (uint, string, error) {
	userIDVal := c.Locals(auth.CtxUserIDKey)
	userID, ok := userIDVal.(uint)
	if !ok {
		return 0, "", fiber.NewError(fiber.StatusForbidden, "Kullanıcı bilgisi alınamadı")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", fiber.NewError(fiber.StatusInternalServerError, "Kullanıcı bulunamadı")
	}

	return userID, user.Name, nil
}

// Servis hatasını HTTP hatasına çevir
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Kayıt bulunamadı")
	case errors.Is(err, ErrNoBalanceFound):
		return fiber.NewError(fiber.StatusNotFound, "Bu hafta için mahsuplaşacak bakiye yok")
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, "Mahsup bu durumda bu işleme izin vermiyor")
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(fiber.StatusBadRequest, "Ödeme tutarı 0'dan büyük olmalı")
	case errors.Is(err, groupstock.ErrAllocationClaimed):
		return fiber.NewError(fiber.StatusConflict, "Kayıtlar canlı bir mahsuba bağlı, önce mahsubu iptal et")
	}

	var nre *groupstock.NegativeRemainderError
	if errors.As(err, &nre) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, nre.Error())
	}

	return fiber.NewError(fiber.StatusInternalServerError, "İşlem gerçekleştirilemedi")
}

func settlementToResponse(stl *models.InterSiteSettlement) SettlementResponse {
	resp := SettlementResponse{
		ID:           stl.ID,
		Code:         stl.Code,
		GroupID:      stl.GroupID,
		FromSiteID:   stl.FromSiteID,
		ToSiteID:     stl.ToSiteID,
		TotalAmount:  stl.TotalAmount,
		PaidAmount:   stl.PaidAmount,
		Week:         stl.Week,
		Year:         stl.Year,
		BatchID:      stl.BatchID,
		Status:       string(stl.Status),
		CancelReason: stl.CancelReason,
		CreatedBy:    stl.CreatedBy,
		CancelledBy:  stl.CancelledBy,
		CreatedAt:    stl.CreatedAt.Format(time.RFC3339),
		Payments:     make([]PaymentResponse, 0, len(stl.Payments)),
	}
	if stl.SettledAt != nil {
		formatted := stl.SettledAt.Format(time.RFC3339)
		resp.SettledAt = &formatted
	}
	if stl.CancelledAt != nil {
		formatted := stl.CancelledAt.Format(time.RFC3339)
		resp.CancelledAt = &formatted
	}
	for _, p := range stl.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:          p.ID,
			Amount:      p.Amount,
			PayerSource: p.PayerSource,
			PaymentMode: p.PaymentMode,
			Date:        p.Date.Format("2006-01-02"),
			RecordedBy:  p.RecordedBy,
		})
	}
	return resp
}

func parsePayment(body PaymentRequest, recordedBy string) (PaymentInput, error) {
	d, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		return PaymentInput{}, fiber.NewError(fiber.StatusBadRequest, "Tarih formatı 'YYYY-MM-DD' olmalı")
	}
	return PaymentInput{
		Amount:      body.Amount,
		PayerSource: body.PayerSource,
		PaymentMode: body.PaymentMode,
		Date:        d,
		RecordedBy:  recordedBy,
	}, nil
}

// -------------------------
// Bakiye Handler'ları
// -------------------------

// GET /api/settlements/balances?group_id=1
func ListBalancesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var groupID uint
		if _, err := fmt.Sscan(c.Query("group_id"), &groupID); err != nil || groupID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id zorunlu")
		}

		svc := NewService(database.DB)
		balances, err := svc.ListBalances(groupID)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(balances)
	}
}

// GET /api/settlements/summary?group_id=1
func SiteSummariesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var groupID uint
		if _, err := fmt.Sscan(c.Query("group_id"), &groupID); err != nil || groupID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id zorunlu")
		}

		svc := NewService(database.DB)
		summaries, err := svc.SiteSummaries(groupID)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(summaries)
	}
}

// -------------------------
// Mahsup Handler'ları
// -------------------------

// POST /api/settlements/generate
func GenerateSettlementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body GenerateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		if body.GroupID == 0 || body.CreditorSiteID == 0 || body.DebtorSiteID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id, creditor_site_id ve debtor_site_id zorunlu")
		}
		if body.CreditorSiteID == body.DebtorSiteID {
			return fiber.NewError(fiber.StatusBadRequest, "Alacaklı ve borçlu şantiye aynı olamaz")
		}
		if body.Week < 1 || body.Week > 53 || body.Year < 2000 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz hafta/yıl")
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		stl, err := svc.Generate(GenerateInput{
			GroupID:        body.GroupID,
			CreditorSiteID: body.CreditorSiteID,
			DebtorSiteID:   body.DebtorSiteID,
			Week:           body.Week,
			Year:           body.Year,
			CreatedBy:      userName,
		})
		if err != nil {
			return mapServiceError(err)
		}

		toSiteID := stl.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement",
			EntityID:    stl.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Mahsup oluşturuldu: %s %.2f TL (hafta %d/%d)", stl.Code, stl.TotalAmount, stl.Week, stl.Year),
			Before:      nil,
			After: map[string]interface{}{
				"id":           stl.ID,
				"code":         stl.Code,
				"from_site_id": stl.FromSiteID,
				"to_site_id":   stl.ToSiteID,
				"total_amount": stl.TotalAmount,
				"week":         stl.Week,
				"year":         stl.Year,
				"status":       string(stl.Status),
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.Status(fiber.StatusCreated).JSON(settlementToResponse(stl))
	}
}

// GET /api/settlements?site_id=1&status=pending
func ListSettlementsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var siteID uint
		if _, err := fmt.Sscan(c.Query("site_id"), &siteID); err != nil || siteID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "site_id zorunlu")
		}

		status := models.SettlementStatus(c.Query("status"))
		switch status {
		case "", models.SettlementStatusPending, models.SettlementStatusApproved,
			models.SettlementStatusSettled, models.SettlementStatusCancelled:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "status 'pending', 'approved', 'settled' veya 'cancelled' olmalı")
		}

		svc := NewService(database.DB)
		settlements, err := svc.ListSettlements(siteID, status)
		if err != nil {
			return mapServiceError(err)
		}

		resp := make([]SettlementResponse, 0, len(settlements))
		for i := range settlements {
			resp = append(resp, settlementToResponse(&settlements[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/settlements/:id
func GetSettlementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz mahsup ID")
		}

		svc := NewService(database.DB)
		stl, err := svc.Get(id)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(settlementToResponse(stl))
	}
}

// POST /api/settlements/:id/approve
func ApproveSettlementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz mahsup ID")
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		stl, err := svc.Approve(id, userName)
		if err != nil {
			return mapServiceError(err)
		}

		toSiteID := stl.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement",
			EntityID:    stl.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Mahsup onaylandı: %s", stl.Code),
			Before:      map[string]interface{}{"status": string(models.SettlementStatusPending)},
			After:       map[string]interface{}{"status": string(stl.Status)},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.JSON(settlementToResponse(stl))
	}
}

// POST /api/settlements/:id/payments
func RecordPaymentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz mahsup ID")
		}

		var body PaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		payment, err := parsePayment(body, userName)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		stl, err := svc.RecordPayment(id, payment)
		if err != nil {
			return mapServiceError(err)
		}

		toSiteID := stl.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement_payment",
			EntityID:    stl.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Mahsup ödemesi kaydedildi: %s %.2f TL", stl.Code, body.Amount),
			Before:      nil,
			After: map[string]interface{}{
				"settlement_id": stl.ID,
				"amount":        body.Amount,
				"payer_source":  body.PayerSource,
				"payment_mode":  body.PaymentMode,
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.JSON(settlementToResponse(stl))
	}
}

// POST /api/settlements/pay
// Bakiye ekranından tek adım: mahsup yoksa üret, ödemeyi kaydet.
func SettlePayHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SettlePayRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		if body.SettlementID == 0 {
			if body.GroupID == 0 || body.CreditorSiteID == 0 || body.DebtorSiteID == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "settlement_id ya da bakiye bilgileri (group_id, creditor_site_id, debtor_site_id, week, year) zorunlu")
			}
			if body.CreditorSiteID == body.DebtorSiteID {
				return fiber.NewError(fiber.StatusBadRequest, "Alacaklı ve borçlu şantiye aynı olamaz")
			}
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		payment, err := parsePayment(body.Payment, userName)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		stl, err := svc.SettlePayment(SettlePaymentInput{
			SettlementID: body.SettlementID,
			GroupID:      body.GroupID,
			CreditorID:   body.CreditorSiteID,
			DebtorID:     body.DebtorSiteID,
			Week:         body.Week,
			Year:         body.Year,
			Payment:      payment,
		})
		if err != nil {
			return mapServiceError(err)
		}

		toSiteID := stl.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement",
			EntityID:    stl.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Mahsup ödendi: %s %.2f TL (hafta %d/%d)", stl.Code, stl.PaidAmount, stl.Week, stl.Year),
			Before:      nil,
			After: map[string]interface{}{
				"id":           stl.ID,
				"code":         stl.Code,
				"paid_amount":  stl.PaidAmount,
				"status":       string(stl.Status),
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.Status(fiber.StatusCreated).JSON(settlementToResponse(stl))
	}
}

// POST /api/settlements/:id/cancel
func CancelSettlementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz mahsup ID")
		}

		var body CancelRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		before, err := svc.Get(id)
		if err != nil {
			return mapServiceError(err)
		}

		stl, err := svc.Cancel(id, body.Reason, userName)
		if err != nil {
			return mapServiceError(err)
		}

		toSiteID := stl.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement",
			EntityID:    stl.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Mahsup iptal edildi: %s (%s)", stl.Code, stl.CancelReason),
			Before: map[string]interface{}{
				"status":      string(before.Status),
				"paid_amount": before.PaidAmount,
			},
			After: map[string]interface{}{
				"status":      string(stl.Status),
				"paid_amount": stl.PaidAmount,
			},
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.JSON(settlementToResponse(stl))
	}
}

// DELETE /api/settlements/:id
func DeleteSettlementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz mahsup ID")
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		before, err := svc.Get(id)
		if err != nil {
			return mapServiceError(err)
		}

		if err := svc.Delete(id); err != nil {
			return mapServiceError(err)
		}

		toSiteID := before.ToSiteID
		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &toSiteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "settlement",
			EntityID:    before.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Mahsup silindi: %s", before.Code),
			Before: map[string]interface{}{
				"id":           before.ID,
				"code":         before.Code,
				"total_amount": before.TotalAmount,
				"status":       string(before.Status),
			},
			After: nil,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Şantiye sorumlusu sadece kendi şantiyesinin kullanımını silebilir
func requireOwnSite(c *fiber.Ctx, siteID uint) error {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	if role, ok := roleVal.(models.UserRole); ok && role == models.RoleSiteEngineer {
		sVal := c.Locals(auth.CtxSiteIDKey)
		sPtr, ok := sVal.(*uint)
		if !ok || sPtr == nil || *sPtr != siteID {
			return fiber.NewError(fiber.StatusForbidden, "Sadece kendi şantiyenizin kullanımını silebilirsiniz")
		}
	}
	return nil
}

// DELETE /api/group-stock/batches/:id/usage/:siteId
// Bir şantiyenin partideki mahsuplaşmamış kullanımlarını geri alır.
func DeleteUnsettledUsageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batchID uint
		if _, err := fmt.Sscan(c.Params("id"), &batchID); err != nil || batchID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz parti ID")
		}
		var siteID uint
		if _, err := fmt.Sscan(c.Params("siteId"), &siteID); err != nil || siteID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz şantiye ID")
		}

		if err := requireOwnSite(c, siteID); err != nil {
			return err
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		if err := svc.DeleteUnsettledUsage(batchID, siteID); err != nil {
			return mapServiceError(err)
		}

		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &siteID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_transaction",
			EntityID:    batchID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Şantiyenin partideki kullanım kayıtları silindi (parti #%d, şantiye #%d)", batchID, siteID),
			Before:      map[string]interface{}{"batch_id": batchID, "site_id": siteID},
			After:       nil,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DELETE /api/group-stock/usage?group_id=1&creditor_site_id=2&debtor_site_id=3
// Borçlu şantiyenin, alacaklının gruptaki bütün partilerindeki mahsuplaşmamış
// kullanımlarını tek seferde geri alır.
func DeleteUnsettledUsageBetweenHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var groupID, creditorID, debtorID uint
		if _, err := fmt.Sscan(c.Query("group_id"), &groupID); err != nil || groupID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "group_id zorunlu")
		}
		if _, err := fmt.Sscan(c.Query("creditor_site_id"), &creditorID); err != nil || creditorID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "creditor_site_id zorunlu")
		}
		if _, err := fmt.Sscan(c.Query("debtor_site_id"), &debtorID); err != nil || debtorID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "debtor_site_id zorunlu")
		}
		if creditorID == debtorID {
			return fiber.NewError(fiber.StatusBadRequest, "Alacaklı ve borçlu şantiye aynı olamaz")
		}

		if err := requireOwnSite(c, debtorID); err != nil {
			return err
		}

		userID, userName, err := getUserInfo(c)
		if err != nil {
			return err
		}

		svc := NewService(database.DB)
		if err := svc.DeleteUnsettledUsageBetween(groupID, creditorID, debtorID); err != nil {
			return mapServiceError(err)
		}

		if logErr := audit.WriteLog(audit.LogOptions{
			SiteID:      &debtorID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "group_stock_transaction",
			EntityID:    groupID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("İki şantiye arasındaki kullanım kayıtları silindi (grup #%d, alacaklı #%d, borçlu #%d)", groupID, creditorID, debtorID),
			Before:      map[string]interface{}{"group_id": groupID, "creditor_site_id": creditorID, "debtor_site_id": debtorID},
			After:       nil,
		}); logErr != nil {
			fmt.Printf("Audit log yazılamadı: %v\n", logErr)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
