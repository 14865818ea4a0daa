package settlement

import (
	"fmt"
	"strings"
	"time"

	"santiye-backend/internal/groupstock"
	"santiye-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newSettlementCode() string {
	return fmt.Sprintf("MHS-%s", strings.ToUpper(uuid.NewString()[:8]))
}

type GenerateInput struct {
	GroupID        uint
	CreditorSiteID uint // partiyi ödeyen şantiye
	DebtorSiteID   uint // malzemeyi kullanan şantiye
	Week           int  // ISO hafta
	Year           int  // ISO yıl
	CreatedBy      string
}

// Generate - Seçilen haftanın mahsuplaşmamış tahsislerinden "pending" bir
// mahsup üretir ve tahsisleri üzerine kilitler. Kilitleme koşullu update ile
// yapılır: aynı bakiyeye eşzamanlı iki Generate çağrısından yalnızca biri
// satırları alabilir, diğeri ErrNoBalanceFound ile döner.
func (s *Service) Generate(in GenerateInput) (*models.InterSiteSettlement, error) {
	var stl *models.InterSiteSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		stl, err = s.generateTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stl, nil
}

func (s *Service) generateTx(tx *gorm.DB, in GenerateInput) (*models.InterSiteSettlement, error) {
	// Alacaklının bu gruptaki partileri
	var batchIDs []uint
	if err := tx.Model(&models.GroupStockBatch{}).
		Where("group_id = ? AND paying_site_id = ?", in.GroupID, in.CreditorSiteID).
		Pluck("id", &batchIDs).Error; err != nil {
		return nil, err
	}
	if len(batchIDs) == 0 {
		return nil, ErrNoBalanceFound
	}

	// Borçlunun bu partilerdeki mahsuplaşmamış tahsisleri, hafta filtresi
	// Go tarafında (ISO hafta SQL'de taşınabilir değil)
	var candidates []models.BatchUsageAllocation
	if err := tx.Where("batch_id IN ? AND site_id = ? AND is_payer = ? AND settlement_id IS NULL",
		batchIDs, in.DebtorSiteID, false).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	total := decimal.Zero
	allocIDs := make([]uint, 0, len(candidates))
	batchSet := make(map[uint]struct{})
	for _, a := range candidates {
		year, week := a.Date.ISOWeek()
		if week != in.Week || year != in.Year {
			continue
		}
		total = total.Add(decimal.NewFromFloat(a.Amount))
		allocIDs = append(allocIDs, a.ID)
		batchSet[a.BatchID] = struct{}{}
	}
	if len(allocIDs) == 0 {
		return nil, ErrNoBalanceFound
	}

	stl := &models.InterSiteSettlement{
		Code:        newSettlementCode(),
		GroupID:     in.GroupID,
		FromSiteID:  in.CreditorSiteID,
		ToSiteID:    in.DebtorSiteID,
		TotalAmount: total.InexactFloat64(),
		Week:        in.Week,
		Year:        in.Year,
		Status:      models.SettlementStatusPending,
		CreatedBy:   in.CreatedBy,
	}
	// Tek partiden geliyorsa referansı tut
	if len(batchSet) == 1 {
		for bid := range batchSet {
			b := bid
			stl.BatchID = &b
		}
	}
	if err := tx.Create(stl).Error; err != nil {
		return nil, fmt.Errorf("mahsup kaydedilemedi: %w", err)
	}

	// Tahsisleri kilitle: sadece hala boşta olanlar alınır
	res := tx.Model(&models.BatchUsageAllocation{}).
		Where("id IN ? AND settlement_id IS NULL", allocIDs).
		Update("settlement_id", stl.ID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != int64(len(allocIDs)) {
		// Yarış kaybedildi: başka bir mahsup satırları önce aldı
		return nil, ErrNoBalanceFound
	}

	return stl, nil
}

// Approve - pending -> approved. Başka hiçbir durumdan onay verilemez.
func (s *Service) Approve(settlementID uint, approvedBy string) (*models.InterSiteSettlement, error) {
	var stl models.InterSiteSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&stl, settlementID).Error; err != nil {
			return err
		}
		if stl.Status != models.SettlementStatusPending {
			return ErrInvalidTransition
		}
		res := tx.Model(&models.InterSiteSettlement{}).
			Where("id = ? AND status = ?", stl.ID, models.SettlementStatusPending).
			Update("status", models.SettlementStatusApproved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		stl.Status = models.SettlementStatusApproved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stl, nil
}

type PaymentInput struct {
	Amount      float64
	PayerSource string
	PaymentMode string
	Date        time.Time
	RecordedBy  string
}

// RecordPayment - Ödemeyi kaydeder ve mahsubu "settled" yapar. Hem pending
// hem approved durumundan ödenebilir; onay adımı atlanabilir.
func (s *Service) RecordPayment(settlementID uint, in PaymentInput) (*models.InterSiteSettlement, error) {
	var stl models.InterSiteSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&stl, settlementID).Error; err != nil {
			return err
		}
		return s.recordPaymentTx(tx, &stl, in)
	})
	if err != nil {
		return nil, err
	}
	return &stl, nil
}

func (s *Service) recordPaymentTx(tx *gorm.DB, stl *models.InterSiteSettlement, in PaymentInput) error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if stl.Status != models.SettlementStatusPending && stl.Status != models.SettlementStatusApproved {
		return ErrInvalidTransition
	}

	payment := models.SettlementPayment{
		SettlementID: stl.ID,
		Amount:       in.Amount,
		PayerSource:  in.PayerSource,
		PaymentMode:  in.PaymentMode,
		Date:         in.Date,
		RecordedBy:   in.RecordedBy,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return fmt.Errorf("ödeme kaydedilemedi: %w", err)
	}

	now := time.Now()
	paid := decimal.NewFromFloat(stl.PaidAmount).Add(decimal.NewFromFloat(in.Amount))

	// Durum geçişi koşullu: okuma ile yazma arasında başka bir işlem
	// (örneğin iptal) durumu değiştirdiyse satır eşleşmez ve transaction
	// ödeme satırıyla birlikte geri alınır.
	res := tx.Model(&models.InterSiteSettlement{}).
		Where("id = ? AND status IN ?", stl.ID,
			[]models.SettlementStatus{models.SettlementStatusPending, models.SettlementStatusApproved}).
		Updates(map[string]interface{}{
			"paid_amount": paid.InexactFloat64(),
			"status":      models.SettlementStatusSettled,
			"settled_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}

	stl.PaidAmount = paid.InexactFloat64()
	stl.Status = models.SettlementStatusSettled
	stl.SettledAt = &now
	stl.Payments = append(stl.Payments, payment)

	return nil
}

// Cancel - Mahsubu iptal eder ve kilitlediği tahsisleri serbest bırakır;
// bakiye bir sonraki okuyuşta yeniden görünür. "settled" mahsuplarda iptal
// yıkıcıdır: ödeme kayıtları silinir, ödenen tutar sıfırlanır.
func (s *Service) Cancel(settlementID uint, reason string, cancelledBy string) (*models.InterSiteSettlement, error) {
	var stl models.InterSiteSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&stl, settlementID).Error; err != nil {
			return err
		}
		prevStatus := stl.Status

		switch prevStatus {
		case models.SettlementStatusPending, models.SettlementStatusApproved:
			// ödeme yok, doğrudan iptal
		case models.SettlementStatusSettled:
			// yıkıcı geri alma: ödemeler gider, tutar sıfırlanır
			if err := tx.Where("settlement_id = ?", stl.ID).
				Delete(&models.SettlementPayment{}).Error; err != nil {
				return err
			}
			stl.PaidAmount = 0
			stl.SettledAt = nil
			stl.Payments = nil
		default:
			return ErrInvalidTransition
		}

		// Tahsisleri serbest bırak
		if err := tx.Model(&models.BatchUsageAllocation{}).
			Where("settlement_id = ?", stl.ID).
			Update("settlement_id", nil).Error; err != nil {
			return err
		}

		now := time.Now()
		stl.Status = models.SettlementStatusCancelled
		stl.CancelledAt = &now
		stl.CancelReason = strings.TrimSpace(reason)
		stl.CancelledBy = cancelledBy

		// Koşullu geçiş: okunan durum bu arada değiştiyse (örneğin ödeme
		// girildiyse) iptal uygulanmaz, transaction geri alınır.
		res := tx.Model(&models.InterSiteSettlement{}).
			Where("id = ? AND status = ?", stl.ID, prevStatus).
			Updates(map[string]interface{}{
				"paid_amount":   stl.PaidAmount,
				"settled_at":    stl.SettledAt,
				"status":        models.SettlementStatusCancelled,
				"cancelled_at":  now,
				"cancel_reason": stl.CancelReason,
				"cancelled_by":  cancelledBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stl, nil
}

// Delete - Sadece iptal edilmiş mahsup silinebilir. Diğer her durum önce
// Cancel'dan geçmek zorunda.
func (s *Service) Delete(settlementID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stl models.InterSiteSettlement
		if err := tx.First(&stl, settlementID).Error; err != nil {
			return err
		}
		if stl.Status != models.SettlementStatusCancelled {
			return ErrInvalidTransition
		}
		if err := tx.Where("settlement_id = ?", stl.ID).
			Delete(&models.SettlementPayment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.InterSiteSettlement{}, stl.ID).Error
	})
}

// DeleteUnsettledUsage - Bir şantiyenin partideki mahsuplaşmamış kullanım
// kayıtlarını siler ve düşülen miktarları kaleme geri yazar. Hedef tahsislerden
// herhangi biri canlı bir mahsuba bağlıysa hiçbir şey silinmez.
func (s *Service) DeleteUnsettledUsage(batchID, siteID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var batch models.GroupStockBatch
		if err := tx.First(&batch, batchID).Error; err != nil {
			return err
		}
		return s.deleteUsageTx(tx, []uint{batchID}, siteID)
	})
}

// DeleteUnsettledUsageBetween - Borçlunun, alacaklının gruptaki TÜM
// partilerindeki mahsuplaşmamış kullanımlarını tek seferde geri alır.
// Parti bazlı varyantla aynı ya-hep-ya-hiç kuralı geçerlidir.
func (s *Service) DeleteUnsettledUsageBetween(groupID, creditorSiteID, debtorSiteID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var batchIDs []uint
		if err := tx.Model(&models.GroupStockBatch{}).
			Where("group_id = ? AND paying_site_id = ?", groupID, creditorSiteID).
			Pluck("id", &batchIDs).Error; err != nil {
			return err
		}
		if len(batchIDs) == 0 {
			return gorm.ErrRecordNotFound
		}
		return s.deleteUsageTx(tx, batchIDs, debtorSiteID)
	})
}

type restoreKey struct {
	batchID    uint
	materialID uint
}

func (s *Service) deleteUsageTx(tx *gorm.DB, batchIDs []uint, siteID uint) error {
	var allocs []models.BatchUsageAllocation
	if err := tx.Where("batch_id IN ? AND site_id = ?", batchIDs, siteID).
		Find(&allocs).Error; err != nil {
		return err
	}
	if len(allocs) == 0 {
		return gorm.ErrRecordNotFound
	}

	txIDs := make([]uint, 0, len(allocs))
	allocIDs := make([]uint, 0, len(allocs))
	batchSet := make(map[uint]struct{})
	restore := make(map[restoreKey]decimal.Decimal) // kaleme geri yazılacak miktar
	for _, a := range allocs {
		txIDs = append(txIDs, a.TransactionID)
		allocIDs = append(allocIDs, a.ID)
		batchSet[a.BatchID] = struct{}{}
		key := restoreKey{batchID: a.BatchID, materialID: a.MaterialID}
		restore[key] = restore[key].Add(decimal.NewFromFloat(a.QuantityUsed))
	}

	// Kilit kontrolü silmenin kendisinde: satırlardan herhangi biri bu arada
	// bir mahsuba bağlandıysa silinen sayı tutmaz ve işlem geri alınır.
	// Okuyup Go'da kontrol etmek yetmez; commit edilmiş eşzamanlı bir
	// Generate, Find ile Delete arasında satırı sahiplenebilir.
	res := tx.Where("id IN ? AND settlement_id IS NULL", allocIDs).
		Delete(&models.BatchUsageAllocation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(allocIDs)) {
		return groupstock.ErrAllocationClaimed
	}

	for key, qty := range restore {
		if err := tx.Model(&models.GroupStockBatchItem{}).
			Where("batch_id = ? AND material_id = ?", key.batchID, key.materialID).
			Update("remaining_qty", gorm.Expr("remaining_qty + ?", qty.InexactFloat64())).Error; err != nil {
			return err
		}
	}

	if err := tx.Unscoped().Where("id IN ?", txIDs).
		Delete(&models.GroupStockTransaction{}).Error; err != nil {
		return err
	}

	// Parti durumlarını yeniden türet: hiç tahsis kalmadıysa "recorded"
	for batchID := range batchSet {
		var remaining int64
		if err := tx.Model(&models.BatchUsageAllocation{}).
			Where("batch_id = ?", batchID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Model(&models.GroupStockBatch{}).
				Where("id = ? AND status = ?", batchID, models.BatchStatusPartialUsed).
				Update("status", models.BatchStatusRecorded).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
