package groupstock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"santiye-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrSiteNotInGroup - şantiye partinin grubuna üye değil
	ErrSiteNotInGroup = errors.New("şantiye bu grubun üyesi değil")

	// ErrBatchCompleted - kapatılmış parti üzerinde işlem yapılamaz
	ErrBatchCompleted = errors.New("parti kapatılmış")

	// ErrMaterialNotInBatch - malzeme partide yok
	ErrMaterialNotInBatch = errors.New("malzeme bu partide yok")

	// ErrQuantityExceedsRemaining - kullanım miktarı kalan miktarı aşıyor
	ErrQuantityExceedsRemaining = errors.New("kullanım miktarı partideki kalan miktarı aşıyor")

	// ErrAllocationClaimed - tahsis canlı bir mahsuba bağlı; önce mahsup
	// iptal edilmeli
	ErrAllocationClaimed = errors.New("tahsis canlı bir mahsuba bağlı")
)

// Service - Parti (toplu alım) ve kullanım kayıtları. Global DB yerine
// constructor ile verilen *gorm.DB üzerinde çalışır; çok adımlı yazmalar tek
// transaction içinde biter, yarım mutasyon dışarı sızmaz.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func newBatchCode() string {
	return fmt.Sprintf("PRT-%s", strings.ToUpper(uuid.NewString()[:8]))
}

type BatchItemInput struct {
	MaterialID uint
	Quantity   float64
	UnitCost   float64
}

type CreateBatchInput struct {
	GroupID      uint
	PayingSiteID uint
	Date         time.Time
	Note         string
	RecordedBy   string
	Items        []BatchItemInput
}

// CreateBatch - Grup adına yapılan toplu alımı kaydeder: parti + kalemler +
// her kalem için bir purchase defter satırı.
func (s *Service) CreateBatch(in CreateBatchInput) (*models.GroupStockBatch, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("parti en az bir kalem içermeli")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("kalem miktarı 0'dan büyük olmalı")
		}
		if item.UnitCost < 0 {
			return nil, fmt.Errorf("birim fiyat negatif olamaz")
		}
	}

	var batch *models.GroupStockBatch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var site models.Site
		if err := tx.First(&site, in.PayingSiteID).Error; err != nil {
			return fmt.Errorf("ödeyen şantiye bulunamadı: %w", err)
		}
		if site.GroupID == nil || *site.GroupID != in.GroupID {
			return ErrSiteNotInGroup
		}

		total := decimal.Zero
		items := make([]models.GroupStockBatchItem, 0, len(in.Items))
		for _, it := range in.Items {
			var material models.Material
			if err := tx.First(&material, it.MaterialID).Error; err != nil {
				return fmt.Errorf("malzeme bulunamadı (id=%d): %w", it.MaterialID, err)
			}
			lineTotal := decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.UnitCost))
			total = total.Add(lineTotal)
			items = append(items, models.GroupStockBatchItem{
				MaterialID:   it.MaterialID,
				Quantity:     it.Quantity,
				RemainingQty: it.Quantity,
				Unit:         material.Unit,
				UnitCost:     it.UnitCost,
				TotalCost:    lineTotal.InexactFloat64(),
			})
		}

		batch = &models.GroupStockBatch{
			Code:         newBatchCode(),
			GroupID:      in.GroupID,
			PayingSiteID: in.PayingSiteID,
			TotalAmount:  total.InexactFloat64(),
			Status:       models.BatchStatusRecorded,
			Date:         in.Date,
			Note:         strings.TrimSpace(in.Note),
			Items:        items,
		}
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("parti kaydedilemedi: %w", err)
		}

		// Her kalem için değişmez purchase satırı
		for _, item := range batch.Items {
			purchase := models.GroupStockTransaction{
				BatchID:    batch.ID,
				Type:       models.StockTxPurchase,
				SiteID:     in.PayingSiteID,
				MaterialID: item.MaterialID,
				Quantity:   item.Quantity,
				UnitCost:   item.UnitCost,
				TotalCost:  item.TotalCost,
				Date:       in.Date,
				RecordedBy: in.RecordedBy,
			}
			if err := tx.Create(&purchase).Error; err != nil {
				return fmt.Errorf("alım satırı kaydedilemedi: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

type RecordUsageInput struct {
	BatchID    uint
	SiteID     uint
	MaterialID uint
	Quantity   float64
	Date       time.Time
	RecordedBy string
}

// RecordUsage - Bir şantiyenin partiden malzeme kullanımını kaydeder: usage
// defter satırı + tahsis; kalem kalan miktarı düşer; parti durumu
// partial_used olur. Kalan miktar düşümü koşullu update ile yapılır; aynı
// kaleme eşzamanlı iki kullanım kalan miktarı eksiye düşüremez.
func (s *Service) RecordUsage(in RecordUsageInput) (*models.BatchUsageAllocation, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("kullanım miktarı 0'dan büyük olmalı")
	}

	var alloc *models.BatchUsageAllocation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var batch models.GroupStockBatch
		if err := tx.First(&batch, in.BatchID).Error; err != nil {
			return err
		}
		if batch.Status == models.BatchStatusCompleted {
			return ErrBatchCompleted
		}

		var site models.Site
		if err := tx.First(&site, in.SiteID).Error; err != nil {
			return fmt.Errorf("şantiye bulunamadı: %w", err)
		}
		if site.GroupID == nil || *site.GroupID != batch.GroupID {
			return ErrSiteNotInGroup
		}

		var item models.GroupStockBatchItem
		if err := tx.Where("batch_id = ? AND material_id = ?", in.BatchID, in.MaterialID).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMaterialNotInBatch
			}
			return err
		}

		// Koşullu düşüm: remaining_qty yeterliyse tek update ile azalt
		res := tx.Model(&models.GroupStockBatchItem{}).
			Where("id = ? AND remaining_qty >= ?", item.ID, in.Quantity).
			Update("remaining_qty", gorm.Expr("remaining_qty - ?", in.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuantityExceedsRemaining
		}

		amount := decimal.NewFromFloat(in.Quantity).Mul(decimal.NewFromFloat(item.UnitCost))

		usage := models.GroupStockTransaction{
			BatchID:    batch.ID,
			Type:       models.StockTxUsage,
			SiteID:     in.SiteID,
			MaterialID: in.MaterialID,
			Quantity:   in.Quantity,
			UnitCost:   item.UnitCost,
			TotalCost:  amount.InexactFloat64(),
			Date:       in.Date,
			RecordedBy: in.RecordedBy,
		}
		if err := tx.Create(&usage).Error; err != nil {
			return fmt.Errorf("kullanım satırı kaydedilemedi: %w", err)
		}

		alloc = &models.BatchUsageAllocation{
			BatchID:       batch.ID,
			SiteID:        in.SiteID,
			MaterialID:    in.MaterialID,
			TransactionID: usage.ID,
			Amount:        amount.InexactFloat64(),
			QuantityUsed:  in.Quantity,
			IsPayer:       in.SiteID == batch.PayingSiteID,
			Date:          in.Date,
		}
		if err := tx.Create(alloc).Error; err != nil {
			return fmt.Errorf("tahsis kaydedilemedi: %w", err)
		}

		if batch.Status == models.BatchStatusRecorded {
			if err := tx.Model(&models.GroupStockBatch{}).
				Where("id = ?", batch.ID).
				Update("status", models.BatchStatusPartialUsed).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// CloseBatch - Partiyi idari olarak kapatır: dokunulmamış kalan miktarlar
// ödeyen şantiyenin kendi kullanımı olarak zorla tahsis edilir ve parti
// "completed" olur. "completed" durumuna başka bir yol yoktur.
func (s *Service) CloseBatch(batchID uint, closedBy string) (*models.GroupStockBatch, error) {
	var batch models.GroupStockBatch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&batch, batchID).Error; err != nil {
			return err
		}
		if batch.Status == models.BatchStatusCompleted {
			return ErrBatchCompleted
		}

		now := time.Now()
		for i := range batch.Items {
			item := &batch.Items[i]
			if item.RemainingQty <= 0 {
				continue
			}

			amount := decimal.NewFromFloat(item.RemainingQty).Mul(decimal.NewFromFloat(item.UnitCost))

			usage := models.GroupStockTransaction{
				BatchID:    batch.ID,
				Type:       models.StockTxUsage,
				SiteID:     batch.PayingSiteID,
				MaterialID: item.MaterialID,
				Quantity:   item.RemainingQty,
				UnitCost:   item.UnitCost,
				TotalCost:  amount.InexactFloat64(),
				Date:       now,
				RecordedBy: closedBy,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return fmt.Errorf("kapanış kullanım satırı kaydedilemedi: %w", err)
			}

			alloc := models.BatchUsageAllocation{
				BatchID:       batch.ID,
				SiteID:        batch.PayingSiteID,
				MaterialID:    item.MaterialID,
				TransactionID: usage.ID,
				Amount:        amount.InexactFloat64(),
				QuantityUsed:  item.RemainingQty,
				IsPayer:       true,
				Date:          now,
			}
			if err := tx.Create(&alloc).Error; err != nil {
				return fmt.Errorf("kapanış tahsisi kaydedilemedi: %w", err)
			}

			if err := tx.Model(&models.GroupStockBatchItem{}).
				Where("id = ?", item.ID).
				Update("remaining_qty", 0).Error; err != nil {
				return err
			}
			item.RemainingQty = 0
		}

		batch.Status = models.BatchStatusCompleted
		return tx.Model(&models.GroupStockBatch{}).
			Where("id = ?", batch.ID).
			Update("status", models.BatchStatusCompleted).Error
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeletePurchase - Alımı kökten siler: parti, kalemler, defter satırları ve
// tahsisler birlikte gider. Herhangi bir tahsis canlı bir mahsuba bağlıysa
// silme reddedilir; önce mahsup iptal edilmeli. İptal edilmiş (cancelled)
// mahsuplar partiyle birlikte temizlenir.
func (s *Service) DeletePurchase(batchID uint, deletedBy string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var batch models.GroupStockBatch
		if err := tx.First(&batch, batchID).Error; err != nil {
			return err
		}

		// Kilit kontrolü koşullu silmede: sadece mahsuplaşmamış satırlar
		// silinir; sayı tutmuyorsa en az bir tahsis bu arada bir mahsuba
		// bağlanmış demektir ve işlem geri alınır. Okuyup Go'da kontrol
		// etmek yetmez; eşzamanlı bir Generate arada satırı sahiplenebilir.
		var total int64
		if err := tx.Model(&models.BatchUsageAllocation{}).
			Where("batch_id = ?", batchID).
			Count(&total).Error; err != nil {
			return err
		}
		res := tx.Where("batch_id = ? AND settlement_id IS NULL", batchID).
			Delete(&models.BatchUsageAllocation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != total {
			return ErrAllocationClaimed
		}
		// Defter satırları kalıcı silinir (soft delete değil)
		if err := tx.Unscoped().Where("batch_id = ?", batchID).
			Delete(&models.GroupStockTransaction{}).Error; err != nil {
			return err
		}

		// Bu partiye referans veren iptal edilmiş mahsuplar ve ödemeleri
		var cancelledIDs []uint
		if err := tx.Model(&models.InterSiteSettlement{}).
			Where("batch_id = ? AND status = ?", batchID, models.SettlementStatusCancelled).
			Pluck("id", &cancelledIDs).Error; err != nil {
			return err
		}
		if len(cancelledIDs) > 0 {
			if err := tx.Where("settlement_id IN ?", cancelledIDs).
				Delete(&models.SettlementPayment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.InterSiteSettlement{}, cancelledIDs).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("batch_id = ?", batchID).
			Delete(&models.GroupStockBatchItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GroupStockBatch{}, batchID).Error
	})
}
