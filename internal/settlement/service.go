package settlement

import (
	"santiye-backend/internal/groupstock"
	"santiye-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service - Mahsup yaşam döngüsü ve haftalık bakiye hesabı. groupstock.Service
// gibi global DB yerine constructor ile verilen *gorm.DB üzerinde çalışır.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type SettlePaymentInput struct {
	// SettlementID doluysa mevcut mahsup ödenir; boşsa aşağıdaki bakiye
	// koordinatlarından önce bir mahsup üretilir, sonra ödenir.
	SettlementID uint
	GroupID      uint
	CreditorID   uint
	DebtorID     uint
	Week         int
	Year         int
	Payment      PaymentInput
}

// SettlePayment - Bakiye ekranından tek adımda ödeme: gerekirse mahsubu üret,
// ödemeyi kaydet, hepsi tek transaction. Üretim ve ödeme ayrı ayrı da
// çağrılabilir; bu sadece ikisini atomik bağlayan kısayol.
func (s *Service) SettlePayment(in SettlePaymentInput) (*models.InterSiteSettlement, error) {
	var stl *models.InterSiteSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if in.SettlementID != 0 {
			var existing models.InterSiteSettlement
			if err := tx.First(&existing, in.SettlementID).Error; err != nil {
				return err
			}
			stl = &existing
		} else {
			var err error
			stl, err = s.generateTx(tx, GenerateInput{
				GroupID:        in.GroupID,
				CreditorSiteID: in.CreditorID,
				DebtorSiteID:   in.DebtorID,
				Week:           in.Week,
				Year:           in.Year,
				CreatedBy:      in.Payment.RecordedBy,
			})
			if err != nil {
				return err
			}
		}
		return s.recordPaymentTx(tx, stl, in.Payment)
	})
	if err != nil {
		return nil, err
	}
	return stl, nil
}

// Get - Mahsup detayı, ödemeleriyle birlikte.
func (s *Service) Get(settlementID uint) (*models.InterSiteSettlement, error) {
	var stl models.InterSiteSettlement
	if err := s.db.Preload("Payments").First(&stl, settlementID).Error; err != nil {
		return nil, err
	}
	return &stl, nil
}

// ListSettlements - Bir şantiyenin taraf olduğu mahsuplar (alacaklı veya
// borçlu), istenirse duruma göre filtreli.
func (s *Service) ListSettlements(siteID uint, status models.SettlementStatus) ([]models.InterSiteSettlement, error) {
	dbq := s.db.Preload("Payments").
		Where("from_site_id = ? OR to_site_id = ?", siteID, siteID)
	if status != "" {
		dbq = dbq.Where("status = ?", status)
	}

	var settlements []models.InterSiteSettlement
	if err := dbq.Order("year desc, week desc, id desc").Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}

// SiteSummary - Bir şantiyenin grup stoğundaki mali özeti.
type SiteSummary struct {
	SiteID             uint    `json:"site_id"`
	SiteName           string  `json:"site_name"`
	TotalPaid          float64 `json:"total_paid"`           // ödediği partilerin toplamı
	TotalUsed          float64 `json:"total_used"`           // tükettiği malzemenin toplam değeri
	SettlementPaid     float64 `json:"settlement_paid"`      // mahsuplarla ödediği
	SettlementReceived float64 `json:"settlement_received"`  // mahsuplarla tahsil ettiği
}

// SiteSummaries - Gruptaki her şantiye için özet. TotalUsed, şantiyenin
// başka partilerdeki tahsisleri artı kendi partilerindeki ödeyen payıdır;
// ödeyen payı her seferinde yeniden hesaplanır.
func (s *Service) SiteSummaries(groupID uint) ([]SiteSummary, error) {
	var sites []models.Site
	if err := s.db.Where("group_id = ?", groupID).Order("id asc").Find(&sites).Error; err != nil {
		return nil, err
	}

	var batches []models.GroupStockBatch
	if err := s.db.Where("group_id = ?", groupID).Find(&batches).Error; err != nil {
		return nil, err
	}

	batchIDs := make([]uint, 0, len(batches))
	for _, b := range batches {
		batchIDs = append(batchIDs, b.ID)
	}

	var allocs []models.BatchUsageAllocation
	if len(batchIDs) > 0 {
		if err := s.db.Where("batch_id IN ?", batchIDs).Find(&allocs).Error; err != nil {
			return nil, err
		}
	}

	allocsByBatch := make(map[uint][]models.BatchUsageAllocation)
	for _, a := range allocs {
		allocsByBatch[a.BatchID] = append(allocsByBatch[a.BatchID], a)
	}

	var settlements []models.InterSiteSettlement
	if err := s.db.Where("group_id = ? AND status = ?", groupID, models.SettlementStatusSettled).
		Find(&settlements).Error; err != nil {
		return nil, err
	}

	summaries := make([]SiteSummary, 0, len(sites))
	for _, site := range sites {
		paid := decimal.Zero
		used := decimal.Zero

		for i := range batches {
			b := &batches[i]
			if b.PayingSiteID == site.ID {
				paid = paid.Add(decimal.NewFromFloat(b.TotalAmount))
				// Kendi partisindeki payı: toplam eksi diğerlerinin tüketimi
				remainder, err := groupstock.PayerRemainder(b, allocsByBatch[b.ID])
				if err != nil {
					return nil, err
				}
				used = used.Add(decimal.NewFromFloat(remainder))
				continue
			}
			for _, a := range allocsByBatch[b.ID] {
				if a.SiteID == site.ID && !a.IsPayer {
					used = used.Add(decimal.NewFromFloat(a.Amount))
				}
			}
		}

		stlPaid := decimal.Zero
		stlReceived := decimal.Zero
		for _, stl := range settlements {
			if stl.ToSiteID == site.ID {
				stlPaid = stlPaid.Add(decimal.NewFromFloat(stl.PaidAmount))
			}
			if stl.FromSiteID == site.ID {
				stlReceived = stlReceived.Add(decimal.NewFromFloat(stl.PaidAmount))
			}
		}

		summaries = append(summaries, SiteSummary{
			SiteID:             site.ID,
			SiteName:           site.Name,
			TotalPaid:          paid.InexactFloat64(),
			TotalUsed:          used.InexactFloat64(),
			SettlementPaid:     stlPaid.InexactFloat64(),
			SettlementReceived: stlReceived.InexactFloat64(),
		})
	}

	return summaries, nil
}
