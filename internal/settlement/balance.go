package settlement

import (
	"sort"

	"santiye-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Balance - İki şantiye arasında, bir ISO haftası için biriken borç.
// Kalıcı bir tablo değildir; her okuyuşta tahsis satırlarından türetilir.
type Balance struct {
	CreditorSiteID   uint    `json:"creditor_site_id"` // partiyi ödeyen (alacaklı)
	DebtorSiteID     uint    `json:"debtor_site_id"`   // malzemeyi kullanan (borçlu)
	Week             int     `json:"week"`
	Year             int     `json:"year"`
	TotalAmountOwed  float64 `json:"total_amount_owed"`
	TransactionCount int     `json:"transaction_count"`
}

type balanceKey struct {
	creditor uint
	debtor   uint
	week     int
	year     int
}

// AggregateBalances - Mahsuplaşmamış tahsis satırlarını (alacaklı, borçlu,
// ISO hafta, ISO yıl) dörtlüsüne göre gruplar. Ödeyen şantiyenin kendi
// tüketimi ve canlı bir mahsuba bağlanmış satırlar hesaba girmez.
// payingSiteByBatch, tahsisin ait olduğu partinin ödeyen şantiyesini verir.
func AggregateBalances(allocs []models.BatchUsageAllocation, payingSiteByBatch map[uint]uint) []Balance {
	sums := make(map[balanceKey]decimal.Decimal)
	counts := make(map[balanceKey]int)

	for _, a := range allocs {
		if a.IsPayer || a.SettlementID != nil {
			continue
		}
		creditor, ok := payingSiteByBatch[a.BatchID]
		if !ok || creditor == a.SiteID {
			continue
		}

		year, week := a.Date.ISOWeek()
		key := balanceKey{creditor: creditor, debtor: a.SiteID, week: week, year: year}
		sums[key] = sums[key].Add(decimal.NewFromFloat(a.Amount))
		counts[key]++
	}

	out := make([]Balance, 0, len(sums))
	for key, total := range sums {
		out = append(out, Balance{
			CreditorSiteID:   key.creditor,
			DebtorSiteID:     key.debtor,
			Week:             key.week,
			Year:             key.year,
			TotalAmountOwed:  total.InexactFloat64(),
			TransactionCount: counts[key],
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Week != out[j].Week {
			return out[i].Week < out[j].Week
		}
		if out[i].CreditorSiteID != out[j].CreditorSiteID {
			return out[i].CreditorSiteID < out[j].CreditorSiteID
		}
		return out[i].DebtorSiteID < out[j].DebtorSiteID
	})
	return out
}

// ListBalances - Grubun mahsuplaşmamış haftalık bakiyeleri.
func (s *Service) ListBalances(groupID uint) ([]Balance, error) {
	var batches []models.GroupStockBatch
	if err := s.db.Select("id", "paying_site_id").
		Where("group_id = ?", groupID).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return []Balance{}, nil
	}

	payingSiteByBatch := make(map[uint]uint, len(batches))
	batchIDs := make([]uint, 0, len(batches))
	for _, b := range batches {
		payingSiteByBatch[b.ID] = b.PayingSiteID
		batchIDs = append(batchIDs, b.ID)
	}

	var allocs []models.BatchUsageAllocation
	if err := s.db.Where("batch_id IN ? AND is_payer = ? AND settlement_id IS NULL", batchIDs, false).
		Find(&allocs).Error; err != nil {
		return nil, err
	}

	return AggregateBalances(allocs, payingSiteByBatch), nil
}
