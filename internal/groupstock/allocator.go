package groupstock

import (
	"fmt"

	"santiye-backend/internal/models"

	"github.com/shopspring/decimal"
)

// NegativeRemainderError - Parti tutarından fazlası başka şantiyelere tahsis
// edilmiş demektir. Bu bir veri bütünlüğü hatasıdır; sıfıra yuvarlanmaz,
// olduğu gibi yukarı taşınır ki gerçek bir fazla harcama gizlenmesin.
type NegativeRemainderError struct {
	BatchID      uint
	BatchCode    string
	TotalAmount  float64
	UsedByOthers float64
}

func (e *NegativeRemainderError) Error() string {
	return fmt.Sprintf("parti %s (%d): diğer şantiyelerin tüketimi (%.2f TL) parti tutarını (%.2f TL) aşıyor",
		e.BatchCode, e.BatchID, e.UsedByOthers, e.TotalAmount)
}

// PayerRemainder - Partinin, ödeyen şantiyenin kendi tüketimi sayılan payını
// hesaplar: toplam tutar eksi diğer şantiyelerin tahsis toplamı. Bu pay hiçbir
// zaman borç doğurmaz ve bakiyelerde görünmez.
//
// Hesap saf ve yan etkisizdir; her okuyuşta tahsis satırlarından yeniden
// türetilir, ayrı bir kolonda saklanmaz. float toplama hatası birikmesin diye
// aritmetik decimal ile yapılır.
func PayerRemainder(batch *models.GroupStockBatch, allocs []models.BatchUsageAllocation) (float64, error) {
	usedByOthers := decimal.Zero
	for _, a := range allocs {
		if a.IsPayer || a.SiteID == batch.PayingSiteID {
			continue
		}
		usedByOthers = usedByOthers.Add(decimal.NewFromFloat(a.Amount))
	}

	remainder := decimal.NewFromFloat(batch.TotalAmount).Sub(usedByOthers)
	if remainder.IsNegative() {
		return 0, &NegativeRemainderError{
			BatchID:      batch.ID,
			BatchCode:    batch.Code,
			TotalAmount:  batch.TotalAmount,
			UsedByOthers: usedByOthers.InexactFloat64(),
		}
	}

	return remainder.InexactFloat64(), nil
}

// ItemRemainders - Malzeme bazında kalan miktar: kalem miktarı eksi diğer
// şantiyelerin o malzeme için kullandığı miktar. Negatif değer aynı şekilde
// olduğu gibi döner; gösteren taraf fazla kullanımı görebilsin.
func ItemRemainders(batch *models.GroupStockBatch, allocs []models.BatchUsageAllocation) map[uint]float64 {
	used := make(map[uint]decimal.Decimal, len(batch.Items))
	for _, a := range allocs {
		if a.IsPayer || a.SiteID == batch.PayingSiteID {
			continue
		}
		used[a.MaterialID] = used[a.MaterialID].Add(decimal.NewFromFloat(a.QuantityUsed))
	}

	out := make(map[uint]float64, len(batch.Items))
	for _, item := range batch.Items {
		out[item.MaterialID] = decimal.NewFromFloat(item.Quantity).Sub(used[item.MaterialID]).InexactFloat64()
	}
	return out
}
