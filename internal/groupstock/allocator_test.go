package groupstock

import (
	"testing"
	"time"

	"santiye-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alloc(siteID, materialID uint, amount, qty float64, isPayer bool) models.BatchUsageAllocation {
	return models.BatchUsageAllocation{
		SiteID:       siteID,
		MaterialID:   materialID,
		Amount:       amount,
		QuantityUsed: qty,
		IsPayer:      isPayer,
		Date:         time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC),
	}
}

func TestPayerRemainder(t *testing.T) {
	batch := &models.GroupStockBatch{
		ID:           1,
		Code:         "PRT-TEST0001",
		PayingSiteID: 10,
		TotalAmount:  10000,
	}

	tests := []struct {
		name   string
		allocs []models.BatchUsageAllocation
		want   float64
	}{
		{
			name:   "kullanım yoksa payın tamamı ödeyende",
			allocs: nil,
			want:   10000,
		},
		{
			name: "diğer şantiyelerin tüketimi düşülür",
			allocs: []models.BatchUsageAllocation{
				alloc(20, 1, 3000, 300, false),
				alloc(30, 1, 2500, 250, false),
			},
			want: 4500,
		},
		{
			name: "ödeyenin kendi tüketimi payı azaltmaz",
			allocs: []models.BatchUsageAllocation{
				alloc(20, 1, 3000, 300, false),
				alloc(10, 1, 4000, 400, true),
			},
			want: 7000,
		},
		{
			name: "is_payer işaretsiz olsa bile ödeyenin satırı atlanır",
			allocs: []models.BatchUsageAllocation{
				alloc(10, 1, 4000, 400, false),
				alloc(20, 1, 1000, 100, false),
			},
			want: 9000,
		},
		{
			name: "tamamı tüketilince pay sıfır",
			allocs: []models.BatchUsageAllocation{
				alloc(20, 1, 6000, 600, false),
				alloc(30, 1, 4000, 400, false),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PayerRemainder(batch, tt.allocs)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestPayerRemainder_NegatifPayHataDondurur(t *testing.T) {
	batch := &models.GroupStockBatch{
		ID:           7,
		Code:         "PRT-NEG00001",
		PayingSiteID: 10,
		TotalAmount:  1000,
	}
	allocs := []models.BatchUsageAllocation{
		alloc(20, 1, 700, 70, false),
		alloc(30, 1, 600, 60, false),
	}

	_, err := PayerRemainder(batch, allocs)
	require.Error(t, err)

	var nre *NegativeRemainderError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, uint(7), nre.BatchID)
	assert.Equal(t, "PRT-NEG00001", nre.BatchCode)
	assert.InDelta(t, 1300, nre.UsedByOthers, 0.001)
}

func TestPayerRemainder_KucukKesirliTutarlarBirikmez(t *testing.T) {
	// 0.1'lik yüz satır float ile toplanınca 10.000000000002 gibi değerler
	// üretir; decimal toplama bunu engellemeli
	batch := &models.GroupStockBatch{
		ID:           2,
		Code:         "PRT-FRAC0001",
		PayingSiteID: 10,
		TotalAmount:  10,
	}
	var allocs []models.BatchUsageAllocation
	for i := 0; i < 100; i++ {
		allocs = append(allocs, alloc(20, 1, 0.1, 1, false))
	}

	got, err := PayerRemainder(batch, allocs)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestItemRemainders(t *testing.T) {
	batch := &models.GroupStockBatch{
		ID:           3,
		Code:         "PRT-ITEM0001",
		PayingSiteID: 10,
		TotalAmount:  5000,
		Items: []models.GroupStockBatchItem{
			{MaterialID: 1, Quantity: 1000},
			{MaterialID: 2, Quantity: 50},
		},
	}
	allocs := []models.BatchUsageAllocation{
		alloc(20, 1, 300, 300, false),
		alloc(30, 1, 200, 200, false),
		alloc(10, 2, 100, 10, true), // ödeyenin kendi tüketimi sayılmaz
	}

	got := ItemRemainders(batch, allocs)
	require.Len(t, got, 2)
	assert.InDelta(t, 500, got[1], 0.001)
	assert.InDelta(t, 50, got[2], 0.001)
}

func TestItemRemainders_NegatifDegerOlduGibiDoner(t *testing.T) {
	batch := &models.GroupStockBatch{
		ID:           4,
		Code:         "PRT-ITEM0002",
		PayingSiteID: 10,
		Items: []models.GroupStockBatchItem{
			{MaterialID: 1, Quantity: 100},
		},
	}
	allocs := []models.BatchUsageAllocation{
		alloc(20, 1, 1200, 120, false),
	}

	got := ItemRemainders(batch, allocs)
	assert.InDelta(t, -20, got[1], 0.001)
}
