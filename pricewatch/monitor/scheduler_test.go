package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
)

type fakeTrackedRepo struct {
	due []models.TrackedProduct
	err error
}

func (f *fakeTrackedRepo) Create(ctx context.Context, tp *models.TrackedProduct) error { return nil }
func (f *fakeTrackedRepo) GetByID(ctx context.Context, id int64) (*models.TrackedProduct, error) {
	return nil, nil
}
func (f *fakeTrackedRepo) GetAll(ctx context.Context) ([]models.TrackedProduct, error) {
	return nil, nil
}
func (f *fakeTrackedRepo) GetDue(ctx context.Context, now time.Time) ([]models.TrackedProduct, error) {
	return f.due, f.err
}
func (f *fakeTrackedRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error { return nil }
func (f *fakeTrackedRepo) Touch(ctx context.Context, id int64, checkedAt time.Time) error {
	return nil
}
func (f *fakeTrackedRepo) Delete(ctx context.Context, id int64) error { return nil }

func trackedURL(id int64, site, url string) models.TrackedProduct {
	return models.TrackedProduct{ID: id, Site: site, URL: &url}
}

func TestScheduler_SelectDue(t *testing.T) {
	tests := []struct {
		name    string
		due     []models.TrackedProduct
		perSite int
		wantIDs []int64
	}{
		{
			name:    "empty",
			due:     nil,
			perSite: 1,
			wantIDs: nil,
		},
		{
			name: "duplicate urls keep the stalest entry",
			due: []models.TrackedProduct{
				trackedURL(1, "amazon", "https://amazon.com/dp/A"),
				trackedURL(2, "amazon", "https://amazon.com/dp/A"),
				trackedURL(3, "amazon", "https://amazon.com/dp/B"),
			},
			perSite: 1,
			wantIDs: []int64{1, 3},
		},
		{
			name: "sites are interleaved round robin",
			due: []models.TrackedProduct{
				trackedURL(1, "amazon", "https://amazon.com/dp/A"),
				trackedURL(2, "amazon", "https://amazon.com/dp/B"),
				trackedURL(3, "amazon", "https://amazon.com/dp/C"),
				trackedURL(4, "burton", "https://burton.com/p/X"),
				trackedURL(5, "burton", "https://burton.com/p/Y"),
			},
			perSite: 1,
			wantIDs: []int64{1, 4, 2, 5, 3},
		},
		{
			name: "per site cap of two",
			due: []models.TrackedProduct{
				trackedURL(1, "amazon", "https://amazon.com/dp/A"),
				trackedURL(2, "amazon", "https://amazon.com/dp/B"),
				trackedURL(3, "amazon", "https://amazon.com/dp/C"),
				trackedURL(4, "burton", "https://burton.com/p/X"),
			},
			perSite: 2,
			wantIDs: []int64{1, 2, 4, 3},
		},
		{
			name: "site inferred from url when empty",
			due: []models.TrackedProduct{
				trackedURL(1, "", "https://www.amazon.com/dp/A"),
				trackedURL(2, "", "https://www.burton.com/p/X"),
				trackedURL(3, "", "https://www.amazon.com/dp/B"),
			},
			perSite: 1,
			wantIDs: []int64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&fakeTrackedRepo{due: tt.due}, SchedulerConfig{SitePerCap: tt.perSite})
			got, err := s.SelectDue(context.Background(), time.Now())
			if err != nil {
				t.Fatalf("SelectDue() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("SelectDue() returned %d items, want %d", len(got), len(tt.wantIDs))
			}
			for i, tp := range got {
				if tp.ID != tt.wantIDs[i] {
					t.Errorf("SelectDue()[%d].ID = %d, want %d", i, tp.ID, tt.wantIDs[i])
				}
			}
		})
	}
}
