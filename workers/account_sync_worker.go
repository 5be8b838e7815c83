package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"break-timer-system/models"
	"break-timer-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// remoteAccount matches the accounts service's change-feed JSON.
type remoteAccount struct {
	ExternalID       string    `json:"external_id"`
	Email            string    `json:"email"`
	SubscriptionTier string    `json:"subscription_tier"`
	Timezone         string    `json:"timezone"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type accountChangesResponse struct {
	Accounts []remoteAccount `json:"accounts"`
}

// AccountSyncWorker mirrors subscription tier and timezone from the accounts
// service into the local user_accounts table. The timer service never calls
// the accounts service on the request path: quota checks and day boundaries
// read only the local mirror.
type AccountSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/internal/accounts/changes"
	serviceToken string
}

func NewAccountSyncWorker(db *gorm.DB, accountsServiceBaseURL, endpointPath, serviceToken string) *AccountSyncWorker {
	return &AccountSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      accountsServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
	}
}

func (w *AccountSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Account Sync Worker (accounts-service → user_accounts)…")
	go w.run(ctx)
}

func (w *AccountSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial account sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.lastSyncTime()); err != nil {
				log.Printf("❌ Account sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Account Sync Worker stopped")
			return
		}
	}
}

// lastSyncTime is the most recent UpdatedAt in the local mirror, used as the
// incremental cursor.
func (w *AccountSyncWorker) lastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM user_accounts WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

func (w *AccountSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid accounts service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to accounts service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("accounts service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response accountChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode accounts service response: %w", err)
	}
	if len(response.Accounts) == 0 {
		return nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Accounts {
		tier := models.SubscriptionTier(remote.SubscriptionTier)
		if tier != models.TierPremium {
			tier = models.TierFree
		}

		local := models.UserAccount{
			ID:               uuid.NewString(),
			ExternalUserID:   remote.ExternalID,
			Email:            remote.Email,
			SubscriptionTier: tier,
			Timezone:         remote.Timezone,
		}
		local.UpdatedAt = remote.UpdatedAt

		err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "subscription_tier", "timezone", "updated_at",
			}),
		}).Create(&local).Error
		if err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert user_account (external_id=%q): %v", remote.ExternalID, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d account(s) (%d upserted, %d errors)", len(response.Accounts), upsertCount, errorCount)
	return nil
}
