package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"taskroute/internal/engine"
	"taskroute/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in name order. Dev helper;
// production deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("migrate %s: %w", f, err)
		}
		if _, err := p.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("migrate %s: %w", f, err)
		}
	}
	return nil
}

func (p *Postgres) SavePlan(ctx context.Context, plan model.Plan) error {
	report, err := json.Marshal(plan.Report)
	if err != nil {
		return fmt.Errorf("save plan %s: marshal report: %w", plan.ID, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO plans (id, tenant_id, mode, algorithm, status, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, report = EXCLUDED.report`,
		plan.ID, plan.TenantID, plan.Mode, plan.Algorithm, plan.Status, report)
	if err != nil {
		return fmt.Errorf("save plan %s: %w", plan.ID, err)
	}
	return nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	var plan model.Plan
	var report []byte
	var createdAt time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, mode, algorithm, status, report, created_at
		FROM plans WHERE id = $1 AND tenant_id = $2`, planID, tenantID).
		Scan(&plan.ID, &plan.TenantID, &plan.Mode, &plan.Algorithm, &plan.Status, &report, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, ErrNotFound
	}
	if err != nil {
		return model.Plan{}, err
	}
	plan.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	if err := json.Unmarshal(report, &plan.Report); err != nil {
		return model.Plan{}, fmt.Errorf("get plan %s: unmarshal report: %w", planID, err)
	}
	return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.Plan, string, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []any{tenantID, limit + 1}
	q := `SELECT id, tenant_id, mode, algorithm, status, report, created_at
		FROM plans WHERE tenant_id = $1`
	if cursor != "" {
		q += ` AND created_at < (SELECT created_at FROM plans WHERE id = $3)`
		args = append(args, cursor)
	}
	q += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Plan{}
	for rows.Next() {
		var plan model.Plan
		var report []byte
		var createdAt time.Time
		if err := rows.Scan(&plan.ID, &plan.TenantID, &plan.Mode, &plan.Algorithm, &plan.Status, &report, &createdAt); err != nil {
			return nil, "", err
		}
		plan.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		if err := json.Unmarshal(report, &plan.Report); err != nil {
			return nil, "", err
		}
		out = append(out, plan)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.TenantID, s.URL, events, s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []any{tenantID, limit + 1}
	q := `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id = $1`
	if cursor != "" {
		q += ` AND id > $3`
		args = append(args, cursor)
	}
	q += ` ORDER BY id LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
		return s, err
	}
	if err := json.Unmarshal(events, &s.Events); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(subscription_id::text, ''), event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries
			SET status = 'delivered', attempts = attempts + 1, delivered_at = now(),
			    last_error = NULL, response_code = $2, latency_ms = $3
			WHERE id = $1`, id, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempts = attempts + 1, next_attempt_at = $2,
		    last_error = $3, response_code = $4, latency_ms = $5
		WHERE id = $1`, id, nextAttemptAt, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', attempts = attempts + 1,
		    last_error = $2, response_code = $3, latency_ms = $4
		WHERE id = $1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planID, algo string, m engine.Metrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO plan_metrics (plan_id, tenant_id, algorithm, metrics)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id) DO UPDATE SET algorithm = EXCLUDED.algorithm, metrics = EXCLUDED.metrics`,
		planID, tenantID, algo, data)
	return err
}

func (p *Postgres) GetPlanMetrics(ctx context.Context, tenantID, planID string) (engine.Metrics, string, error) {
	var data []byte
	var algo string
	err := p.db.QueryRowContext(ctx, `
		SELECT metrics, algorithm FROM plan_metrics WHERE plan_id = $1 AND tenant_id = $2`, planID, tenantID).
		Scan(&data, &algo)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Metrics{}, "", ErrNotFound
	}
	if err != nil {
		return engine.Metrics{}, "", err
	}
	var m engine.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return engine.Metrics{}, "", err
	}
	return m, algo, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
