package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SettingsRepo = (*Postgres)(nil)
	_ domain.DigestRepo   = (*Postgres)(nil)
	_ domain.ProfileRepo  = (*Postgres)(nil)
	_ domain.MessageRepo  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Get реализует domain.SettingsRepo.
func (p *Postgres) Get(ctx context.Context, userID string) (domain.DigestSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT user_id, delivery_time_utc, topics, COALESCE(custom_prompt, ''), enabled, COALESCE(push_token, ''), COALESCE(timezone, ''), updated_at
FROM digest_settings
WHERE user_id = $1
`, userID)
	var cfg domain.DigestSettings
	err := row.Scan(&cfg.UserID, &cfg.DeliveryTimeUTC, &cfg.Topics, &cfg.CustomPrompt, &cfg.Enabled, &cfg.PushToken, &cfg.Timezone, &cfg.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "digest_settings_get", "digest_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DigestSettings{}, fmt.Errorf("%w: пользователь %s", domain.ErrConfigNotFound, userID)
	}
	if err != nil {
		return domain.DigestSettings{}, fmt.Errorf("repo: выборка настроек: %w", err)
	}
	return cfg, nil
}

// Upsert реализует domain.SettingsRepo.
func (p *Postgres) Upsert(ctx context.Context, cfg domain.DigestSettings) (domain.DigestSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	cfg.UpdatedAt = time.Now().UTC()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO digest_settings (user_id, delivery_time_utc, topics, custom_prompt, enabled, timezone, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
    delivery_time_utc = EXCLUDED.delivery_time_utc,
    topics = EXCLUDED.topics,
    custom_prompt = EXCLUDED.custom_prompt,
    enabled = EXCLUDED.enabled,
    timezone = EXCLUDED.timezone,
    updated_at = EXCLUDED.updated_at
`, cfg.UserID, cfg.DeliveryTimeUTC, cfg.Topics, cfg.CustomPrompt, cfg.Enabled, cfg.Timezone, cfg.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "digest_settings_upsert", "digest_settings", start, err)
	if err != nil {
		return domain.DigestSettings{}, fmt.Errorf("repo: сохранение настроек: %w", err)
	}
	return p.Get(ctx, cfg.UserID)
}

// SavePushToken реализует domain.SettingsRepo. Токен обновляется отдельно от
// остальных настроек, запись создаётся при отсутствии.
func (p *Postgres) SavePushToken(ctx context.Context, userID, token string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO digest_settings (user_id, delivery_time_utc, topics, enabled, push_token, updated_at)
VALUES ($1, '07:00', ARRAY['technology'], false, $2, NOW())
ON CONFLICT (user_id) DO UPDATE SET push_token = EXCLUDED.push_token, updated_at = NOW()
`, userID, token)
	metrics.ObserveNetworkRequest("postgres", "push_token_save", "digest_settings", start, err)
	if err != nil {
		return fmt.Errorf("repo: сохранение push-токена: %w", err)
	}
	return nil
}

// ListEnabledWithToken реализует domain.SettingsRepo.
func (p *Postgres) ListEnabledWithToken(ctx context.Context) ([]domain.DigestSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, delivery_time_utc, topics, COALESCE(custom_prompt, ''), enabled, COALESCE(push_token, ''), COALESCE(timezone, ''), updated_at
FROM digest_settings
WHERE enabled AND push_token IS NOT NULL AND push_token <> ''
`)
	metrics.ObserveNetworkRequest("postgres", "digest_settings_list", "digest_settings", start, err)
	if err != nil {
		return nil, fmt.Errorf("repo: выборка активных настроек: %w", err)
	}
	defer rows.Close()

	var out []domain.DigestSettings
	for rows.Next() {
		var cfg domain.DigestSettings
		if err := rows.Scan(&cfg.UserID, &cfg.DeliveryTimeUTC, &cfg.Topics, &cfg.CustomPrompt, &cfg.Enabled, &cfg.PushToken, &cfg.Timezone, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repo: чтение строки настроек: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Create реализует domain.DigestRepo.
func (p *Postgres) Create(ctx context.Context, digest domain.Digest) (domain.Digest, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	sources, err := json.Marshal(digest.Sources)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("repo: сериализация источников: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO digests (id, user_id, content, sources, topics, custom_prompt, created_at, read)
VALUES ($1, $2, $3, $4, $5, $6, $7, false)
`, digest.ID, digest.UserID, digest.Content, sources, digest.Topics, digest.CustomPrompt, digest.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "digest_insert", "digests", start, err)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("repo: сохранение дайджеста: %w", err)
	}
	digest.Read = false
	digest.ReadAt = nil
	return digest, nil
}

func scanDigest(row pgx.Row) (domain.Digest, error) {
	var (
		d       domain.Digest
		sources []byte
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Content, &sources, &d.Topics, &d.CustomPrompt, &d.CreatedAt, &d.Read, &d.ReadAt); err != nil {
		return domain.Digest{}, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &d.Sources); err != nil {
			return domain.Digest{}, fmt.Errorf("repo: разбор источников: %w", err)
		}
	}
	return d, nil
}

const digestColumns = `id, user_id, content, sources, topics, COALESCE(custom_prompt, ''), created_at, read, read_at`

// GetByID реализует domain.DigestRepo.
func (p *Postgres) GetByID(ctx context.Context, id string) (domain.Digest, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	digest, err := scanDigest(p.pool.QueryRow(ctx, `SELECT `+digestColumns+` FROM digests WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "digest_get", "digests", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Digest{}, fmt.Errorf("%w: %s", domain.ErrDigestNotFound, id)
	}
	if err != nil {
		return domain.Digest{}, fmt.Errorf("repo: выборка дайджеста: %w", err)
	}
	return digest, nil
}

// ListByUser реализует domain.DigestRepo. История отдаётся от новых к старым.
func (p *Postgres) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Digest, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+digestColumns+`
FROM digests
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "digest_list", "digests", start, err)
	if err != nil {
		return nil, fmt.Errorf("repo: выборка истории: %w", err)
	}
	defer rows.Close()

	var out []domain.Digest
	for rows.Next() {
		digest, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("repo: чтение строки дайджеста: %w", err)
		}
		out = append(out, digest)
	}
	return out, rows.Err()
}

// MarkRead реализует domain.DigestRepo. Переход односторонний: повторный
// вызов не меняет read_at.
func (p *Postgres) MarkRead(ctx context.Context, id string) (domain.Digest, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	digest, err := scanDigest(p.pool.QueryRow(ctx, `
UPDATE digests
SET read = true, read_at = COALESCE(read_at, NOW())
WHERE id = $1
RETURNING `+digestColumns+`
`, id))
	metrics.ObserveNetworkRequest("postgres", "digest_mark_read", "digests", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Digest{}, fmt.Errorf("%w: %s", domain.ErrDigestNotFound, id)
	}
	if err != nil {
		return domain.Digest{}, fmt.Errorf("repo: отметка прочтения: %w", err)
	}
	return digest, nil
}

// Delete реализует domain.DigestRepo.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM digests WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "digest_delete", "digests", start, err)
	if err != nil {
		return fmt.Errorf("repo: удаление дайджеста: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDigestNotFound, id)
	}
	return nil
}

// GetProfile реализует domain.ProfileRepo.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT id, username FROM profiles WHERE id = $1`, userID)
	var profile domain.Profile
	err := row.Scan(&profile.ID, &profile.Username)
	metrics.ObserveNetworkRequest("postgres", "profile_get", "profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, fmt.Errorf("repo: профиль %s не найден", userID)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("repo: выборка профиля: %w", err)
	}
	return profile, nil
}

// ListRecent реализует domain.MessageRepo. Сообщения возвращаются в порядке
// создания, от старых к новым.
func (p *Postgres) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, room_id, sender_id, content, created_at
FROM (
    SELECT id, room_id, sender_id, content, created_at
    FROM messages
    WHERE room_id = $1
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at ASC
`, roomID, limit)
	metrics.ObserveNetworkRequest("postgres", "messages_list_recent", "messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("repo: выборка сообщений: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: чтение строки сообщения: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
