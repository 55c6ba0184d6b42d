package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
)

const bookingTypeColumns = `
	id::text, tenant_id::text, slug, name, COALESCE(description, ''), COALESCE(color, ''),
	duration_minutes, buffer_before_minutes, buffer_after_minutes, min_notice_hours, max_future_days,
	assignment_type, COALESCE(specific_host_id::text, ''), is_active, requires_approval,
	auto_create_meet, location_type, COALESCE(questions, 'null'::jsonb)::text`

const userColumns = `id::text, COALESCE(tenant_id::text, ''), name, email, COALESCE(booking_slug, ''), role, is_active`

func (p *Postgres) BookingTypeBySlug(ctx context.Context, slug string) (model.BookingType, error) {
	return p.bookingType(ctx, `
		SELECT `+bookingTypeColumns+`
		FROM booking_types
		WHERE slug = $1
		ORDER BY is_active DESC, created_at ASC
		LIMIT 1
	`, slug)
}

func (p *Postgres) BookingTypeBySlugInTenant(ctx context.Context, tenantID, slug string) (model.BookingType, error) {
	return p.bookingType(ctx, `
		SELECT `+bookingTypeColumns+`
		FROM booking_types
		WHERE tenant_id = $1 AND slug = $2
	`, tenantID, slug)
}

func (p *Postgres) BookingTypeByID(ctx context.Context, id string) (model.BookingType, error) {
	return p.bookingType(ctx, `
		SELECT `+bookingTypeColumns+`
		FROM booking_types
		WHERE id = $1
	`, id)
}

func (p *Postgres) bookingType(ctx context.Context, query string, args ...any) (model.BookingType, error) {
	var bt model.BookingType
	var questions string
	err := p.pool.QueryRow(ctx, query, args...).Scan(
		&bt.ID,
		&bt.TenantID,
		&bt.Slug,
		&bt.Name,
		&bt.Description,
		&bt.Color,
		&bt.DurationMinutes,
		&bt.BufferBeforeMinutes,
		&bt.BufferAfterMinutes,
		&bt.MinNoticeHours,
		&bt.MaxFutureDays,
		&bt.AssignmentType,
		&bt.SpecificHostID,
		&bt.IsActive,
		&bt.RequiresApproval,
		&bt.AutoCreateMeet,
		&bt.LocationType,
		&questions,
	)
	if err != nil {
		return model.BookingType{}, mapError(err)
	}
	if questions != "null" {
		bt.Questions = json.RawMessage(questions)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT user_id::text, priority
		FROM booking_type_hosts
		WHERE booking_type_id = $1
		ORDER BY priority ASC, user_id ASC
	`, bt.ID)
	if err != nil {
		return model.BookingType{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var h model.AssignedHost
		if err := rows.Scan(&h.UserID, &h.Priority); err != nil {
			return model.BookingType{}, err
		}
		bt.AssignedHosts = append(bt.AssignedHosts, h)
	}
	if rows.Err() != nil {
		return model.BookingType{}, rows.Err()
	}
	return bt, nil
}

func (p *Postgres) UserByBookingSlug(ctx context.Context, slug string) (model.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE booking_slug = $1`, slug)
	u, err := scanUser(row)
	return u, mapError(err)
}

func (p *Postgres) UserByID(ctx context.Context, id string) (model.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	return u, mapError(err)
}

func (p *Postgres) ActiveUsers(ctx context.Context, tenantID string, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND is_active AND id::text = ANY($2)
	`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	found, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]model.User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
			delete(byID, id)
		}
	}
	return users, nil
}

func (p *Postgres) OperationalUsers(ctx context.Context, tenantID string) ([]model.User, error) {
	roles := make([]string, 0, len(model.OperationalRoles))
	for _, r := range model.OperationalRoles {
		roles = append(roles, string(r))
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND is_active AND role = ANY($2)
		ORDER BY created_at ASC, id ASC
	`, tenantID, roles)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (p *Postgres) Tenant(ctx context.Context, id string) (model.Tenant, error) {
	var t model.Tenant
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(logo_url, ''), COALESCE(primary_color, '')
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.LogoURL, &t.PrimaryColor)
	if err != nil {
		return model.Tenant{}, mapError(err)
	}
	return t, nil
}

func (p *Postgres) AvailabilityTemplate(ctx context.Context, tenantID string) (model.AvailabilityTemplate, error) {
	tpl := model.AvailabilityTemplate{TenantID: tenantID}
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT timezone, weekly_schedule::text
		FROM availability_templates
		WHERE tenant_id = $1
	`, tenantID).Scan(&tpl.Timezone, &raw)
	if err != nil {
		return model.AvailabilityTemplate{}, mapError(err)
	}
	if err := json.Unmarshal(raw, &tpl.WeeklySchedule); err != nil {
		return model.AvailabilityTemplate{}, err
	}
	return tpl, nil
}

func (p *Postgres) Integrations(ctx context.Context, userID string) ([]model.Integration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id::text, provider, COALESCE(access_token, ''), COALESCE(refresh_token, ''),
			COALESCE(expires_at, 'epoch'::timestamptz), COALESCE(calendar_id, '')
		FROM user_integrations
		WHERE user_id = $1
		ORDER BY provider
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var in model.Integration
		if err := rows.Scan(&in.UserID, &in.Provider, &in.AccessToken, &in.RefreshToken, &in.ExpiresAt, &in.CalendarID); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.BookingSlug, &u.Role, &u.IsActive)
	return u, err
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}
