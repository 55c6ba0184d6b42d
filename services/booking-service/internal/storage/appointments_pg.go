package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
)

func occupyingStatuses() []string {
	out := make([]string, 0, len(model.OccupyingStatuses))
	for _, s := range model.OccupyingStatuses {
		out = append(out, string(s))
	}
	return out
}

// scopeFilter returns the host condition for scope bound to parameter $n.
// An empty host makes the condition match every host of the tenant.
func scopeFilter(n string) string {
	return `($` + n + ` = '' OR a.host_id::text = $` + n + `)`
}

func (p *Postgres) ListBusy(ctx context.Context, scope model.Scope, from, to time.Time) ([]model.Busy, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.start_time, a.end_time, bt.buffer_before_minutes, bt.buffer_after_minutes
		FROM appointments a
		JOIN booking_types bt ON bt.id = a.booking_type_id
		WHERE a.tenant_id = $1
			AND `+scopeFilter("2")+`
			AND a.status = ANY($3)
			AND a.start_time - make_interval(mins => bt.buffer_before_minutes) < $5
			AND a.end_time + make_interval(mins => bt.buffer_after_minutes) > $4
		ORDER BY a.start_time ASC
	`, scope.TenantID, scope.HostID, occupyingStatuses(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []model.Busy
	for rows.Next() {
		var b model.Busy
		var before, after int
		if err := rows.Scan(&b.Start, &b.End, &before, &after); err != nil {
			return nil, err
		}
		b.BufferBefore = time.Duration(before) * time.Minute
		b.BufferAfter = time.Duration(after) * time.Minute
		busy = append(busy, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return busy, nil
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	var form string
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, booking_type_id::text, host_id::text, COALESCE(client_id::text, ''),
			start_time, end_time, COALESCE(timezone, ''), status,
			guest_name, guest_email, COALESCE(guest_phone, ''), COALESCE(guest_company, ''), COALESCE(notes, ''),
			COALESCE(form_responses, 'null'::jsonb)::text,
			COALESCE(meeting_link, ''), COALESCE(meeting_id, ''), COALESCE(calendar_event_id, ''), created_at
		FROM appointments
		WHERE id = $1
	`, id).Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.BookingTypeID,
		&appt.HostID,
		&appt.ClientID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Timezone,
		&appt.Status,
		&appt.GuestName,
		&appt.GuestEmail,
		&appt.GuestPhone,
		&appt.GuestCompany,
		&appt.Notes,
		&form,
		&appt.Meeting.MeetingLink,
		&appt.Meeting.MeetingID,
		&appt.Meeting.CalendarEventID,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}
	if form != "null" {
		appt.FormResponses = []byte(form)
	}
	return appt, nil
}

func (p *Postgres) UpdateMeeting(ctx context.Context, appointmentID string, info model.MeetingInfo) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE appointments
		SET meeting_link = COALESCE(NULLIF($2, ''), meeting_link),
			meeting_id = COALESCE(NULLIF($3, ''), meeting_id),
			calendar_event_id = COALESCE(NULLIF($4, ''), calendar_event_id)
		WHERE id = $1
	`, appointmentID, info.MeetingLink, info.MeetingID, info.CalendarEventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateIntegrationToken(ctx context.Context, in model.Integration) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE user_integrations
		SET access_token = $3, refresh_token = $4, expires_at = $5
		WHERE user_id = $1 AND provider = $2
	`, in.UserID, string(in.Provider), in.AccessToken, in.RefreshToken, in.ExpiresAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) HasOverlap(ctx context.Context, scope model.Scope, start, end time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments a
			WHERE a.tenant_id = $1
				AND `+scopeFilter("2")+`
				AND a.status = ANY($3)
				AND a.start_time < $5
				AND a.end_time > $4
		)
	`, scope.TenantID, scope.HostID, occupyingStatuses(), start, end).Scan(&exists)
	return exists, err
}

func (t *pgTx) CountUpcomingByHost(ctx context.Context, tenantID string, hostIDs []string, from time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(hostIDs))
	if len(hostIDs) == 0 {
		return counts, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT host_id::text, count(*)
		FROM appointments
		WHERE tenant_id = $1
			AND host_id::text = ANY($2)
			AND status = ANY($3)
			AND start_time >= $4
		GROUP BY host_id
	`, tenantID, hostIDs, occupyingStatuses(), from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var host string
		var n int
		if err := rows.Scan(&host, &n); err != nil {
			return nil, err
		}
		counts[host] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	var form any
	if len(appt.FormResponses) > 0 {
		form = string(appt.FormResponses)
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, tenant_id, booking_type_id, host_id, client_id, start_time, end_time, timezone, status,
			 guest_name, guest_email, guest_phone, guest_company, notes, form_responses)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, NULLIF($8, ''), $9,
			$10, $11, NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), $15::jsonb)
		RETURNING created_at
	`, appt.ID, appt.TenantID, appt.BookingTypeID, appt.HostID, appt.ClientID, appt.StartTime, appt.EndTime,
		appt.Timezone, appt.Status, appt.GuestName, appt.GuestEmail, appt.GuestPhone, appt.GuestCompany,
		appt.Notes, form).Scan(&appt.CreatedAt)
	return mapError(err)
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
