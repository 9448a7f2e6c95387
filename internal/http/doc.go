// Package http exposes the booking engine over JSON and iCalendar endpoints.
//
// The router serves:
//   - GET /technicians/{id}/slots?service_id=&date=YYYY-MM-DD: every candidate start
//     on the date with its availability.
//   - GET /technicians/{id}/slots/check?service_id=&start=RFC3339: whether one start fits.
//   - GET /availability/days?service_id=&from=&to=&location_id=&technician_ids=a,b:
//     day-level availability for each date in the inclusive range.
//   - POST /appointments: books an appointment. Body: createAppointmentRequest.
//   - GET /appointments/{id}: returns the appointment with its ETag set to the version.
//   - PATCH /appointments/{id}: partial update guarded by expected_version or If-Match.
//   - POST /appointments/{id}/cancel: cancels, guarded the same way.
//   - GET /technicians/{id}/calendar.ics?from=&to=: ICS feed of appointments and blocks.
//   - GET /metrics and GET /healthz.
//
// Conflicts answer 409 with error_code BOOKING_CONFLICT and the colliding appointment;
// stale writes answer 409 with error_code STALE_WRITE and the current snapshot.
package http
