// Package http exposes the booking engine over a JSON API.
//
// The router exposes the following endpoints:
//   - POST /bookings, GET /bookings, GET|PATCH|DELETE /bookings/{id}: booking
//     lifecycle exchanging the `bookingDTO` payload defined in booking_handler.go.
//     GET /bookings accepts status, room_id, organizer_id, from_date, to_date,
//     search and limit query parameters.
//   - POST /bookings/availability: previews a slot and returns the conflicting
//     bookings without reserving anything.
//   - GET|POST /rooms, GET|DELETE /rooms/{id}, PUT /rooms/{id}/availability:
//     room catalog. Mutations require the admin role.
//   - GET|POST /resources, GET|DELETE /resources/{id}, PUT
//     /resources/{id}/availability, PUT /resources/{id}/quantity: inventory.
//   - GET /healthz: storage connectivity check, no principal required.
//
// Identity is established upstream. Every other route requires the X-User-ID
// header; X-User-Role: admin grants administrator rights.
//
// Service errors map to 422 (validation), 403, 404, 409 (conflict,
// unavailable, insufficient quantity, in use) and 503 with Retry-After for
// retryable contention.
package http
