// Package webhook implements the public Instagram webhook endpoint.
//
// Two operations share the /webhook path:
//
//   - GET is the one-time subscription handshake: the platform presents
//     hub.mode, hub.verify_token, and hub.challenge, and the challenge is
//     echoed back when the token matches the configured value.
//   - POST is event delivery: the X-Hub-Signature-256 header is verified over
//     the raw body with HMAC-SHA256, the payload is normalized into individual
//     events, each event is inserted with the store arbitrating duplicates,
//     and the winner of each insert triggers exactly one auto-reply attempt.
//
// # Security Model
//
//   - HMAC-SHA256 signatures verified using crypto/subtle (constant-time)
//   - Verification always reads the raw body bytes, never a re-serialized parse
//   - Body size limits enforced before any processing
//   - No signature details leaked in error responses (always generic 403)
//   - Request logging excludes payload contents
//
// # Response Contract
//
// The platform keys redelivery off the HTTP status of the single ack:
//
//   - 403 Forbidden: handshake or signature rejection
//   - 200: delivery accepted; per-event reply failures never change this
//   - 500: storage unavailable, nothing durably recorded, redeliver later
//   - 413 Payload Too Large: body exceeds the configured limit
package webhook
