// Package webhook delivers notifications on the webhook channel as
// HMAC-SHA256 signed HTTP POSTs. Signatures are bound to a timestamp so
// receivers can authenticate requests and reject replays with
// VerifySignature.
package webhook
