// Package twiliosms delivers notifications on the SMS channel through
// the Twilio messaging API. The host application supplies a
// PhoneResolver to map user IDs to phone numbers.
package twiliosms
