// Package postmarkmail delivers notifications on the email channel
// through Postmark's transactional API. The host application supplies a
// RecipientResolver to map user IDs to addresses.
package postmarkmail
