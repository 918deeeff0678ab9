// Package messenger handles outbound chat delivery. The Twilio transport
// pushes WhatsApp messages through the Messages API for follow-ups that
// can't ride a webhook reply; TwiML renders the synchronous reply body.
package messenger
