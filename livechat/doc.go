// Package livechat attaches to a live broadcast and surfaces newly posted chat
// comments as a sequence of events.
//
// A LiveChat runs in three steps:
//   - Resolve: given a channel id or a live (video) id, fetch the watch page
//     and establish the broadcast id.
//   - Extract: scrape the ephemeral session tokens (API key, continuation,
//     client name and version) embedded in the watch page.
//   - Poll: on a fixed interval, query the continuation endpoint, drop
//     comments at or below the watermark and emit the rest in order.
//
// Callers observe everything through Subscribe: Started, CommentEvent, Ended
// and Failed. Recoverable conditions (offline stream, missing tokens, a
// failed poll) are reported as Failed events and never panic.
package livechat
