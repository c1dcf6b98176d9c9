// Package chat implements the conversation side of meetline: two-party
// conversation groups, the send-message protocol, and fallback notifications.
//
// # Conversation groups
//
// A conversation between two users is a persisted group named by
// GroupKey(a, b), which orders the pair so both sides derive the same name.
// Connections join the group while their owner is viewing that conversation
// and leave on disconnect; the group itself is never deleted and is reused
// across reconnects.
//
// # Read receipts
//
// Presence inside the conversation view implies instant read: when a message
// arrives while the recipient has a connection joined to the group, it is
// stamped read at its send time, inside the same store transaction as the
// insert. Messages that arrive while the recipient is elsewhere stay unread
// until the recipient next opens the thread, which marks the backlog in one
// batch.
//
// # Notifications
//
// When the recipient is online but not viewing the conversation, their other
// connections receive a best-effort NewMessageReceived push through the
// Notifier. There is no retry; the persisted message is the durable fallback.
package chat
