package database

import (
	"crypto/md5"
	"encoding/hex"

	"notification_reconciler/internal/domain/notification"
)

// ChannelPrefix starts every feed NOTIFY channel name.
const ChannelPrefix = "feed_"

// ChannelName returns the NOTIFY channel the insert trigger publishes to for a collection and
// recipient key. It must stay in sync with notify_feed_insert() in schema.go: identifiers are
// limited to 63 bytes, so the recipient key is hashed.
func ChannelName(c notification.Collection, recipientKey string) string {
	sum := md5.Sum([]byte(string(c) + ":" + recipientKey))
	return ChannelPrefix + hex.EncodeToString(sum[:])
}
