package reconcile

import (
	"sort"

	"nexus-backend/internal/models"
)

// TombstoneText is what a deleted message is replaced with. The entry keeps
// its position and timestamp so replies pointing at it still render.
const TombstoneText = "deleted a message"

// MessageLog is one client's ordered view of a group chat. Merges are keyed
// by doubt_id, so duplicate delivery (optimistic local copy plus broadcast
// echo, or transport retries) collapses to a single entry.
type MessageLog struct {
	msgs []models.Message

	present    map[int64]bool  // live doubt_ids
	tombstones map[int64]int64 // original doubt_id -> tombstone doubt_id

	nextTombstoneID int64
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		present:         make(map[int64]bool),
		tombstones:      make(map[int64]int64),
		nextTombstoneID: -1,
	}
}

// ApplyMessage merges an incoming message. Returns true when the log changed;
// re-applying a message already merged (or already deleted) is a no-op.
func (l *MessageLog) ApplyMessage(m models.Message) bool {
	if l.present[m.DoubtID] {
		return false
	}
	if _, deleted := l.tombstones[m.DoubtID]; deleted {
		return false
	}

	l.present[m.DoubtID] = true
	l.msgs = append(l.msgs, m)
	sort.SliceStable(l.msgs, func(i, j int) bool {
		return l.msgs[i].CreatedAt.Before(l.msgs[j].CreatedAt)
	})
	return true
}

// ApplyDelete replaces the referenced message in place with a system
// tombstone under a fresh identifier. A delete arriving before its create is
// remembered, so the create later collapses straight into a tombstone.
func (l *MessageLog) ApplyDelete(doubtID int64) bool {
	if _, done := l.tombstones[doubtID]; done {
		return false
	}

	tombstoneID := l.nextTombstoneID
	l.nextTombstoneID--
	l.tombstones[doubtID] = tombstoneID

	if !l.present[doubtID] {
		// Never seen; nothing to replace but the delete is now recorded.
		return true
	}
	delete(l.present, doubtID)

	for i := range l.msgs {
		if l.msgs[i].DoubtID == doubtID {
			original := l.msgs[i]
			l.msgs[i] = models.Message{
				DoubtID:    tombstoneID,
				GroupID:    original.GroupID,
				SenderName: original.SenderName,
				SenderRole: models.RoleSystem,
				Message:    TombstoneText,
				CreatedAt:  original.CreatedAt,
			}
			break
		}
	}
	return true
}

// Resolve looks up a message by its original doubt_id, following the
// tombstone if it was deleted. Reply references stay renderable either way.
func (l *MessageLog) Resolve(doubtID int64) (models.Message, bool) {
	target := doubtID
	if tombstoneID, deleted := l.tombstones[doubtID]; deleted {
		target = tombstoneID
	}
	for _, m := range l.msgs {
		if m.DoubtID == target {
			return m, true
		}
	}
	return models.Message{}, false
}

// Messages returns the visible ordered sequence, oldest first.
func (l *MessageLog) Messages() []models.Message {
	out := make([]models.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}
