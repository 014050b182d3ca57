package reconcile

import (
	"encoding/json"
	"sort"
	"strconv"

	"nexus-backend/internal/models"
)

// DocumentList merges document feed events for one viewer. The sort is
// viewer-relative: documents the viewer has not signed come first, closest
// deadline next, no deadline last.
type DocumentList struct {
	viewerUSN string

	docs    []models.Document
	present map[int64]bool
	deleted map[int64]bool
}

func NewDocumentList(viewerUSN string) *DocumentList {
	return &DocumentList{
		viewerUSN: viewerUSN,
		present:   make(map[int64]bool),
		deleted:   make(map[int64]bool),
	}
}

// Apply merges one feed event. A create for a known identifier refreshes its
// fields (signature sets grow through repeated create events); re-applying
// the same event leaves the list unchanged.
func (l *DocumentList) Apply(ev models.LiveEvent) bool {
	id, err := strconv.ParseInt(ev.ID, 10, 64)
	if err != nil {
		return false
	}

	switch ev.Type {
	case models.EventCreate:
		return l.applyCreate(id, ev.Payload)
	case models.EventDelete:
		return l.applyDelete(id)
	default:
		return false
	}
}

func (l *DocumentList) applyCreate(id int64, payload []byte) bool {
	if l.deleted[id] {
		return false
	}

	var d models.Document
	if err := json.Unmarshal(payload, &d); err != nil {
		return false
	}
	d.DocumentID = id

	if l.present[id] {
		for i := range l.docs {
			if l.docs[i].DocumentID == id {
				l.docs[i] = d
				break
			}
		}
	} else {
		l.present[id] = true
		l.docs = append(l.docs, d)
	}

	SortDocuments(l.docs, l.viewerUSN)
	return true
}

func (l *DocumentList) applyDelete(id int64) bool {
	if l.deleted[id] {
		return false
	}
	l.deleted[id] = true

	if !l.present[id] {
		return true
	}
	delete(l.present, id)

	for i := range l.docs {
		if l.docs[i].DocumentID == id {
			l.docs = append(l.docs[:i], l.docs[i+1:]...)
			break
		}
	}
	return true
}

func (l *DocumentList) Documents() []models.Document {
	out := make([]models.Document, len(l.docs))
	copy(out, l.docs)
	return out
}

// SortDocuments orders in place: unsigned before signed for the viewer, then
// deadline ascending, documents without a deadline last.
func SortDocuments(docs []models.Document, viewerUSN string) {
	sort.SliceStable(docs, func(i, j int) bool {
		iSigned := signedBy(docs[i], viewerUSN)
		jSigned := signedBy(docs[j], viewerUSN)
		if iSigned != jSigned {
			return !iSigned
		}

		switch {
		case docs[i].Deadline == nil && docs[j].Deadline == nil:
			return false
		case docs[i].Deadline == nil:
			return false
		case docs[j].Deadline == nil:
			return true
		default:
			return docs[i].Deadline.Before(*docs[j].Deadline)
		}
	})
}

func signedBy(d models.Document, usn string) bool {
	for _, sig := range d.Signatures {
		if sig.USN == usn {
			return true
		}
	}
	return false
}
