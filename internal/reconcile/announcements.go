package reconcile

import (
	"encoding/json"
	"sort"

	"nexus-backend/internal/models"
)

// AnnouncementSet merges live feed events into the two announcement
// sub-collections. Kind-qualified identifiers keep material and event deletes
// from crossing into the wrong list.
type AnnouncementSet struct {
	materials []models.Announcement
	events    []models.Announcement

	present map[string]bool
	deleted map[string]bool
}

func NewAnnouncementSet() *AnnouncementSet {
	return &AnnouncementSet{
		present: make(map[string]bool),
		deleted: make(map[string]bool),
	}
}

// Apply merges one feed event. Duplicate deliveries are no-ops; returns true
// when the visible state changed.
func (s *AnnouncementSet) Apply(ev models.LiveEvent) bool {
	switch ev.Type {
	case models.EventCreate:
		return s.applyCreate(ev)
	case models.EventDelete:
		return s.applyDelete(ev.ID)
	default:
		return false
	}
}

func (s *AnnouncementSet) applyCreate(ev models.LiveEvent) bool {
	if s.present[ev.ID] || s.deleted[ev.ID] {
		return false
	}

	var a models.Announcement
	if err := json.Unmarshal(ev.Payload, &a); err != nil {
		return false
	}
	a.ID = ev.ID
	a.Kind = ev.Kind

	switch ev.Kind {
	case models.KindMaterial:
		s.materials = append(s.materials, a)
		sortNewestFirst(s.materials)
	case models.KindEvent:
		s.events = append(s.events, a)
		sortNewestFirst(s.events)
	default:
		return false
	}

	s.present[ev.ID] = true
	return true
}

func (s *AnnouncementSet) applyDelete(id string) bool {
	if s.deleted[id] {
		return false
	}
	s.deleted[id] = true

	if !s.present[id] {
		return true
	}
	delete(s.present, id)

	s.materials = removeByID(s.materials, id)
	s.events = removeByID(s.events, id)
	return true
}

func (s *AnnouncementSet) Materials() []models.Announcement {
	out := make([]models.Announcement, len(s.materials))
	copy(out, s.materials)
	return out
}

func (s *AnnouncementSet) Events() []models.Announcement {
	out := make([]models.Announcement, len(s.events))
	copy(out, s.events)
	return out
}

func sortNewestFirst(anns []models.Announcement) {
	sort.SliceStable(anns, func(i, j int) bool {
		return anns[i].CreatedAt.After(anns[j].CreatedAt)
	})
}

func removeByID(anns []models.Announcement, id string) []models.Announcement {
	for i := range anns {
		if anns[i].ID == id {
			return append(anns[:i], anns[i+1:]...)
		}
	}
	return anns
}
