package projector

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
)

// OrganizationState is what the organization channel drives: branding and
// which course sections currently have a live session.
type OrganizationState struct {
	Branding models.Branding
	sections map[int]bool
}

// Sections lists known sections ordered by ID.
func (s OrganizationState) Sections() []models.Section {
	ids := slices.Sorted(maps.Keys(s.sections))
	out := make([]models.Section, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Section{ID: id, Active: s.sections[id]})
	}
	return out
}

// SectionActive reports whether sectionID has a live session.
func (s OrganizationState) SectionActive(sectionID int) bool {
	return s.sections[sectionID]
}

// OrganizationSnapshot is the JSON form of an OrganizationState.
type OrganizationSnapshot struct {
	Branding models.Branding  `json:"branding"`
	Sections []models.Section `json:"sections"`
}

// Snapshot materialises the organization state.
func (s OrganizationState) Snapshot() OrganizationSnapshot {
	return OrganizationSnapshot{Branding: s.Branding, Sections: s.Sections()}
}

// ApplyOrganization is the organization channel transition function.
func ApplyOrganization(s OrganizationState, ev events.Event) (OrganizationState, Effect) {
	switch e := ev.(type) {
	case events.SessionStarted:
		return setSection(s, e.SectionID, true)

	case events.SessionEnded:
		return setSection(s, e.SectionID, false)

	case events.BrandingChanged:
		if s.Branding.LogoPath == e.LogoPath {
			return s, noEffect("logo unchanged")
		}
		next := s
		next.Branding.LogoPath = e.LogoPath
		return next, Effect{Kind: EffectBrandingChanged, LogoPath: e.LogoPath}

	case events.DemoWarning:
		return s, Effect{Kind: EffectDemoWarning, Countdown: DemoCountdown}

	default:
		return s, noEffect("not an organization event: " + ev.Kind().String())
	}
}

func setSection(s OrganizationState, sectionID int, active bool) (OrganizationState, Effect) {
	if sectionID == 0 {
		return s, noEffect("no section in frame")
	}
	if known, ok := s.sections[sectionID]; ok && known == active {
		return s, noEffect("section unchanged")
	}
	next := s
	next.sections = maps.Clone(s.sections)
	if next.sections == nil {
		next.sections = map[int]bool{}
	}
	next.sections[sectionID] = active
	kind := EffectSectionEnded
	if active {
		kind = EffectSectionStarted
	}
	return next, Effect{Kind: kind, SectionID: sectionID}
}

// Organization owns the organization page state for the lifetime of the process.
type Organization struct {
	state  OrganizationState
	logger *zap.Logger
}

// NewOrganization creates an organization projector with the branding the page loaded with.
func NewOrganization(branding models.Branding, logger *zap.Logger) *Organization {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Organization{
		state:  OrganizationState{Branding: branding},
		logger: logger,
	}
}

// Apply projects ev onto the organization state.
func (p *Organization) Apply(ev events.Event) Effect {
	next, eff := ApplyOrganization(p.state, ev)
	p.state = next
	if eff.Changed() {
		p.logger.Debug("organization event applied", zap.String("action", ev.Kind().String()), zap.String("effect", string(eff.Kind)))
	}
	return eff
}

// State returns the current organization state.
func (p *Organization) State() OrganizationState { return p.state }
