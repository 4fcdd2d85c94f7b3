// Package facility holds the OKW-side data model: Facility, per
// spec.md §3.1. Facilities are consumed, never owned, by this kernel.
package facility

import "github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"

// Equipment is one piece of facility-offered equipment.
type Equipment struct {
	Name          string
	Process       taxonomy.ProcessID
	Specification string
}

// BatchRange is the facility's acceptable batch size window.
type BatchRange struct {
	Min int
	Max int
}

// Contains reports whether qty falls within [Min, Max]. A zero-value
// BatchRange (Min==Max==0) is treated as unconstrained.
func (b BatchRange) Contains(qty float64) bool {
	if b.Min == 0 && b.Max == 0 {
		return true
	}
	return qty >= float64(b.Min) && qty <= float64(b.Max)
}

// Facility is a candidate manufacturing site.
type Facility struct {
	ID        string
	Name      string
	Processes []taxonomy.ProcessID
	Equipment []Equipment
	Materials []string

	BatchRange     BatchRange
	AccessType     string
	Status         string
	Location       string
	Certifications []string

	// FreeText is the facility's description/capability blurb, consumed by
	// the NLP layer.
	FreeText string
}

// OffersProcess reports whether the facility offers p directly (via its
// declared Processes or any piece of Equipment).
func (f Facility) OffersProcess(p taxonomy.ProcessID) bool {
	for _, offered := range f.Processes {
		if offered.URI == p.URI {
			return true
		}
	}
	for _, eq := range f.Equipment {
		if eq.Process.URI == p.URI {
			return true
		}
	}
	return false
}

// HasMaterial reports whether the facility lists token among its materials.
func (f Facility) HasMaterial(token string) bool {
	for _, m := range f.Materials {
		if m == token {
			return true
		}
	}
	return false
}

// HasCertification reports whether the facility lists cert.
func (f Facility) HasCertification(cert string) bool {
	for _, c := range f.Certifications {
		if c == cert {
			return true
		}
	}
	return false
}
