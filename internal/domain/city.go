package domain

// City is the parent resource. Points of interest are only populated when
// explicitly requested from the repository.
type City struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Description      *string           `json:"description"`
	PointsOfInterest []PointOfInterest `json:"pointsOfInterest,omitempty"`
}

// NumberOfPointsOfInterest is only meaningful when the city was loaded with its children.
func (c City) NumberOfPointsOfInterest() int { return len(c.PointsOfInterest) }

type PointOfInterest struct {
	ID          int64   `json:"id"`
	CityID      int64   `json:"-"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// PointOfInterestFields is the updatable subset of a PointOfInterest.
// ID and CityID are not part of it.
type PointOfInterestFields struct {
	Name        string  `json:"name" validate:"notblank,max=50"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

func (p PointOfInterest) Fields() PointOfInterestFields {
	return PointOfInterestFields{Name: p.Name, Description: cloneStr(p.Description)}
}

// Apply copies the updatable fields onto p, leaving identity untouched.
func (p *PointOfInterest) Apply(f PointOfInterestFields) {
	p.Name = f.Name
	p.Description = cloneStr(f.Description)
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
