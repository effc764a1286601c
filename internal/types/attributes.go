package types

import (
	"encoding/json"
	"math/bits"
)

// Attribute is a single special trait of a moment
type Attribute uint32

const (
	AttrRookie Attribute = 1 << iota
	AttrFirstSerial
	AttrLastSerial
	AttrJerseyMatch
	AttrLowSerial
	AttrLocked
	AttrChallengeReward
	AttrAutographed
	AttrPlayoffs
	AttrChampionship
	AttrRookieYear
	AttrMVPYear
)

// attributeOrder lists attributes from most to least notable. The first
// attribute present is a moment's primary attribute.
var attributeOrder = []Attribute{
	AttrFirstSerial,
	AttrJerseyMatch,
	AttrLastSerial,
	AttrAutographed,
	AttrChampionship,
	AttrMVPYear,
	AttrRookie,
	AttrRookieYear,
	AttrPlayoffs,
	AttrChallengeReward,
	AttrLowSerial,
	AttrLocked,
}

var attributeNames = map[Attribute]string{
	AttrRookie:          "rookie",
	AttrFirstSerial:     "first_serial",
	AttrLastSerial:      "last_serial",
	AttrJerseyMatch:     "jersey_match",
	AttrLowSerial:       "low_serial",
	AttrLocked:          "locked",
	AttrChallengeReward: "challenge_reward",
	AttrAutographed:     "autographed",
	AttrPlayoffs:        "playoffs",
	AttrChampionship:    "championship",
	AttrRookieYear:      "rookie_year",
	AttrMVPYear:         "mvp_year",
}

// NoAttribute is the breakdown key for moments without any special attribute
const NoAttribute = "standard"

func (a Attribute) String() string {
	if name, ok := attributeNames[a]; ok {
		return name
	}
	return "unknown"
}

// AttributeSet is a bit set of attributes
type AttributeSet uint32

// With returns the set with a added
func (s AttributeSet) With(a Attribute) AttributeSet {
	return s | AttributeSet(a)
}

// Has reports whether a is in the set
func (s AttributeSet) Has(a Attribute) bool {
	return s&AttributeSet(a) != 0
}

// Len returns the number of attributes in the set
func (s AttributeSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// List returns attribute names in notability order
func (s AttributeSet) List() []string {
	out := make([]string, 0, s.Len())
	for _, a := range attributeOrder {
		if s.Has(a) {
			out = append(out, a.String())
		}
	}
	return out
}

// Primary returns the most notable attribute name, or NoAttribute
func (s AttributeSet) Primary() string {
	for _, a := range attributeOrder {
		if s.Has(a) {
			return a.String()
		}
	}
	return NoAttribute
}

// MarshalJSON encodes the set as a list of names
func (s AttributeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON decodes a list of names; unknown names are ignored
func (s *AttributeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set AttributeSet
	for _, name := range names {
		for a, n := range attributeNames {
			if n == name {
				set = set.With(a)
			}
		}
	}
	*s = set
	return nil
}
