package plan

import (
	"fmt"
	"strings"
)

// Policy selects which candidate becomes the output pose when planning on the
// brain surface.
type Policy int

const (
	// PolicySkin uses the skin pose found along the cortex normal.
	PolicySkin Policy = iota
	// PolicySkinClosest uses the skin pose closest to the cortex target.
	PolicySkinClosest
	// PolicyCortex keeps the cortex orientation at the ray-projected skin
	// point.
	PolicyCortex
	// PolicyCombined is reserved and always rejected.
	PolicyCombined
)

var policyNames = map[Policy]string{
	PolicySkin:        "skin",
	PolicySkinClosest: "skinClosest",
	PolicyCortex:      "cortex",
	PolicyCombined:    "combined",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts the names used in planning configuration, case
// insensitively. "skinclosest" and "skin_closest" are also accepted.
func ParsePolicy(s string) (Policy, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	for p, name := range policyNames {
		if key == strings.ToLower(name) {
			return p, nil
		}
	}
	return PolicySkin, fmt.Errorf("unknown tool rotation option %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
