// Package topology decides which resource groups a deployment contains and
// builds them in dependency order.
package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Group is one optional block of resources
type Group int

// Groups in build order
const (
	Network Group = iota
	Substrate
	Bastion
	TagAutomation
	ScheduledWorks
	Batch
	BatchAlerts
	RestTrigger
	Database
	WebService
	Pipeline
)

var groupNames = []string{
	"Network",
	"Substrate",
	"Bastion",
	"TagAutomation",
	"ScheduledWorks",
	"Batch",
	"BatchAlerts",
	"RestTrigger",
	"Database",
	"WebService",
	"Pipeline",
}

// AllGroups lists every group in rank order
func AllGroups() []Group {
	groups := make([]Group, len(groupNames))
	for i := range groupNames {
		groups[i] = Group(i)
	}
	return groups
}

func (g Group) String() string {
	if g < 0 || int(g) >= len(groupNames) {
		return fmt.Sprintf("Group(%d)", int(g))
	}
	return groupNames[g]
}

// IsValid reports whether g is a known group
func (g Group) IsValid() bool {
	return g >= 0 && int(g) < len(groupNames)
}

// ParseGroup accepts a group name, case-insensitive
func ParseGroup(s string) (Group, error) {
	for i, name := range groupNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource group %q", s)
}

// ParseGroups parses a list of group names
func ParseGroups(names []string) ([]Group, error) {
	groups := make([]Group, 0, len(names))
	for _, name := range names {
		g, err := ParseGroup(name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// requires lists the groups each group consumes references from
var requires = map[Group][]Group{
	Substrate:      {Network},
	Bastion:        {Network, Substrate},
	TagAutomation:  {Network},
	ScheduledWorks: {Network},
	Batch:          {Network, Substrate},
	BatchAlerts:    {Network},
	RestTrigger:    {Network},
	Database:       {Network, Substrate},
	WebService:     {Network, Substrate},
	Pipeline:       {Network},
}

// Profile names a fixed selection of groups
type Profile string

const (
	ProfileNetwork Profile = "network"
	ProfileBatch   Profile = "batch"
	ProfileWeb     Profile = "web"
	ProfileFull    Profile = "full"
	ProfileCustom  Profile = "custom"
)

// ErrNoGroups is returned for a custom profile without groups
var ErrNoGroups = errors.New("custom topology requires at least one group")

var profileGroups = map[Profile][]Group{
	ProfileNetwork: {Network},
	ProfileBatch:   {Network, Substrate, TagAutomation, ScheduledWorks, Batch, BatchAlerts, RestTrigger, Pipeline},
	ProfileWeb:     {Network, Substrate, Database, WebService},
	ProfileFull:    AllGroups(),
	ProfileCustom:  nil,
}

// ParseProfile accepts a profile name; empty means full
func ParseProfile(s string) (Profile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ProfileFull, nil
	}
	p := Profile(s)
	if _, ok := profileGroups[p]; !ok {
		return "", fmt.Errorf("unknown topology %q (must be network, batch, web, full or custom)", s)
	}
	return p, nil
}

// Plan returns the profile's groups plus extra, closed over dependencies,
// deduplicated and sorted by rank
func Plan(profile Profile, extra []Group) ([]Group, error) {
	base, ok := profileGroups[profile]
	if !ok {
		return nil, fmt.Errorf("unknown topology %q", profile)
	}
	if profile == ProfileCustom && len(extra) == 0 {
		return nil, ErrNoGroups
	}

	selected := make(map[Group]bool)
	var add func(g Group) error
	add = func(g Group) error {
		if !g.IsValid() {
			return fmt.Errorf("unknown resource group %d", int(g))
		}
		if selected[g] {
			return nil
		}
		selected[g] = true
		for _, dep := range requires[g] {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, g := range base {
		if err := add(g); err != nil {
			return nil, err
		}
	}
	for _, g := range extra {
		if err := add(g); err != nil {
			return nil, err
		}
	}

	groups := make([]Group, 0, len(selected))
	for g := range selected {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups, nil
}

// Contains reports whether g is in groups
func Contains(groups []Group, g Group) bool {
	for _, x := range groups {
		if x == g {
			return true
		}
	}
	return false
}
