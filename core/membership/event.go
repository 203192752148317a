package membership

import (
	"sort"

	"github.com/codewandler/cbridge-go/core/ds"
)

// Address identifies a cluster node, typically "host:port".
type Address string

// Status is the membership status of a node.
type Status string

const (
	StatusJoining Status = "joining"
	StatusUp      Status = "up"
	StatusLeaving Status = "leaving"
	StatusExiting Status = "exiting"
	StatusRemoved Status = "removed"
)

// Member is one node of the cluster.
type Member struct {
	Addr   Address  `json:"addr"`
	Status Status   `json:"status"`
	Roles  []string `json:"roles,omitempty"`
}

// RoleSet returns the member's roles as a set.
func (m Member) RoleSet() *ds.StringSet { return ds.NewSet(m.Roles...) }

// HasRole reports whether the member carries the given role.
func (m Member) HasRole(role string) bool { return m.RoleSet().Contains(role) }

// Event is a cluster membership domain event. Events are immutable, produced
// by the runtime and delivered in emission order.
type Event interface{ event() }

type (
	// MemberJoined: a node started joining the cluster.
	MemberJoined struct{ Member Member }
	// MemberUp: a joined node is now considered up.
	MemberUp struct{ Member Member }
	// MemberLeft: a node requested to leave.
	MemberLeft struct{ Member Member }
	// MemberExited: a leaving node finished exiting.
	MemberExited struct{ Member Member }
	// MemberRemoved: a node was removed from the membership.
	MemberRemoved struct{ Member Member }
	// MemberUnreachable: a node is suspected failed.
	MemberUnreachable struct{ Member Member }
	// MemberReachable: a previously unreachable node responded again.
	MemberReachable struct{ Member Member }
	// LeaderChanged: the cluster leader changed. Leader is empty when no
	// member qualifies.
	LeaderChanged struct{ Leader Address }
)

func (MemberJoined) event()      {}
func (MemberUp) event()          {}
func (MemberLeft) event()        {}
func (MemberExited) event()      {}
func (MemberRemoved) event()     {}
func (MemberUnreachable) event() {}
func (MemberReachable) event()   {}
func (LeaderChanged) event()     {}

// ClusterState is a read-only point-in-time membership snapshot.
type ClusterState struct {
	Members []Member `json:"members"`
	Leader  Address  `json:"leader,omitempty"`
}

// Member returns the member with the given address.
func (s ClusterState) Member(addr Address) (Member, bool) {
	for _, m := range s.Members {
		if m.Addr == addr {
			return m, true
		}
	}
	return Member{}, false
}

// Addresses returns the addresses of all members, sorted.
func (s ClusterState) Addresses() []Address {
	out := make([]Address, 0, len(s.Members))
	for _, m := range s.Members {
		out = append(out, m.Addr)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// UpNodeIDs returns the addresses of all members in status up, as strings.
// This is the node list fed into shard assignment.
func (s ClusterState) UpNodeIDs() []string {
	ids := ds.NewSet[string]()
	for _, m := range s.Members {
		if m.Status == StatusUp {
			ids.Add(string(m.Addr))
		}
	}
	out := ids.Values()
	sort.Strings(out)
	return out
}
