package domain

// OCOGroup relates mutually exclusive orders: any member filling or being
// cancelled implies cancelling the surviving members. A group is created fresh
// per entry order and never shared across entries. Orders hold a non-owning
// back-reference to the group via LiveOrder.GroupID.
type OCOGroup struct {
	ID      string
	EntryID string // entry order that spawned this group
	Members []string
	Done    bool // teardown already executed
}

// Siblings returns the member IDs other than orderID.
func (g *OCOGroup) Siblings(orderID string) []string {
	out := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if id != orderID {
			out = append(out, id)
		}
	}
	return out
}

// HasMember reports whether orderID belongs to the group.
func (g *OCOGroup) HasMember(orderID string) bool {
	for _, id := range g.Members {
		if id == orderID {
			return true
		}
	}
	return false
}
