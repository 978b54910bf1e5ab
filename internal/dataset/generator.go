// Package dataset produces a synthetic tickets dataset so the local engine
// has something to query without an Athena account.
package dataset

import (
	"fmt"
	"math/rand"
)

type Ticket struct {
	TicketID    string `parquet:"ticket_id" json:"ticket_id"`
	TicketType  string `parquet:"ticket_type" json:"ticket_type"`
	Priority    string `parquet:"priority" json:"priority"`
	Category    string `parquet:"category" json:"category"`
	AssignedTo  string `parquet:"assigned_to" json:"assigned_to"`
	Description string `parquet:"description" json:"description"`
}

type route struct {
	category   string
	assignedTo []string
	issues     []string
}

var routes = []route{
	{"IT Support", []string{"IT Services", "Service Desk"}, []string{"laptop will not boot", "password reset request", "VPN drops every few minutes", "new monitor needed"}},
	{"Technical Support", []string{"IT Services", "Platform Team"}, []string{"API returns 500 errors", "deployment pipeline stuck", "database connection timeouts"}},
	{"Network", []string{"Network Team", "IT Services"}, []string{"wifi unreachable on floor 3", "firewall rule change", "slow file share access"}},
	{"Billing", []string{"Finance Ops"}, []string{"invoice amount is wrong", "refund not received", "update payment method"}},
	{"HR", []string{"HR Operations"}, []string{"onboarding checklist missing", "payroll question", "leave balance incorrect"}},
	{"Facilities", []string{"Facilities Team"}, []string{"meeting room projector broken", "desk chair replacement", "badge access denied"}},
}

type Generator struct {
	rnd      *rand.Rand
	sequence int64
}

// NewGenerator returns a generator whose output depends only on seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) NextTicket() Ticket {
	g.sequence++
	r := routes[g.rnd.Intn(len(routes))]
	return Ticket{
		TicketID:    fmt.Sprintf("TCK-%06d", g.sequence),
		TicketType:  g.pickTicketType(),
		Priority:    g.pickPriority(),
		Category:    r.category,
		AssignedTo:  pickOne(g.rnd, r.assignedTo),
		Description: pickOne(g.rnd, r.issues),
	}
}

func (g *Generator) Generate(count int) []Ticket {
	tickets := make([]Ticket, 0, count)
	for i := 0; i < count; i++ {
		tickets = append(tickets, g.NextTicket())
	}
	return tickets
}

func (g *Generator) pickTicketType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 50:
		return "Request"
	case p < 85:
		return "Incident"
	case p < 95:
		return "Change"
	default:
		return "Problem"
	}
}

func (g *Generator) pickPriority() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 25:
		return "high"
	case p < 70:
		return "medium"
	default:
		return "low"
	}
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
