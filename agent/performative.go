package agent

import (
	"fmt"
	"strings"
)

// Performative classifies the communicative intent of a message
type Performative int

const (
	Request Performative = iota
	Agree
	Refuse
	Failure
	Inform
	Confirm
	Disconfirm
	QueryIf
	NotUnderstood
	CFP
	Propose
	Cancel
)

var performativeNames = [...]string{
	Request:       "REQUEST",
	Agree:         "AGREE",
	Refuse:        "REFUSE",
	Failure:       "FAILURE",
	Inform:        "INFORM",
	Confirm:       "CONFIRM",
	Disconfirm:    "DISCONFIRM",
	QueryIf:       "QUERY_IF",
	NotUnderstood: "NOT_UNDERSTOOD",
	CFP:           "CFP",
	Propose:       "PROPOSE",
	Cancel:        "CANCEL",
}

func (p Performative) String() string {
	if p < 0 || int(p) >= len(performativeNames) {
		return fmt.Sprintf("Performative(%d)", int(p))
	}
	return performativeNames[p]
}

// ParsePerformative parses a performative name such as "INFORM" or "query_if"
func ParsePerformative(s string) (Performative, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range performativeNames {
		if name == s {
			return Performative(i), nil
		}
	}
	return 0, fmt.Errorf("unknown performative %q", s)
}
