// internal/alarm/alerts.go
package alarm

// Indicator is the aggregate alert light of one alert class on one device.
type Indicator struct {
	Class        string `json:"class"`
	Active       bool   `json:"active"`
	Acknowledged bool   `json:"acknowledged"`
	Lit          bool   `json:"lit"`
}

// Aggregate folds member bands into the class indicator.
// Active while any member is Fault. Acknowledged indicators hold steady;
// unacknowledged ones alternate with cycle parity.
func Aggregate(class string, members []Band, acked bool, cycle uint64) Indicator {
	ind := Indicator{Class: class}

	for _, b := range members {
		if b == Fault {
			ind.Active = true
			break
		}
	}
	if !ind.Active {
		return ind
	}

	ind.Acknowledged = acked
	ind.Lit = acked || Lit(true, cycle)
	return ind
}

// Acks holds acknowledgment flags per alert class for one device.
// Owned by a single poller.
type Acks struct {
	set map[string]bool
}

// Set records an acknowledgment. Reports whether it was newly set.
func (a *Acks) Set(class string) bool {
	if a.set == nil {
		a.set = make(map[string]bool)
	}
	if a.set[class] {
		return false
	}
	a.set[class] = true
	return true
}

// Has reports whether class is acknowledged.
func (a *Acks) Has(class string) bool {
	return a.set[class]
}

// Reconcile clears the acknowledgment of a class that has at least one
// known member and none in Fault. Reports whether it was cleared.
// Acknowledgment never alters the member bands themselves.
func (a *Acks) Reconcile(class string, members []Band) bool {
	if !a.set[class] {
		return false
	}

	known := false
	for _, b := range members {
		if b == Fault {
			return false
		}
		if b != Unknown {
			known = true
		}
	}
	if !known {
		return false
	}

	delete(a.set, class)
	return true
}
