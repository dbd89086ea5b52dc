package domain

// StandView joins a stand with its current (most recent) obligation.
// Obligation is nil when the stand was never reserved.
type StandView struct {
	Stand      Stand
	Obligation *Obligation
}

// PaymentStatus is derived from the current obligation only.
func (v StandView) PaymentStatus() ObligationStatus {
	if v.Obligation == nil {
		return ""
	}
	return v.Obligation.Status
}
