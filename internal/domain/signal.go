package domain

// SignalState is the discrete directional signal emitted by the evaluation
// collaborator. Ordinal: VeryShort < Short < Neutral < Long < VeryLong.
//
// Short and VeryShort are accepted but deliberately produce no entry action:
// exits are driven purely by price/fill events, never by the directional
// signal. This is an explicit no-op arm, not an unimplemented path.
type SignalState int

const (
	SignalVeryShort SignalState = iota
	SignalShort
	SignalNeutral
	SignalLong
	SignalVeryLong
)

// String devuelve el nombre legible del estado.
func (s SignalState) String() string {
	switch s {
	case SignalVeryShort:
		return "VERY_SHORT"
	case SignalShort:
		return "SHORT"
	case SignalNeutral:
		return "NEUTRAL"
	case SignalLong:
		return "LONG"
	case SignalVeryLong:
		return "VERY_LONG"
	default:
		return "UNKNOWN"
	}
}

// Bullish reports whether the state triggers entry construction.
func (s SignalState) Bullish() bool {
	return s == SignalLong || s == SignalVeryLong
}
