package match

// Action is the operational recommendation derived from the best composite score.
type Action string

// Actions.
const (
	ApproveOnline       Action = "approve_online"
	RequestVerification Action = "request_verification"
	Reject              Action = "reject"
)

// Method tags how a result was produced.
type Method string

// Search methods.
const (
	ImageMatching Method = "image_matching"
	TextMatching  Method = "text_matching"
	Fallback      Method = "fallback"
)

// Decide maps a best score to an action. hasCandidates=false always yields Reject.
func (p Policy) Decide(best int, hasCandidates bool) Action {
	switch {
	case !hasCandidates:
		return Reject
	case best >= p.ApproveThreshold:
		return ApproveOnline
	case best >= p.VerifyThreshold:
		return RequestVerification
	default:
		return Reject
	}
}

// Decide applies the default policy thresholds.
func Decide(best int, hasCandidates bool) Action {
	return DefaultPolicy().Decide(best, hasCandidates)
}
