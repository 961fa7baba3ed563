package domain

// issueTransitions is the complete set of legal status moves. Every status
// has an entry so lookups never fall through to a zero value by accident.
var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusOpen:       {IssueStatusInProgress, IssueStatusResolved},
	IssueStatusInProgress: {IssueStatusOpen, IssueStatusResolved},
	IssueStatusResolved:   {IssueStatusClosed},
	IssueStatusClosed:     {},
}

// CanTransition reports whether an issue may move from current to next.
func CanTransition(current, next IssueStatus) bool {
	for _, candidate := range issueTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current IssueStatus) []IssueStatus {
	return append([]IssueStatus(nil), issueTransitions[current]...)
}
