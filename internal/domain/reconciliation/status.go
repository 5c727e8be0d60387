package reconciliation

// Status represents the lifecycle state of a reconciliation
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusFinalized  Status = "finalized"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusFinalized, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true when no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusFinalized || s == StatusCancelled
}

// IsMutable returns true when matches, allocations and edits are allowed
func (s Status) IsMutable() bool {
	return s == StatusDraft || s == StatusInProgress
}

// AllStatuses returns every lifecycle state
func AllStatuses() []Status {
	return []Status{StatusDraft, StatusInProgress, StatusFinalized, StatusCancelled}
}

// transitions is the single source of truth for lifecycle moves.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusInProgress, StatusFinalized, StatusCancelled},
	StatusInProgress: {StatusFinalized, StatusCancelled},
	StatusFinalized:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether a reconciliation may move from one status to another
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EntryStatus represents the state of a clearing entry
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusMatched   EntryStatus = "matched"
	EntryStatusAllocated EntryStatus = "allocated"
)

// IsValid checks if the entry status is valid
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusPending, EntryStatusMatched, EntryStatusAllocated:
		return true
	}
	return false
}

// String returns the string representation of the entry status
func (s EntryStatus) String() string {
	return string(s)
}

// MatchType classifies a match by the cardinality of its sides
type MatchType string

const (
	MatchTypeOneToOne   MatchType = "one_to_one"
	MatchTypeOneToMany  MatchType = "one_to_many"
	MatchTypeManyToOne  MatchType = "many_to_one"
	MatchTypeManyToMany MatchType = "many_to_many"
	MatchTypeManual     MatchType = "manual"
)

// String returns the string representation of the match type
func (t MatchType) String() string {
	return string(t)
}

// ClassifyMatchType derives the match type from the number of source and target entries.
// A match without targets is a manual clearing of its source entries.
func ClassifyMatchType(sources, targets int) MatchType {
	switch {
	case sources == 0 || targets == 0:
		return MatchTypeManual
	case sources == 1 && targets == 1:
		return MatchTypeOneToOne
	case sources == 1:
		return MatchTypeOneToMany
	case targets == 1:
		return MatchTypeManyToOne
	default:
		return MatchTypeManyToMany
	}
}

// MatchRole is the side of a match an entry sits on
type MatchRole string

const (
	MatchRoleSource MatchRole = "source"
	MatchRoleTarget MatchRole = "target"
)

// ExceptionCategory describes why an exception was raised
type ExceptionCategory string

const (
	ExceptionCategoryToleranceExceeded ExceptionCategory = "tolerance_exceeded"
	ExceptionCategoryOverAllocation    ExceptionCategory = "over_allocation"
	ExceptionCategoryManual            ExceptionCategory = "manual"
)

// IsValid checks if the category is valid
func (c ExceptionCategory) IsValid() bool {
	switch c {
	case ExceptionCategoryToleranceExceeded, ExceptionCategoryOverAllocation, ExceptionCategoryManual:
		return true
	}
	return false
}

// HistoryAction is an audit trail action
type HistoryAction string

const (
	HistoryActionCreated           HistoryAction = "created"
	HistoryActionUpdated           HistoryAction = "updated"
	HistoryActionFinalized         HistoryAction = "finalized"
	HistoryActionCancelled         HistoryAction = "cancelled"
	HistoryActionAutoMatched       HistoryAction = "auto_matched"
	HistoryActionExceptionResolved HistoryAction = "exception_resolved"
)
