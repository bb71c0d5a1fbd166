// Package viewstate keeps per-user lists of entities in sync with the mutations
// the sync layer performs. Reduce is pure; Store and Registry add locking and
// change notification on top of it.
package viewstate

// Identifiable is an entity that can live in a view state list.
type Identifiable interface {
	GetID() string
}

// State is one entity list and its fetch status.
type State[T Identifiable] struct {
	Items   []T    `json:"items"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type ActionType string

const (
	FetchStart   ActionType = "fetchStart"
	FetchSuccess ActionType = "fetchSuccess"
	FetchFailure ActionType = "fetchFailure"
	AddOne       ActionType = "addOne"
	UpdateOne    ActionType = "updateOne"
	RemoveOne    ActionType = "removeOne"
)

// Action is a state transition. Only the field that matches Type is read.
type Action[T Identifiable] struct {
	Type  ActionType
	Items []T
	Item  T
	ID    string
	Error string
}

func Start[T Identifiable]() Action[T] {
	return Action[T]{Type: FetchStart}
}

func Success[T Identifiable](items []T) Action[T] {
	return Action[T]{Type: FetchSuccess, Items: items}
}

func Failure[T Identifiable](msg string) Action[T] {
	return Action[T]{Type: FetchFailure, Error: msg}
}

func Add[T Identifiable](item T) Action[T] {
	return Action[T]{Type: AddOne, Item: item}
}

func Update[T Identifiable](item T) Action[T] {
	return Action[T]{Type: UpdateOne, Item: item}
}

func Remove[T Identifiable](id string) Action[T] {
	return Action[T]{Type: RemoveOne, ID: id}
}

// Reduce returns the state after a. It never modifies s.
func Reduce[T Identifiable](s State[T], a Action[T]) State[T] {
	next := State[T]{
		Items:   append(make([]T, 0, len(s.Items)+1), s.Items...),
		Loading: s.Loading,
		Error:   s.Error,
	}

	switch a.Type {
	case FetchStart:
		next.Loading = true
		next.Error = ""
	case FetchSuccess:
		next.Items = append(make([]T, 0, len(a.Items)), a.Items...)
		next.Loading = false
		next.Error = ""
	case FetchFailure:
		next.Items = []T{}
		next.Loading = false
		next.Error = a.Error
	case AddOne:
		next.Items = append([]T{a.Item}, next.Items...)
		next.Loading = false
	case UpdateOne:
		id := a.Item.GetID()
		for i := range next.Items {
			if next.Items[i].GetID() == id {
				next.Items[i] = a.Item
			}
		}
	case RemoveOne:
		kept := next.Items[:0]
		for _, item := range next.Items {
			if item.GetID() != a.ID {
				kept = append(kept, item)
			}
		}
		next.Items = kept
	}
	return next
}

func (s State[T]) clone() State[T] {
	s.Items = append(make([]T, 0, len(s.Items)), s.Items...)
	return s
}
