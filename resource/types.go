package resource

// Handle is an opaque reference to a value in a table. Handles are positive
// and fit in a cell so scripts can hold them. Handle 0 is always invalid.
type Handle uint32

// Kind tags the values stored in a table so handles of one kind cannot be
// used as another.
type Kind uint32

const (
	KindTask Kind = iota + 1
	KindScratchVar
	KindNativeHook
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindScratchVar:
		return "scratch-var"
	case KindNativeHook:
		return "native-hook"
	}
	return "unknown"
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventAcquired
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
	Refs   uint32
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when their
// handle is removed.
type Dropper interface {
	Drop()
}
