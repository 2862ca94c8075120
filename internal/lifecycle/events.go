package lifecycle

// EventKind identifies what changed in the engine.
type EventKind int

const (
	// EventLoaded follows Open once the document and its annotations are in place.
	EventLoaded EventKind = iota
	// EventClosed follows Close.
	EventClosed
	// EventEdited follows a text edit and any re-anchoring it caused.
	EventEdited
	// EventApplied follows a suggestion being written into the document.
	EventApplied
	// EventDismissed follows an explicit dismissal.
	EventDismissed
	// EventAutoDismissed fires when an edited annotation's grace timer expires.
	EventAutoDismissed
	// EventCleared follows removal of every active annotation.
	EventCleared
	// EventUndo follows an undo step.
	EventUndo
	// EventRedo follows a redo step.
	EventRedo
	// EventAnnotations follows annotations being added or replaced from outside.
	EventAnnotations
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventClosed:
		return "closed"
	case EventEdited:
		return "edited"
	case EventApplied:
		return "applied"
	case EventDismissed:
		return "dismissed"
	case EventAutoDismissed:
		return "auto_dismissed"
	case EventCleared:
		return "cleared"
	case EventUndo:
		return "undo"
	case EventRedo:
		return "redo"
	case EventAnnotations:
		return "annotations"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a mutation completes.
type Event struct {
	Kind EventKind
	Path string
	IDs  []string // annotations affected, when relevant
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs without the engine lock held and may call back
// into the engine.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	e.subMu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
