package phase

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/genclient"
)

// Input is what a phase handler receives on execution
type Input struct {
	Project *Project
	Phase   Tag

	// Context holds all artifacts from completed phases as read-only
	// context documents; the intake phase additionally carries the
	// project brief
	Context []genclient.ContextDoc

	// Gates are the approval gates bound to this phase, already satisfied
	// when the handler runs
	Gates []ApprovalGate
}

// Output is what a phase handler produces
type Output struct {
	Artifacts []GeneratedArtifact
	Message   string
}

// Handler implements the behavior of one or more phases. Handlers are
// looked up by tag; composition over inheritance.
type Handler interface {
	CanHandle(tag Tag) bool
	Execute(ctx context.Context, in *Input) (*Output, error)
}

// Registry maps phase tags to handlers, first match wins
type Registry struct {
	handlers []Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// HandlerFor returns the first handler claiming the tag
func (r *Registry) HandlerFor(tag Tag) (Handler, error) {
	for _, h := range r.handlers {
		if h.CanHandle(tag) {
			return h, nil
		}
	}
	return nil, errors.New(errors.ErrCodePhaseNoHandler,
		fmt.Sprintf("no handler registered for phase %q", tag))
}
