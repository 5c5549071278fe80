package runtime

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
)

// Handler serves requests for one subject. data is the request payload
// (never nil; a missing payload arrives as an empty object). The returned
// value is encoded as the reply payload.
type Handler interface {
	Handle(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error) {
	return f(ctx, ether, data, subject)
}

// ControllerSpec is the registration contract for Service.Use.
type ControllerSpec struct {
	Subject string
	Handler Handler
	// Group places the controller in a queue group. Controllers sharing a
	// subject and group split the traffic instead of each receiving it.
	Group string
}

// ControllersFromMap builds controller specs from a subject-to-handler table.
// Subjects not matching mask are skipped (a nil mask keeps everything) and the
// result is sorted by subject. Every spec gets the same group.
func ControllersFromMap(handlers map[string]Handler, mask *regexp.Regexp, group string) []ControllerSpec {
	specs := make([]ControllerSpec, 0, len(handlers))
	for subject, h := range handlers {
		if mask != nil && !mask.MatchString(subject) {
			continue
		}
		specs = append(specs, ControllerSpec{Subject: subject, Handler: h, Group: group})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Subject < specs[j].Subject })
	return specs
}
