package synchronizer

import (
	"github.com/randalmurphal/tasksync/internal/model"
)

// projectFields removes, in place, every payload field the local schema
// does not store for kind k, and returns p for chaining. Payloads of kinds
// without a schema pass through untouched.
func projectFields(k model.Kind, p model.Payload) model.Payload {
	if _, ok := model.Fields[k]; !ok {
		return p
	}
	for name := range p {
		if !model.HasField(k, name) {
			delete(p, name)
		}
	}
	return p
}
