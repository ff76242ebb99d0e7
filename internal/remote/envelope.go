package remote

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tasksync/internal/model"
)

// nextOffset returns the pagination offset of the next page, or "" on the
// last page.
func nextOffset(res gjson.Result) string {
	return res.Get("next_page.offset").String()
}

// errorMessage joins the messages of an error envelope
// ({"errors": [{"message": ...}]}), falling back to the raw body.
func errorMessage(body []byte) string {
	var msgs []string
	gjson.GetBytes(body, "errors.#.message").ForEach(func(_, v gjson.Result) bool {
		msgs = append(msgs, v.String())
		return true
	})
	if len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// toPayload converts a JSON object into a Payload. Numbers decode as
// float64 and nested objects as map[string]any.
func toPayload(res gjson.Result) model.Payload {
	m, ok := res.Value().(map[string]any)
	if !ok {
		return model.Payload{}
	}
	return model.Payload(m)
}

func toRef(res gjson.Result) model.Ref {
	return model.Ref{GID: res.Get("gid").String(), Name: res.Get("name").String()}
}

func toRefs(items []gjson.Result) []model.Ref {
	refs := make([]model.Ref, 0, len(items))
	for _, item := range items {
		if ref := toRef(item); ref.GID != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// toEvent reads one change-feed entry. Older feeds carry the resource type
// in "type"; newer ones only in resource.resource_type.
func toEvent(res gjson.Result) model.Event {
	ev := model.Event{
		Type:     res.Get("type").String(),
		Action:   res.Get("action").String(),
		Resource: toRef(res.Get("resource")),
	}
	if ev.Type == "" {
		ev.Type = res.Get("resource.resource_type").String()
	}
	if parent := res.Get("parent"); parent.IsObject() {
		ref := toRef(parent)
		if ref.GID != "" {
			ev.Parent = &ref
		}
	}
	return ev
}

// hookSecretHeader carries the shared secret of a new subscription.
const hookSecretHeader = "X-Hook-Secret"

func toWebhook(res gjson.Result) model.RemoteWebhook {
	return model.RemoteWebhook{
		GID:    res.Get("gid").String(),
		Active: res.Get("active").Bool(),
		Target: res.Get("target").String(),
	}
}
