package models

// Outcome classifies how a request was resolved
type Outcome string

const (
	OutcomeResults        Outcome = "results"
	OutcomeNoResults      Outcome = "no_results"
	OutcomeQuotaExceeded  Outcome = "quota_exceeded"
	OutcomeExpired        Outcome = "expired"
	OutcomeDelivered      Outcome = "delivered"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeSaved          Outcome = "saved"
	OutcomeRejected       Outcome = "rejected"
	OutcomeForbidden      Outcome = "forbidden"
	OutcomeDeleted        Outcome = "deleted"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeInfo           Outcome = "info"
)

// Button is an inline keyboard button; Data is echoed back as a Selection
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Reply is one chat message rendered by the front-end
type Reply struct {
	Text     string     `json:"text"`
	Markdown bool       `json:"markdown,omitempty"`
	Buttons  []Button   `json:"buttons,omitempty"`
	Keyboard [][]string `json:"keyboard,omitempty"`
}

// Response is the result of handling one inbound event
type Response struct {
	Outcome Outcome `json:"outcome"`
	Replies []Reply `json:"replies"`
}

// Respond builds a Response from plain text replies
func Respond(outcome Outcome, texts ...string) Response {
	resp := Response{Outcome: outcome}
	for _, t := range texts {
		resp.Replies = append(resp.Replies, Reply{Text: t})
	}
	return resp
}

// Add appends a reply and returns the response
func (r Response) Add(reply Reply) Response {
	r.Replies = append(r.Replies, reply)
	return r
}
