// Package event defines the inbound event envelope, the closed set of
// recognized event types, and the typed payloads carried for each kind.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/domain/casedoc"
)

// Type tags an envelope with the lifecycle event it carries. The set is
// closed; the dispatcher ignores anything outside it for forward
// compatibility with new producers.
type Type string

// Recognized event type tags, as emitted by the system of record.
const (
	CaseCreated          Type = "CASE_CREATED"
	CaseUpdated          Type = "CASE_UPDATED"
	CaseDeleted          Type = "CASE_DELETED"
	CaseCompleted        Type = "CASE_COMPLETED"
	CorrespondentCreated Type = "CORRESPONDENT_CREATED"
	CorrespondentDeleted Type = "CORRESPONDENT_DELETED"
	CaseTopicCreated     Type = "CASE_TOPIC_CREATED"
	CaseTopicDeleted     Type = "CASE_TOPIC_DELETED"
)

// Envelope is the wire form of one inbound lifecycle event: the type tag, the
// target case, and an opaque payload deserialized per type.
type Envelope struct {
	Type     Type            `json:"type"`
	CaseUUID uuid.UUID       `json:"caseUUID"`
	Data     json.RawMessage `json:"data"`
}

// CreateCaseRequest is the payload of a case-created event. The same shape
// serves the synchronous create-case endpoint.
type CreateCaseRequest struct {
	UUID         uuid.UUID         `json:"uuid"`
	Created      time.Time         `json:"created"`
	Type         string            `json:"type"`
	Reference    string            `json:"reference"`
	CaseDeadline casedoc.Date      `json:"caseDeadline"`
	DateReceived casedoc.Date      `json:"dateReceived"`
	Data         map[string]string `json:"data,omitempty"`
}

// Details converts the payload into domain case details.
func (r CreateCaseRequest) Details() casedoc.CaseDetails {
	return casedoc.CaseDetails{
		Created:      r.Created,
		Type:         r.Type,
		Reference:    r.Reference,
		CaseDeadline: r.CaseDeadline,
		DateReceived: r.DateReceived,
		Data:         r.Data,
	}
}

// UpdateCaseRequest is the payload of a case-updated event.
type UpdateCaseRequest struct {
	UUID                 uuid.UUID         `json:"uuid"`
	Created              time.Time         `json:"created"`
	Type                 string            `json:"type"`
	Reference            string            `json:"reference"`
	PrimaryTopic         *uuid.UUID        `json:"primaryTopic,omitempty"`
	PrimaryCorrespondent *uuid.UUID        `json:"primaryCorrespondent,omitempty"`
	CaseDeadline         casedoc.Date      `json:"caseDeadline"`
	DateReceived         casedoc.Date      `json:"dateReceived"`
	Data                 map[string]string `json:"data,omitempty"`
}

// Update converts the payload into a domain case update.
func (r UpdateCaseRequest) Update() casedoc.CaseUpdate {
	return casedoc.CaseUpdate{
		CaseDetails: casedoc.CaseDetails{
			Created:      r.Created,
			Type:         r.Type,
			Reference:    r.Reference,
			CaseDeadline: r.CaseDeadline,
			DateReceived: r.DateReceived,
			Data:         r.Data,
		},
		PrimaryTopic:         r.PrimaryTopic,
		PrimaryCorrespondent: r.PrimaryCorrespondent,
	}
}

// CreateCorrespondentRequest is the payload of a correspondent-created event.
type CreateCorrespondentRequest struct {
	UUID      uuid.UUID `json:"uuid"`
	Created   time.Time `json:"created"`
	Type      string    `json:"type"`
	Fullname  string    `json:"fullname"`
	Postcode  string    `json:"postcode"`
	Address1  string    `json:"address1"`
	Address2  string    `json:"address2"`
	Address3  string    `json:"address3"`
	Country   string    `json:"country"`
	Telephone string    `json:"telephone"`
	Email     string    `json:"email"`
	Reference string    `json:"reference"`
}

// Correspondent converts the payload into a domain correspondent.
func (r CreateCorrespondentRequest) Correspondent() casedoc.Correspondent {
	return casedoc.Correspondent{
		UUID:      r.UUID,
		Created:   r.Created,
		Type:      r.Type,
		Fullname:  r.Fullname,
		Postcode:  r.Postcode,
		Address1:  r.Address1,
		Address2:  r.Address2,
		Address3:  r.Address3,
		Country:   r.Country,
		Telephone: r.Telephone,
		Email:     r.Email,
		Reference: r.Reference,
	}
}

// CreateTopicRequest is the payload of a topic-created event.
type CreateTopicRequest struct {
	UUID    uuid.UUID `json:"uuid"`
	Created time.Time `json:"createdDate"`
	Text    string    `json:"topicName"`
}

// Topic converts the payload into a domain topic.
func (r CreateTopicRequest) Topic() casedoc.Topic {
	return casedoc.Topic{UUID: r.UUID, Created: r.Created, Text: r.Text}
}

// RemoveEntityRequest is the payload of correspondent-deleted and
// topic-deleted events: just the entity identifier.
type RemoveEntityRequest struct {
	UUID uuid.UUID `json:"uuid"`
}
