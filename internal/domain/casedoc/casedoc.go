// Package casedoc holds the per-case search document aggregate. A document is
// a cumulative projection of lifecycle events for one case: descriptive fields
// are last-write-wins, correspondent and topic membership is tracked twice
// (current after removals, all-time append-only), and deletion is a monotonic
// flag rather than a physical removal.
package casedoc

import (
	"time"

	"github.com/google/uuid"
)

// CaseDetails carries the descriptive fields of a case-created event.
type CaseDetails struct {
	Created      time.Time
	Type         string
	Reference    string
	CaseDeadline Date
	DateReceived Date
	Data         map[string]string
}

// CaseUpdate carries the fields of a case-updated event: the descriptive
// fields plus the optional primary entity references.
type CaseUpdate struct {
	CaseDetails
	PrimaryTopic         *uuid.UUID
	PrimaryCorrespondent *uuid.UUID
}

// Correspondent is a party attached to a case.
type Correspondent struct {
	UUID      uuid.UUID
	Created   time.Time
	Type      string
	Fullname  string
	Postcode  string
	Address1  string
	Address2  string
	Address3  string
	Country   string
	Telephone string
	Email     string
	Reference string
}

// Topic is a categorisation label attached to a case.
type Topic struct {
	UUID    uuid.UUID
	Created time.Time
	Text    string
}

// CaseDocument is the search document for one case. A freshly materialized
// document carries only its UUID; every operation tolerates such a stub, since
// a dependent event may arrive before the creating one.
type CaseDocument struct {
	caseUUID             uuid.UUID
	created              time.Time
	caseType             string
	reference            string
	primaryTopic         *uuid.UUID
	primaryCorrespondent *uuid.UUID
	caseDeadline         Date
	dateReceived         Date
	deleted              bool
	completed            bool
	data                 map[string]string

	currentCorrespondents []Correspondent
	allCorrespondents     []Correspondent
	currentTopics         []Topic
	allTopics             []Topic
}

// New creates a stub document holding only the case identifier.
func New(caseUUID uuid.UUID) *CaseDocument {
	return &CaseDocument{caseUUID: caseUUID}
}

// Reconstruct rebuilds a document from storage without validation.
func Reconstruct(
	caseUUID uuid.UUID, created time.Time, caseType, reference string,
	primaryTopic, primaryCorrespondent *uuid.UUID,
	caseDeadline, dateReceived Date, deleted, completed bool,
	data map[string]string,
	currentCorrespondents, allCorrespondents []Correspondent,
	currentTopics, allTopics []Topic,
) *CaseDocument {
	return &CaseDocument{
		caseUUID:              caseUUID,
		created:               created,
		caseType:              caseType,
		reference:             reference,
		primaryTopic:          primaryTopic,
		primaryCorrespondent:  primaryCorrespondent,
		caseDeadline:          caseDeadline,
		dateReceived:          dateReceived,
		deleted:               deleted,
		completed:             completed,
		data:                  data,
		currentCorrespondents: currentCorrespondents,
		allCorrespondents:     allCorrespondents,
		currentTopics:         currentTopics,
		allTopics:             allTopics,
	}
}

// Create applies a case-created event. Descriptive fields only; correspondent
// and topic membership is untouched and the deleted flag is never cleared.
func (c *CaseDocument) Create(details CaseDetails) {
	c.applyDetails(details)
}

// Update applies a case-updated event: the descriptive fields plus the
// primary topic and correspondent references. The referenced entities are not
// required to be present in the membership sets.
func (c *CaseDocument) Update(u CaseUpdate) {
	c.applyDetails(u.CaseDetails)
	c.primaryTopic = u.PrimaryTopic
	c.primaryCorrespondent = u.PrimaryCorrespondent
}

func (c *CaseDocument) applyDetails(details CaseDetails) {
	c.created = details.Created
	c.caseType = details.Type
	c.reference = details.Reference
	c.caseDeadline = details.CaseDeadline
	c.dateReceived = details.DateReceived
	if details.Data != nil {
		if c.data == nil {
			c.data = make(map[string]string, len(details.Data))
		}
		for k, v := range details.Data {
			c.data[k] = v
		}
	}
}

// Delete marks the case deleted. The flag is monotonic: no other modeled
// event clears it.
func (c *CaseDocument) Delete() {
	c.deleted = true
}

// Complete marks the case completed. Kept independent of the deleted flag so
// a completed case stays visible to active-only search.
func (c *CaseDocument) Complete() {
	c.completed = true
}

// AddCorrespondent upserts a correspondent by UUID into both the current and
// the all-time sets. Re-applying the same event overwrites in place rather
// than duplicating.
func (c *CaseDocument) AddCorrespondent(corr Correspondent) {
	c.currentCorrespondents = upsertCorrespondent(c.currentCorrespondents, corr)
	c.allCorrespondents = upsertCorrespondent(c.allCorrespondents, corr)
}

// RemoveCorrespondent removes a correspondent from the current set only; the
// all-time set keeps it forever. Unknown UUIDs are ignored.
func (c *CaseDocument) RemoveCorrespondent(id uuid.UUID) {
	c.currentCorrespondents = removeCorrespondent(c.currentCorrespondents, id)
}

// AddTopic upserts a topic by UUID into both the current and the all-time sets.
func (c *CaseDocument) AddTopic(topic Topic) {
	c.currentTopics = upsertTopic(c.currentTopics, topic)
	c.allTopics = upsertTopic(c.allTopics, topic)
}

// RemoveTopic removes a topic from the current set only. Unknown UUIDs are
// ignored.
func (c *CaseDocument) RemoveTopic(id uuid.UUID) {
	c.currentTopics = removeTopic(c.currentTopics, id)
}

// CaseUUID returns the case identifier.
func (c *CaseDocument) CaseUUID() uuid.UUID { return c.caseUUID }

// Created returns the creation timestamp of the case.
func (c *CaseDocument) Created() time.Time { return c.created }

// Type returns the case type code.
func (c *CaseDocument) Type() string { return c.caseType }

// Reference returns the human-readable case reference.
func (c *CaseDocument) Reference() string { return c.reference }

// PrimaryTopic returns the designated primary topic UUID, if any.
func (c *CaseDocument) PrimaryTopic() *uuid.UUID { return c.primaryTopic }

// PrimaryCorrespondent returns the designated primary correspondent UUID, if any.
func (c *CaseDocument) PrimaryCorrespondent() *uuid.UUID { return c.primaryCorrespondent }

// CaseDeadline returns the case deadline date.
func (c *CaseDocument) CaseDeadline() Date { return c.caseDeadline }

// DateReceived returns the date the case was received.
func (c *CaseDocument) DateReceived() Date { return c.dateReceived }

// Deleted reports whether the case has been marked deleted.
func (c *CaseDocument) Deleted() bool { return c.deleted }

// Completed reports whether the case has been marked completed.
func (c *CaseDocument) Completed() bool { return c.completed }

// Data returns the arbitrary data fields of the case.
func (c *CaseDocument) Data() map[string]string { return c.data }

// CurrentCorrespondents returns the correspondents presently attached.
func (c *CaseDocument) CurrentCorrespondents() []Correspondent { return c.currentCorrespondents }

// AllCorrespondents returns every correspondent ever attached.
func (c *CaseDocument) AllCorrespondents() []Correspondent { return c.allCorrespondents }

// CurrentTopics returns the topics presently attached.
func (c *CaseDocument) CurrentTopics() []Topic { return c.currentTopics }

// AllTopics returns every topic ever attached.
func (c *CaseDocument) AllTopics() []Topic { return c.allTopics }

func upsertCorrespondent(list []Correspondent, corr Correspondent) []Correspondent {
	for i := range list {
		if list[i].UUID == corr.UUID {
			list[i] = corr
			return list
		}
	}
	return append(list, corr)
}

func removeCorrespondent(list []Correspondent, id uuid.UUID) []Correspondent {
	for i := range list {
		if list[i].UUID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func upsertTopic(list []Topic, topic Topic) []Topic {
	for i := range list {
		if list[i].UUID == topic.UUID {
			list[i] = topic
			return list
		}
	}
	return append(list, topic)
}

func removeTopic(list []Topic, id uuid.UUID) []Topic {
	for i := range list {
		if list[i].UUID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
