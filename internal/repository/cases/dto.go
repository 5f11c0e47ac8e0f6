package cases

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/domain/casedoc"
)

// caseDTO is the stored JSON shape. Alongside the raw fields it carries two
// derived ones consumed only by the index schema: dateReceivedEpochDay for
// numeric range filtering and dataPairs, the data map flattened to sorted
// "name=value" strings for tag filtering.
type caseDTO struct {
	CaseUUID              uuid.UUID          `json:"caseUUID"`
	Created               time.Time          `json:"created"`
	Type                  string             `json:"type"`
	Reference             string             `json:"reference"`
	PrimaryTopic          *uuid.UUID         `json:"primaryTopic"`
	PrimaryCorrespondent  *uuid.UUID         `json:"primaryCorrespondent"`
	CaseDeadline          casedoc.Date       `json:"caseDeadline"`
	DateReceived          casedoc.Date       `json:"dateReceived"`
	DateReceivedEpochDay  *int64             `json:"dateReceivedEpochDay"`
	Deleted               bool               `json:"deleted"`
	Completed             bool               `json:"completed"`
	Data                  map[string]string  `json:"data,omitempty"`
	DataPairs             []string           `json:"dataPairs,omitempty"`
	CurrentCorrespondents []correspondentDTO `json:"currentCorrespondents"`
	AllCorrespondents     []correspondentDTO `json:"allCorrespondents"`
	CurrentTopics         []topicDTO         `json:"currentTopics"`
	AllTopics             []topicDTO         `json:"allTopics"`
}

type correspondentDTO struct {
	UUID      uuid.UUID `json:"uuid"`
	Created   time.Time `json:"created"`
	Type      string    `json:"type"`
	Fullname  string    `json:"fullname"`
	Postcode  string    `json:"postcode,omitempty"`
	Address1  string    `json:"address1,omitempty"`
	Address2  string    `json:"address2,omitempty"`
	Address3  string    `json:"address3,omitempty"`
	Country   string    `json:"country,omitempty"`
	Telephone string    `json:"telephone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Reference string    `json:"reference,omitempty"`
}

type topicDTO struct {
	UUID    uuid.UUID `json:"uuid"`
	Created time.Time `json:"created"`
	Text    string    `json:"text"`
}

func toDTO(doc *casedoc.CaseDocument) caseDTO {
	var epochDay *int64
	if !doc.DateReceived().IsZero() {
		d := doc.DateReceived().EpochDay()
		epochDay = &d
	}

	return caseDTO{
		CaseUUID:              doc.CaseUUID(),
		Created:               doc.Created(),
		Type:                  doc.Type(),
		Reference:             doc.Reference(),
		PrimaryTopic:          doc.PrimaryTopic(),
		PrimaryCorrespondent:  doc.PrimaryCorrespondent(),
		CaseDeadline:          doc.CaseDeadline(),
		DateReceived:          doc.DateReceived(),
		DateReceivedEpochDay:  epochDay,
		Deleted:               doc.Deleted(),
		Completed:             doc.Completed(),
		Data:                  doc.Data(),
		DataPairs:             dataPairs(doc.Data()),
		CurrentCorrespondents: correspondentsToDTO(doc.CurrentCorrespondents()),
		AllCorrespondents:     correspondentsToDTO(doc.AllCorrespondents()),
		CurrentTopics:         topicsToDTO(doc.CurrentTopics()),
		AllTopics:             topicsToDTO(doc.AllTopics()),
	}
}

func fromDTO(d caseDTO) *casedoc.CaseDocument {
	return casedoc.Reconstruct(
		d.CaseUUID, d.Created, d.Type, d.Reference,
		d.PrimaryTopic, d.PrimaryCorrespondent,
		d.CaseDeadline, d.DateReceived, d.Deleted, d.Completed,
		d.Data,
		correspondentsFromDTO(d.CurrentCorrespondents),
		correspondentsFromDTO(d.AllCorrespondents),
		topicsFromDTO(d.CurrentTopics),
		topicsFromDTO(d.AllTopics),
	)
}

// parseJSONGetResult unwraps the JSONPath array returned by JSON.GET $.
func parseJSONGetResult(raw []byte) (*casedoc.CaseDocument, error) {
	var dtos []caseDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal case document: %w", err)
	}
	if len(dtos) == 0 {
		return nil, fmt.Errorf("unmarshal case document: empty JSONPath result")
	}
	return fromDTO(dtos[0]), nil
}

func dataPairs(data map[string]string) []string {
	if len(data) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(data))
	for k, v := range data {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func correspondentsToDTO(list []casedoc.Correspondent) []correspondentDTO {
	out := make([]correspondentDTO, 0, len(list))
	for _, c := range list {
		out = append(out, correspondentDTO{
			UUID:      c.UUID,
			Created:   c.Created,
			Type:      c.Type,
			Fullname:  c.Fullname,
			Postcode:  c.Postcode,
			Address1:  c.Address1,
			Address2:  c.Address2,
			Address3:  c.Address3,
			Country:   c.Country,
			Telephone: c.Telephone,
			Email:     c.Email,
			Reference: c.Reference,
		})
	}
	return out
}

func correspondentsFromDTO(list []correspondentDTO) []casedoc.Correspondent {
	out := make([]casedoc.Correspondent, 0, len(list))
	for _, d := range list {
		out = append(out, casedoc.Correspondent{
			UUID:      d.UUID,
			Created:   d.Created,
			Type:      d.Type,
			Fullname:  d.Fullname,
			Postcode:  d.Postcode,
			Address1:  d.Address1,
			Address2:  d.Address2,
			Address3:  d.Address3,
			Country:   d.Country,
			Telephone: d.Telephone,
			Email:     d.Email,
			Reference: d.Reference,
		})
	}
	return out
}

func topicsToDTO(list []casedoc.Topic) []topicDTO {
	out := make([]topicDTO, 0, len(list))
	for _, t := range list {
		out = append(out, topicDTO{UUID: t.UUID, Created: t.Created, Text: t.Text})
	}
	return out
}

func topicsFromDTO(list []topicDTO) []casedoc.Topic {
	out := make([]casedoc.Topic, 0, len(list))
	for _, d := range list {
		out = append(out, casedoc.Topic{UUID: d.UUID, Created: d.Created, Text: d.Text})
	}
	return out
}
