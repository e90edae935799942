package models

import "github.com/savagetongue/mess-connect0209/entity"

// Complaint timestamps are unix milliseconds.
type Complaint struct {
	ID          string `json:"id"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Text        string `json:"text"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Reply       string `json:"reply,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

func (c Complaint) EntityID() string { return c.ID }

var ComplaintDescriptor = entity.Descriptor[Complaint]{
	TypeName:  "complaint",
	IndexName: "complaints",
}

type Suggestion struct {
	ID          string `json:"id"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Text        string `json:"text"`
	Reply       string `json:"reply,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

func (s Suggestion) EntityID() string { return s.ID }

var SuggestionDescriptor = entity.Descriptor[Suggestion]{
	TypeName:  "suggestion",
	IndexName: "suggestions",
}
