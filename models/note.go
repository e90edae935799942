package models

import "github.com/savagetongue/mess-connect0209/entity"

type Note struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"createdAt"`
}

func (n Note) EntityID() string { return n.ID }

var NoteDescriptor = entity.Descriptor[Note]{
	TypeName:  "note",
	IndexName: "notes",
}
