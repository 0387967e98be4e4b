package model

// Question is one entry of the classification question set. The classifier
// answers each question for each corpus record; Answers, when non-empty,
// constrains the answer to a closed vocabulary.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Text         string   `json:"text" yaml:"text"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Answers      []string `json:"answers,omitempty" yaml:"answers,omitempty"`
}

// DomainTerm is a weighted term inside a domain vocabulary.
type DomainTerm struct {
	Term   string  `json:"term" yaml:"term"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Domain is a named vocabulary used by the domain-scoring phase. Records are
// scored by weighted term frequency over title and abstract.
type Domain struct {
	Name  string       `json:"name" yaml:"name"`
	Terms []DomainTerm `json:"terms" yaml:"terms"`
}
