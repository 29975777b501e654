package model

import (
	"encoding/json"
	"strings"
)

// Formatted is the structured résumé produced by the structuring step. Once a
// record carries one, every field is present: missing data is "" or [].
type Formatted struct {
	FullName        string       `json:"fullName"`
	Profession      string       `json:"profession"`
	Summary         string       `json:"summary"`
	Contact         Contact      `json:"contact"`
	Expertise       []string     `json:"expertise"`
	KeyAchievements []string     `json:"keyAchievements"`
	Experience      []Experience `json:"experience"`
	Education       []Education  `json:"education"`
	Languages       []string     `json:"languages"`
	Certifications  []string     `json:"certifications"`
	Awards          []string     `json:"awards"`
}

// Contact holds the contact block.
type Contact struct {
	Address string `json:"address"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// Experience is one job entry.
type Experience struct {
	JobTitle         string   `json:"jobTitle"`
	Company          string   `json:"company"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	Responsibilities []string `json:"responsibilities"`
}

// Education is one education entry.
type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Details     string `json:"details"`
}

// Normalize returns a copy with strings trimmed, blank list items dropped and
// every slice non-nil, so the JSON encoding always carries every field.
func (f Formatted) Normalize() Formatted {
	out := Formatted{
		FullName:   strings.TrimSpace(f.FullName),
		Profession: strings.TrimSpace(f.Profession),
		Summary:    strings.TrimSpace(f.Summary),
		Contact: Contact{
			Address: strings.TrimSpace(f.Contact.Address),
			Email:   strings.TrimSpace(f.Contact.Email),
			Website: strings.TrimSpace(f.Contact.Website),
		},
		Expertise:       cleanList(f.Expertise),
		KeyAchievements: cleanList(f.KeyAchievements),
		Experience:      make([]Experience, 0, len(f.Experience)),
		Education:       make([]Education, 0, len(f.Education)),
		Languages:       cleanList(f.Languages),
		Certifications:  cleanList(f.Certifications),
		Awards:          cleanList(f.Awards),
	}
	for _, exp := range f.Experience {
		out.Experience = append(out.Experience, Experience{
			JobTitle:         strings.TrimSpace(exp.JobTitle),
			Company:          strings.TrimSpace(exp.Company),
			StartDate:        strings.TrimSpace(exp.StartDate),
			EndDate:          strings.TrimSpace(exp.EndDate),
			Responsibilities: cleanList(exp.Responsibilities),
		})
	}
	for _, edu := range f.Education {
		out.Education = append(out.Education, Education{
			Degree:      strings.TrimSpace(edu.Degree),
			Institution: strings.TrimSpace(edu.Institution),
			StartDate:   strings.TrimSpace(edu.StartDate),
			EndDate:     strings.TrimSpace(edu.EndDate),
			Details:     strings.TrimSpace(edu.Details),
		})
	}
	return out
}

// MarshalJSON always emits every field; nil lists encode as [].
func (f Formatted) MarshalJSON() ([]byte, error) {
	type plain Formatted
	out := plain(f)
	out.Expertise = orEmpty(out.Expertise)
	out.KeyAchievements = orEmpty(out.KeyAchievements)
	out.Languages = orEmpty(out.Languages)
	out.Certifications = orEmpty(out.Certifications)
	out.Awards = orEmpty(out.Awards)
	out.Experience = make([]Experience, len(f.Experience))
	for i, exp := range f.Experience {
		exp.Responsibilities = orEmpty(exp.Responsibilities)
		out.Experience[i] = exp
	}
	if f.Education == nil {
		out.Education = []Education{}
	}
	return json.Marshal(out)
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
