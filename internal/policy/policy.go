// Package policy defines the constitutional policy document: the
// versioned set of articles, prohibited actions, and tier capabilities
// the guard enforces.
package policy

import (
	"strings"
	"time"
)

// Article is one numbered clause of the policy document.
type Article struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Document is a versioned policy document. Exactly one version is
// active at a time; amendments activate a new version and retire the
// previous one.
type Document struct {
	ID                string    `json:"id"`
	Version           int       `json:"version"`
	Name              string    `json:"name"`
	Articles          []Article `json:"articles"`
	ProhibitedActions []string  `json:"prohibited_actions"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

// Article returns the article with the given id, or nil.
func (d *Document) Article(id string) *Article {
	for i := range d.Articles {
		if d.Articles[i].ID == id {
			return &d.Articles[i]
		}
	}
	return nil
}

// Prohibits reports whether the action matches a prohibited action by
// case-insensitive substring.
func (d *Document) Prohibits(action string) (string, bool) {
	lower := strings.ToLower(action)
	for _, p := range d.ProhibitedActions {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// Default returns the seed constitution used when no document has been
// persisted yet.
func Default() *Document {
	return &Document{
		ID:      "constitution",
		Version: 1,
		Name:    "Founding Constitution",
		Articles: []Article{
			{
				ID:    "art-1",
				Title: "Workspace containment",
				Text:  "No agent may create, modify, or delete files outside its assigned workspace.",
			},
			{
				ID:    "art-2",
				Title: "Data protection",
				Text:  "No agent may destroy, truncate, or exfiltrate persistent data or credentials.",
			},
			{
				ID:    "art-3",
				Title: "Chain of command",
				Text:  "Agents communicate only along adjacent tiers; directives flow downward, reports flow upward.",
			},
			{
				ID:    "art-4",
				Title: "Collective consent",
				Text:  "Actions affecting many agents require a deliberation before execution.",
			},
			{
				ID:    "art-5",
				Title: "Amendment",
				Text:  "This document changes only through an amendment vote meeting quorum and supermajority.",
			},
		},
		ProhibitedActions: []string{
			"delete workspace",
			"modify constitution",
			"exfiltrate",
			"disable guard",
		},
		Active:    true,
		CreatedAt: time.Now(),
	}
}
