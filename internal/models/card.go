package models

import "fmt"

type Board struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShortURL string `json:"shortUrl"`
	URL      string `json:"url"`
	Closed   bool   `json:"closed"`
}

type List struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	IDBoard string  `json:"idBoard"`
	Closed  bool    `json:"closed"`
	Pos     float64 `json:"pos"`
}

type Card struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IDShort   int    `json:"idShort"`
	IDList    string `json:"idList"`
	ShortLink string `json:"shortLink"`
	ShortURL  string `json:"shortUrl"`
	// Closed is only present in webhook data when the card's archive state changed.
	Closed *bool `json:"closed,omitempty"`
}

// URL prefers the short URL Trello sends and falls back to one built from the short link.
func (c Card) URL() string {
	if c.ShortURL != "" {
		return c.ShortURL
	}
	return fmt.Sprintf("https://trello.com/c/%s", c.ShortLink)
}

type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// EntityType is the answer of Trello's /1/types endpoint.
type EntityType struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
