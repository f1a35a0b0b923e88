package mailtm

import "time"

// Domain represents a domain available for mailbox registration.
type Domain struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
}

// Account represents a mailbox account on the provider.
type Account struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

// Address is a sender or recipient of a message.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Message is a message summary as returned by the list endpoint.
type Message struct {
	ID             string    `json:"id"`
	From           Address   `json:"from"`
	To             []Address `json:"to"`
	Subject        string    `json:"subject"`
	Intro          string    `json:"intro"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Attachment describes a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

// MessageDetail is the full message as returned by the detail endpoint.
type MessageDetail struct {
	Message
	Text        string       `json:"text"`
	HTML        []string     `json:"html"`
	Attachments []Attachment `json:"attachments"`
}

// MessageList is a page of messages plus the total count across all pages.
type MessageList struct {
	Messages []Message
	Total    int
}

// Session is the result of a successful login: a bearer token and the
// account it belongs to.
type Session struct {
	Token   string
	Account Account
}

// hydraList is the JSON-LD collection envelope the provider wraps list
// responses in.
type hydraList[T any] struct {
	Member     []T `json:"hydra:member"`
	TotalItems int `json:"hydra:totalItems"`
}

// hydraError is the JSON-LD error body returned on non-2xx responses.
type hydraError struct {
	Title       string `json:"hydra:title"`
	Description string `json:"hydra:description"`
	Message     string `json:"message"`
	Detail      string `json:"detail"`
}

func (e hydraError) detail() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	default:
		return e.Title
	}
}

// tokenResponse is the body of a successful POST /token.
type tokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
}
