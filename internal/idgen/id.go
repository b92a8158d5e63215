// Package id provides ID generation helpers used across services.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const (
	PrefixSession   = "sess"
	PrefixTurn      = "turn"
	PrefixDoc       = "doc"
	PrefixVote      = "vote"
	PrefixSubtask   = "sub"
	PrefixTracker   = "trk"
	PrefixExecution = "exec"
	PrefixRequest   = "req"
)

func New(prefix string) string {
	id, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewWithLength(prefix string, length int) string {
	id, err := nanoid.New(length)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewSession() string   { return New(PrefixSession) }
func NewTurn() string      { return New(PrefixTurn) }
func NewDoc() string       { return New(PrefixDoc) }
func NewVote() string      { return New(PrefixVote) }
func NewSubtask() string   { return New(PrefixSubtask) }
func NewTracker() string   { return New(PrefixTracker) }
func NewExecution() string { return New(PrefixExecution) }
func NewRequest() string   { return New(PrefixRequest) }
