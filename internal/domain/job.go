package domain

import (
	"errors"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

var (
	ErrEmptyTopic         = errors.New("topic must not be empty")
	ErrInvalidPreferences = errors.New("invalid report preferences")
)

// FocusOptions are the recognized report perspectives.
var FocusOptions = []string{
	"Just the Facts",
	"Human Impact",
	"The Clash",
	"Hidden Angles",
	"The Money Trail",
}

// ToneOptions are the recognized report voices.
var ToneOptions = []string{
	"Grandma Mode",
	"Gen Z Mode",
	"Express Mode",
	"Commentary Mode",
}

const (
	DepthQuick    = 1
	DepthBalanced = 2
	DepthDeep     = 3
)

// Preferences configures one generation request. Immutable after submission.
type Preferences struct {
	Focus string `json:"focus"`
	Depth int    `json:"depth"`
	Tone  string `json:"tone"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Focus: "Just the Facts",
		Depth: DepthQuick,
		Tone:  "Express Mode",
	}
}

func (p Preferences) Validate() error {
	if !containsOption(FocusOptions, p.Focus) {
		return ErrInvalidPreferences
	}
	if p.Depth < DepthQuick || p.Depth > DepthDeep {
		return ErrInvalidPreferences
	}
	if !containsOption(ToneOptions, p.Tone) {
		return ErrInvalidPreferences
	}
	return nil
}

// Job is one user-initiated report-generation request. The ID is assigned
// by the upstream gateway at initiation and immutable afterwards.
type Job struct {
	ID           string
	Topic        string
	RefinedTopic string
	Preferences  Preferences
	Status       JobStatus
	CreatedAt    time.Time
}

// DisplayTopic prefers the refined topic once the search phase resolved one.
func (j Job) DisplayTopic() string {
	if j.RefinedTopic != "" {
		return j.RefinedTopic
	}
	return j.Topic
}

// ValidateTopic rejects empty and whitespace-only topics before any
// network activity happens.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return ErrEmptyTopic
	}
	return nil
}

func containsOption(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
