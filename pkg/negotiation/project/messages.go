// Package project implements the negotiation that reconciles the contents of
// shared projects between a session host and a participant.
package project

import (
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
	"github.com/colabsync/colabsync/pkg/transport"
)

const (
	// KindOffer is the message kind carrying the host's file lists.
	KindOffer transport.Kind = "project.offer"
	// KindMissingFiles is the message kind carrying the paths a participant
	// is missing.
	KindMissingFiles transport.Kind = "project.missing"
	// KindCompleted is the message kind confirming that a participant has
	// applied all changes.
	KindCompleted transport.Kind = "project.completed"
)

// Descriptor describes one shared project within an offer.
type Descriptor struct {
	// ProjectID is the session-wide project identifier.
	ProjectID string
	// Name is the human-readable project name.
	Name string
	// FileList is the host's file list for the project.
	FileList *filelist.FileList
	// Partial indicates that not every resource in the project is shared.
	Partial bool
}

// Offer is the payload announcing a project negotiation.
type Offer struct {
	// Projects are the offered projects.
	Projects []Descriptor
}

// Missing lists the paths a participant is missing for one project.
type Missing struct {
	// ProjectID is the project identifier.
	ProjectID string
	// Paths are the missing file list paths.
	Paths []string
}

// MissingFiles is the payload answering an offer.
type MissingFiles struct {
	// Projects are the per-project missing paths.
	Projects []Missing
}

// Count returns the total number of missing paths.
func (m MissingFiles) Count() int {
	var count int
	for _, project := range m.Projects {
		count += len(project.Paths)
	}
	return count
}

// Completed is the payload confirming that a participant is consistent.
type Completed struct{}
