package services

import (
	"time"

	"feedsync/models"
)

type Decision int

const (
	DecisionSkip Decision = iota
	DecisionInsert
	DecisionUpdate
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionUpdate:
		return "update"
	}
	return "skip"
}

// Decide picks what to do with an incoming record. An unknown reference is
// inserted; a known one is updated only when the feed's timestamp is
// strictly newer than the stored one.
func Decide(incoming time.Time, stored *models.Property) Decision {
	if stored == nil {
		return DecisionInsert
	}
	if incoming.After(stored.LastUpdated) {
		return DecisionUpdate
	}
	return DecisionSkip
}
