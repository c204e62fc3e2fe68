package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so rows created through gorm
// carry an application generated UUID on every driver.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
