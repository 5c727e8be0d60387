// Package models holds the GORM rows of the reconciliation tables and the
// mappers to and from the domain types. Domain types carry no ORM tags; every
// column, index and constraint is declared here.
package models
