package repository

import (
	"github.com/jmoiron/sqlx"
)

// Container groups the repositories backed by one database handle
type Container struct {
	Rides    *RideRepository
	Cities   *CityRepository
	Searches *SearchLogRepository
}

// NewRepositories builds every repository on top of db. Queries are written with
// '?' placeholders and rebound for the connection's driver.
func NewRepositories(db *sqlx.DB) *Container {
	return &Container{
		Rides:    NewRideRepository(db),
		Cities:   NewCityRepository(db),
		Searches: NewSearchLogRepository(db),
	}
}
