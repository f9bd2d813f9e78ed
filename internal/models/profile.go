package models

import (
	"fmt"
	"net"
	"strconv"
)

// ConnectionProfile holds the credentials for one PostGIS database.
type ConnectionProfile struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Addr returns host:port, defaulting the port to 5432.
func (p ConnectionProfile) Addr() string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// String never prints the password.
func (p ConnectionProfile) String() string {
	return fmt.Sprintf("%s@%s/%s", p.User, p.Addr(), p.DBName)
}
