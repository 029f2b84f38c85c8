package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionInfo_DSN(t *testing.T) {
	info := ConnectionInfo{Host: "db", Port: 5432, Username: "kasse", DBName: "verein", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=kasse dbname=verein sslmode=disable", info.DSN())

	info.Password = "geheim"
	assert.Equal(t, "host=db port=5432 user=kasse dbname=verein sslmode=disable password=geheim", info.DSN())
}
