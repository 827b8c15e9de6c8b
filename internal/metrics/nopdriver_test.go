package metrics

import (
	"context"
	"database/sql/driver"
	"errors"
)

// nopConnector lets sql.OpenDB build a pool without a real driver.
type nopConnector struct{}

func (nopConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("no connections in tests")
}

func (nopConnector) Driver() driver.Driver { return nopDriver{} }

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nil, errors.New("no connections in tests") }
