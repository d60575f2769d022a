package smc

import (
	"github.com/charlie0129/gosmc"
	"github.com/sirupsen/logrus"
)

// Conn is a wrapper of gosmc.Connection.
type Conn struct {
	conn gosmc.Connection
}

// New returns a new Conn backed by the real SMC.
func New() *Conn {
	return &Conn{
		conn: gosmc.New(),
	}
}

// NewMock returns a new mocked Conn with prefill values.
func NewMock(prefillValues map[string][]byte) *Conn {
	conn := gosmc.NewMockConnection()

	for key, value := range prefillValues {
		err := conn.Write(key, value)
		if err != nil {
			panic(err)
		}
	}

	return &Conn{
		conn: conn,
	}
}

// Open opens the connection.
func (c *Conn) Open() error {
	return c.conn.Open()
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Read reads a value from SMC.
func (c *Conn) Read(key string) (gosmc.SMCVal, error) {
	logrus.WithFields(logrus.Fields{
		"key": key,
	}).Trace("Trying to read from SMC")

	v, err := c.conn.Read(key)
	if err != nil {
		return v, err
	}

	logrus.WithFields(logrus.Fields{
		"key": key,
		"val": v,
	}).Trace("Load from SMC succeed")

	return v, nil
}

// Write writes a value to SMC.
func (c *Conn) Write(key string, value []byte) error {
	logrus.WithFields(logrus.Fields{
		"key": key,
		"val": value,
	}).Trace("Trying to write to SMC")

	err := c.conn.Write(key, value)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"key": key,
		"val": value,
	}).Trace("Write to SMC succeed")

	return nil
}
