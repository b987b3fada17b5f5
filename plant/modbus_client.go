// Package plant reads live plant state (battery state of charge, rated
// capacity, PV output) from an inverter over Modbus TCP. The dispatch
// service uses the measured state of charge as the storage start capacity
// for its next solve.
package plant

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// DefaultUnitID is the Modbus unit the plant-level registers live on.
const DefaultUnitID = 247

// Plant-level input register layout.
const (
	regRunningInfoBase  = 30000
	regRunningInfoCount = 40

	regRatedCapacityBase  = 30083
	regRatedCapacityCount = 2
)

// Client is a Modbus TCP connection to the plant.
type Client struct {
	client  modbus.Client
	handler *modbus.TCPClientHandler
}

// NewTCPClient connects to the plant Modbus server at address (IP:PORT).
func NewTCPClient(address string, unitID byte) (*Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = unitID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// Close closes the Modbus connection.
func (c *Client) Close() error {
	return c.handler.Close()
}

// State is a snapshot of the plant-level measurements the optimizer cares
// about.
type State struct {
	SOCPercent       float64 // battery state of charge, 0-100
	RatedCapacityKWh float64 // battery rated energy capacity
	PVPowerKW        float64 // current photovoltaic output
	ActivePowerKW    float64 // plant active power
}

// StoredEnergyKWh converts the measured state of charge into absolute stored
// energy.
func (s *State) StoredEnergyKWh() float64 {
	return s.SOCPercent / 100.0 * s.RatedCapacityKWh
}

// ReadState reads the plant running info block plus the rated capacity
// registers.
func (c *Client) ReadState() (*State, error) {
	data, err := c.client.ReadInputRegisters(regRunningInfoBase, regRunningInfoCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read plant running info: %w", err)
	}

	state := &State{
		SOCPercent:    float64(bytesToU16(data[28:30])) / 10.0,
		ActivePowerKW: float64(bytesToS32(data[62:66])) / 1000.0,
		PVPowerKW:     float64(bytesToS32(data[70:74])) / 1000.0,
	}

	capData, err := c.client.ReadInputRegisters(regRatedCapacityBase, regRatedCapacityCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read rated capacity: %w", err)
	}
	state.RatedCapacityKWh = float64(bytesToU32(capData[0:4])) / 100.0

	return state, nil
}

func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToU32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

func bytesToS32(data []byte) int32 {
	return int32(binary.BigEndian.Uint32(data))
}
