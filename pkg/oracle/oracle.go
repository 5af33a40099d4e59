// Package oracle defines the transmission solver a sweep calls once per bias
// point, plus adapters that run it as an external process, memoise it, and
// instrument it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Sentinel errors for oracle results.
var (
	ErrBadShape       = errors.New("transmission matrix has wrong shape")
	ErrNoCommand      = errors.New("no oracle command configured")
	ErrCommand        = errors.New("oracle command failed")
	ErrNoTrajectories = errors.New("oracle does not produce trajectories")
)

// Request describes one bias point for the solver.
type Request struct {
	// Energy is the Fermi energy.
	Energy float64 `json:"energy"`
	// Field holds the field-like bias values (B1, B2, ...).
	Field []float64 `json:"field"`
	// Voltage holds the voltage-like bias values (V1, V2, ...).
	Voltage []float64 `json:"voltage"`
	// ContactID is the injecting contact.
	ContactID int `json:"contact_id"`
	// Contacts is the number of device contacts; results are Contacts x Contacts.
	Contacts int `json:"contacts"`
	// DL is the injection spacing along a contact.
	DL float64 `json:"dl"`
	// NTh is the number of injection angles.
	NTh int `json:"nth"`
}

// Key identifies the request for memoisation. Floats are formatted with the
// shortest representation that round-trips, so distinct values never collide.
func (r Request) Key() string {
	var b strings.Builder

	writeFloat := func(f float64) {
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		b.WriteByte(',')
	}

	writeFloat(r.Energy)
	b.WriteString("B:")

	for _, f := range r.Field {
		writeFloat(f)
	}

	b.WriteString("V:")

	for _, f := range r.Voltage {
		writeFloat(f)
	}

	fmt.Fprintf(&b, "c%d/%d:", r.ContactID, r.Contacts)
	writeFloat(r.DL)
	b.WriteString(strconv.Itoa(r.NTh))

	return b.String()
}

// Oracle computes the transmission matrix at one bias point. Implementations
// must be deterministic for a given Request.
type Oracle interface {
	Transmission(ctx context.Context, req Request) (tensor.Matrix, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, req Request) (tensor.Matrix, error)

// Transmission implements Oracle.
func (f Func) Transmission(ctx context.Context, req Request) (tensor.Matrix, error) {
	return f(ctx, req)
}

// Trajectory is one injected particle path.
type Trajectory struct {
	// Occupation weights the path in the transmission sum.
	Occupation float64 `json:"occupation"`
	// Path lists (x, y) positions in device coordinates.
	Path [][2]float64 `json:"path"`
}

// TrajectorySource returns particle trajectories at one bias point. With all
// set it returns every trajectory injected from the contact; otherwise the
// single path from the contact midpoint.
type TrajectorySource interface {
	Trajectories(ctx context.Context, req Request, all bool) ([]Trajectory, error)
}

// CheckShape returns ErrBadShape unless m is contacts x contacts.
func CheckShape(m tensor.Matrix, contacts int) error {
	if !m.Square(contacts) {
		return fmt.Errorf("%w: want %dx%d, got %d rows", ErrBadShape, contacts, contacts, len(m))
	}

	return nil
}
