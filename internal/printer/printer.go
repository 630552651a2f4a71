// Package printer is the thermal-printer collaborator. The sync core only
// needs a finished transaction record to hand over; print success is never
// part of a sale's correctness.
package printer

import (
	"context"
	"log"

	"kassirpos/agent/internal/domain"
)

type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Printer interface {
	ListDevices(ctx context.Context) ([]Device, error)
	Connect(ctx context.Context, address string) error
	PrintReceipt(ctx context.Context, address string, receipt Receipt) error
}

// Receipt is everything the layout needs: the finished transaction plus the
// store header and the cashier's note.
type Receipt struct {
	StoreName   string
	Transaction domain.LocalTransaction
	Note        string
}

// Noop logs instead of printing, for terminals with no paired printer.
type Noop struct{}

func (Noop) ListDevices(_ context.Context) ([]Device, error) { return nil, nil }

func (Noop) Connect(_ context.Context, _ string) error { return nil }

func (Noop) PrintReceipt(_ context.Context, _ string, receipt Receipt) error {
	log.Printf("[printer] no printer paired, skipping receipt %s", receipt.Transaction.ReceiptNo)
	return nil
}

// Fake records print calls for tests.
type Fake struct {
	Devices []Device
	Printed []Receipt
	Err     error
}

func (f *Fake) ListDevices(_ context.Context) ([]Device, error) {
	return f.Devices, f.Err
}

func (f *Fake) Connect(_ context.Context, _ string) error { return f.Err }

func (f *Fake) PrintReceipt(_ context.Context, _ string, receipt Receipt) error {
	if f.Err != nil {
		return f.Err
	}
	f.Printed = append(f.Printed, receipt)
	return nil
}
