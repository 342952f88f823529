package usb

import (
	"fmt"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Config selects the device and its bulk endpoints.
type Config struct {
	VendorID    uint16
	ProductID   uint16
	ConfigNum   int
	Interface   int
	EndpointIn  int
	EndpointOut int
	// Timeout bounds one request and response exchange.
	Timeout time.Duration
}

// Open finds the device by vendor and product ID and claims its bulk
// endpoints.
func Open(cfg Config, log *zap.Logger) (*Transport, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(cfg.VendorID), gousb.ID(cfg.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: open %04x:%04x: %w", cfg.VendorID, cfg.ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: device %04x:%04x not found", cfg.VendorID, cfg.ProductID)
	}
	closers := []func() error{ctx.Close, dev.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := dev.SetAutoDetach(true); err != nil {
		cleanup()
		return nil, fmt.Errorf("usb: auto detach: %w", err)
	}
	conf, err := dev.Config(cfg.ConfigNum)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("usb: configuration %d: %w", cfg.ConfigNum, err)
	}
	closers = append(closers, conf.Close)

	iface, err := conf.Interface(cfg.Interface, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("usb: claim interface %d: %w", cfg.Interface, err)
	}
	closers = append(closers, func() error { iface.Close(); return nil })

	in, err := iface.InEndpoint(cfg.EndpointIn)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("usb: IN endpoint %d: %w", cfg.EndpointIn, err)
	}
	out, err := iface.OutEndpoint(cfg.EndpointOut)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("usb: OUT endpoint %d: %w", cfg.EndpointOut, err)
	}

	serial, _ := dev.SerialNumber()
	endpoint := fmt.Sprintf("%04x:%04x bus %d addr %d serial %q",
		cfg.VendorID, cfg.ProductID, dev.Desc.Bus, dev.Desc.Address, serial)
	t := New(out, in, endpoint, log)
	t.SetTimeout(cfg.Timeout)
	t.closers = closers
	return t, nil
}
